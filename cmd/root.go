package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/signalnine/spatialbench/internal/logging"
)

// EnvPrefix namespaces environment overrides, e.g. SPATIALBENCH_LOG_LEVEL.
const EnvPrefix = "SPATIALBENCH"

var (
	cfgFile string
	logger  = zap.NewNop().Sugar()
	v       *viper.Viper
)

func NewRootCmd() *cobra.Command {
	v = viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:          "spatialbench",
		Short:        "Benchmark spatial query engines on a shared dataset",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfgFile = v.GetString("config")
			l, err := logging.New(v.GetString("log-level"))
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Sync()
		},
	}
	root.PersistentFlags().String("config", "spatialbench.yaml", "config file path")
	root.PersistentFlags().String("log-level", logging.DefaultLevel, "log level (debug, info, warn, error)")
	_ = v.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(newRunCmd())
	root.AddCommand(newSummarizeCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newExportCmd())
	return root
}
