package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalnine/spatialbench/internal/config"
	"github.com/signalnine/spatialbench/internal/engine"
)

var listVersions bool

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured engines and queries",
		RunE:  runList,
	}
	cmd.Flags().BoolVar(&listVersions, "versions", false, "probe each engine for its version")
	return cmd
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	secrets, err := config.LoadSecrets(cfg.Secrets.EnvFile)
	if err != nil {
		return err
	}
	cfg.ApplySecrets(secrets)

	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ENGINE\tKIND\tVERSION")
	registry := engine.DefaultRegistry()
	for _, e := range cfg.Engines {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Name, e.Kind, engineVersion(cmd.Context(), registry, e))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "QUERY\tDIALECTS\tDESCRIPTION")
	for _, q := range cfg.Queries {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", q.ID, len(q.Dialects), q.Description)
	}
	return tw.Flush()
}

// engineVersion reports the configured version, probing the engine only
// when --versions is set.
func engineVersion(ctx context.Context, registry *engine.Registry, e config.Engine) string {
	if e.Version != "" {
		return e.Version
	}
	if !listVersions {
		return "-"
	}
	a, err := registry.New(e, engine.Options{Logger: logger})
	if err != nil {
		return "error: " + err.Error()
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := a.Connect(ctx); err != nil {
		return "unavailable"
	}
	defer a.Disconnect()
	version, err := a.Version(ctx)
	if err != nil {
		return engine.UnknownVersion
	}
	return version
}
