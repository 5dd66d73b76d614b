package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// LoadSecrets reads a dotenv file. An empty path yields no secrets.
func LoadSecrets(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	secrets, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("reading secrets %s: %w", path, err)
	}
	return secrets, nil
}

// ApplySecrets merges secrets into every engine's env without overriding
// values set explicitly in the config, then expands ${VAR} references in
// DSNs and env values. Unresolved references fall back to the process
// environment.
func (c *Config) ApplySecrets(secrets map[string]string) {
	lookup := func(key string) string {
		if v, ok := secrets[key]; ok {
			return v
		}
		return os.Getenv(key)
	}
	for i := range c.Engines {
		e := &c.Engines[i]
		if e.Env == nil && len(secrets) > 0 {
			e.Env = make(map[string]string, len(secrets))
		}
		for k, v := range e.Env {
			e.Env[k] = os.Expand(v, lookup)
		}
		for k, v := range secrets {
			if _, ok := e.Env[k]; !ok {
				e.Env[k] = v
			}
		}
		e.DSN = os.Expand(e.DSN, lookup)
	}
}
