package configs

import (
	"flag"
	"os"

	"github.com/hilthontt/impostor/internal/infrastructure/env"
)

// DetermineConfigPath resolves the config file from --config, IMPOSTOR_CONFIG or a list of
// well-known locations. An empty result means "run on defaults and environment only".
func DetermineConfigPath() string {
	var configPath string

	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	if configPath == "" {
		configPath = env.GetString("IMPOSTOR_CONFIG", "")
	}

	if configPath == "" {
		candidates := []string{
			"./config.yaml",
			"./config.yml",
			"../../config.yaml", // keep for local dev
			"/etc/impostor/config.yaml",
			"/app/config.yaml", // common in Docker
		}

		for _, p := range candidates {
			if _, err := os.Stat(p); err == nil {
				configPath = p
				break
			}
		}
	}

	return configPath
}
