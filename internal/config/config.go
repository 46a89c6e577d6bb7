package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// PathEnv names the environment variable holding the config file path.
const PathEnv = "CONFIG_PATH"

// Load config from file into the config struct, config must be a pointer to the config struct.
// Values already set in config act as defaults. Every key can be overridden from the
// environment, with "." replaced by "_" (HTTP_PORT overrides http.port). An empty file
// skips the file and reads defaults and environment only.
func Load(file string, config any) error {
	v := viper.New()
	m := make(map[string]any)

	if err := mapstructure.Decode(config, &m); err != nil {
		return fmt.Errorf("mapstructure: %v", err)
	}

	if err := v.MergeConfigMap(m); err != nil {
		return fmt.Errorf("merge config map: %v", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.MergeInConfig(); err != nil {
			return fmt.Errorf("read config from file %s: %v", file, err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("unmarshal config: %v", err)
	}

	return nil
}

// LoadFromEnv loads the file named by CONFIG_PATH.
func LoadFromEnv(config any) error {
	p := os.Getenv(PathEnv)
	if p == "" {
		return fmt.Errorf("%s not set", PathEnv)
	}

	return Load(p, config)
}
