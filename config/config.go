// Package config provides centralized management for application settings, defaults, and the Viper-based configuration engine.
package config

import (
	"strings"
	"time"

	"github.com/playbridge/playbridge/constant"
	"github.com/playbridge/playbridge/filesystem"
	"github.com/playbridge/playbridge/where"
	"github.com/spf13/viper"
)

// EnvKeyReplacer is a strings.Replacer used to normalize configuration keys into environment variable naming conventions.
var EnvKeyReplacer = strings.NewReplacer(".", "_")

// Setup initializes the global configuration state, including defaults, environment bindings, and localized file resolution.
func Setup() error {
	viper.SetConfigName(constant.App)
	viper.SetConfigType("toml")
	viper.SetFs(filesystem.API())
	viper.AddConfigPath(where.Config())

	// Synchronize environment variable bindings.
	viper.SetEnvPrefix(constant.App)
	viper.SetEnvKeyReplacer(EnvKeyReplacer)
	for _, env := range EnvExposed {
		viper.MustBindEnv(env)
	}

	// Initialize factory default values.
	viper.SetTypeByDefaultValue(true)
	for name, field := range Default {
		viper.SetDefault(name, field.Value)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return err
	}

	return nil
}

// Duration reads a duration-valued key, falling back to the registered default when
// the configured value does not parse.
func Duration(k string) time.Duration {
	if d, err := time.ParseDuration(viper.GetString(k)); err == nil && d >= 0 {
		return d
	}

	if field, ok := Default[k]; ok {
		if s, ok := field.Value.(string); ok {
			if d, err := time.ParseDuration(s); err == nil {
				return d
			}
		}
	}

	return 0
}
