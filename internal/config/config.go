// Package config loads process configuration via viper, mirroring
// collab_server/main.go's initConfig.
package config

import "github.com/spf13/viper"

// Config is the process configuration, unmarshaled from YAML via viper.
type Config struct {
	Running struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"running"`
	Store struct {
		// Backend selects the Store implementation: "memory" (default)
		// or "mysql".
		Backend string `mapstructure:"backend"`
		DSN     string `mapstructure:"dsn"`
	} `mapstructure:"store"`
	Redis struct {
		Addrs    []string `mapstructure:"addrs"`
		Password string   `mapstructure:"password"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
	Retry struct {
		MaxSubmitRetries int `mapstructure:"maxSubmitRetries"`
	} `mapstructure:"retry"`
}

// Load reads otsync.yaml from the working directory or ./config, falling
// back to zero-value defaults if no file is present.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("otsync")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetDefault("running.port", 8080)
	v.SetDefault("store.backend", "memory")
	v.SetDefault("retry.maxSubmitRetries", 10)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
