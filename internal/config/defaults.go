package config

import (
	"time"

	"github.com/spf13/viper"
)

// SetDefaults registers default values for every configuration key.
func SetDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.file", "")

	viper.SetDefault("run.interrupt_timeout", time.Duration(0))
	viper.SetDefault("run.allow_concurrent_send", false)

	viper.SetDefault("approval.timeout", 5*time.Minute)
	viper.SetDefault("approval.max_pending", 100)
	viper.SetDefault("approval.audit", true)

	viper.SetDefault("storage.path", "")

	viper.SetDefault("gateway.host", "127.0.0.1")
	viper.SetDefault("gateway.port", 8787)

	viper.SetDefault("jsvm.timeout", 10*time.Second)
}
