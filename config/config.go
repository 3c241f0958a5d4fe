package config

import (
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Development    bool     `mapstructure:"development"`
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type JWTConfig struct {
	Secret     string `mapstructure:"secret"`
	Expiration string `mapstructure:"expiration"`
}

// PushConfig points at the downstream push-notification service the API
// forwards to. Delivery mechanics live entirely on that side.
type PushConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"apiKey"`
}

// ChatConfig configures the chat-completion provider used by the assistant
// endpoint. SystemPrompt is prepended to every forwarded conversation.
type ChatConfig struct {
	URL          string `mapstructure:"url"`
	APIKey       string `mapstructure:"apiKey"`
	Model        string `mapstructure:"model"`
	SystemPrompt string `mapstructure:"systemPrompt"`
}

type BarcodeConfig struct {
	LookupURL string `mapstructure:"lookupURL"`
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Push     PushConfig     `mapstructure:"push"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Barcode  BarcodeConfig  `mapstructure:"barcode"`
}

// LoadConfig reads configuration from config.yaml in the given path and
// overrides individual keys from environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()

	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.development", "SERVER_DEVELOPMENT")
	viper.BindEnv("database.dsn", "DATABASE_DSN")
	viper.BindEnv("jwt.secret", "JWT_SECRET")
	viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	viper.BindEnv("push.url", "PUSH_SERVICE_URL")
	viper.BindEnv("push.apiKey", "PUSH_SERVICE_API_KEY")
	viper.BindEnv("chat.url", "CHAT_PROVIDER_URL")
	viper.BindEnv("chat.apiKey", "CHAT_PROVIDER_API_KEY")
	viper.BindEnv("chat.model", "CHAT_MODEL")
	viper.BindEnv("chat.systemPrompt", "CHAT_SYSTEM_PROMPT")
	viper.BindEnv("barcode.lookupURL", "BARCODE_LOOKUP_URL")

	// Missing config file is fine: environment variables alone can carry
	// the full configuration in container deployments.
	err = viper.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
		err = nil
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if config.Server.Port == "" {
		config.Server.Port = "8080"
	}
	if config.JWT.Expiration == "" {
		config.JWT.Expiration = "24h"
	}
	return
}
