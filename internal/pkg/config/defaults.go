package config

import "time"

// Default values for configuration.
const (
	// Telegram defaults
	DefaultParseMode       = "MarkdownV2"
	DefaultPageSize        = 20
	DefaultOutdatedTimeout = 5 * time.Minute
	DefaultDeleteTimeout   = 2 * time.Minute
	DefaultPollTimeout     = 60

	// MaxPageSize: 2 кнопки в ряду, не более 24 рядов объектов плюс ряд навигации.
	MaxPageSize = 48

	// Wialon defaults
	DefaultWialonHost     = "https://hst-api.wialon.com"
	DefaultRequestTimeout = 30 * time.Second
	DefaultRateLimit      = 10.0
	DefaultBurst          = 5
	DefaultLoginRetries   = 2
	DefaultLogoutTimeout  = 10 * time.Second

	// Health server defaults
	DefaultHealthHost      = "0.0.0.0"
	DefaultHealthPort      = 8080
	DefaultShutdownTimeout = 15 * time.Second

	// Logging defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

func defaultConfig() *Config {
	return &Config{
		Telegram: Telegram{
			BotProps:        BotProps{ParseMode: DefaultParseMode},
			PageSize:        DefaultPageSize,
			OutdatedTimeout: DefaultOutdatedTimeout,
			DeleteTimeout:   DefaultDeleteTimeout,
			PollTimeout:     DefaultPollTimeout,
		},
		Wialon: Wialon{
			Host:           DefaultWialonHost,
			RequestTimeout: DefaultRequestTimeout,
			RateLimit:      DefaultRateLimit,
			Burst:          DefaultBurst,
			LoginRetries:   DefaultLoginRetries,
			LogoutTimeout:  DefaultLogoutTimeout,
		},
		Health: Health{
			Host:            DefaultHealthHost,
			Port:            DefaultHealthPort,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Logging: Logging{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
