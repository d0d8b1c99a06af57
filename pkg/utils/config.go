package utils

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	SMS      SMSConfig
	OTP      OTPConfig
	Redis    RedisConfig
}

type AppConfig struct {
	Name    string
	Port    string
	Debug   bool
	LogPath string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	MaxConns int32
}

// SMSConfig holds Twilio credentials. BaseURL bisa dioverride untuk testing.
type SMSConfig struct {
	AccountSID     string
	AuthToken      string
	FromNumber     string
	BaseURL        string
	TimeoutSeconds int
}

type OTPConfig struct {
	ExpiryMinutes int
	Length        int
}

// RedisConfig untuk rate limiter. Addr kosong = limiter dimatikan.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	Cooldown    time.Duration
	Window      time.Duration
	MaxInWindow int
}

func LoadConfig() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")

	// Set defaults
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("DEBUG", false)
	viper.SetDefault("DB_MAX_CONNS", 10)
	viper.SetDefault("OTP_EXPIRY_MINUTES", 5)
	viper.SetDefault("OTP_LENGTH", 6)
	viper.SetDefault("LOG_PATH", "logs/")
	viper.SetDefault("SMS_BASE_URL", "https://api.twilio.com")
	viper.SetDefault("SMS_TIMEOUT_SECONDS", 10)
	viper.SetDefault("OTP_RATE_COOLDOWN_SECONDS", 60)
	viper.SetDefault("OTP_RATE_WINDOW_MINUTES", 15)
	viper.SetDefault("OTP_RATE_MAX_IN_WINDOW", 5)

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	viper.AutomaticEnv()

	config := &Config{
		App: AppConfig{
			Name:    viper.GetString("APP_NAME"),
			Port:    viper.GetString("PORT"),
			Debug:   viper.GetBool("DEBUG"),
			LogPath: viper.GetString("LOG_PATH"),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			Name:     viper.GetString("DB_NAME"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASS"),
			MaxConns: viper.GetInt32("DB_MAX_CONNS"),
		},
		SMS: SMSConfig{
			AccountSID:     viper.GetString("TWILIO_ACCOUNT_SID"),
			AuthToken:      viper.GetString("TWILIO_AUTH_TOKEN"),
			FromNumber:     viper.GetString("TWILIO_PHONE_NUMBER"),
			BaseURL:        viper.GetString("SMS_BASE_URL"),
			TimeoutSeconds: viper.GetInt("SMS_TIMEOUT_SECONDS"),
		},
		OTP: OTPConfig{
			ExpiryMinutes: viper.GetInt("OTP_EXPIRY_MINUTES"),
			Length:        viper.GetInt("OTP_LENGTH"),
		},
		Redis: RedisConfig{
			Addr:        viper.GetString("REDIS_ADDR"),
			Password:    viper.GetString("REDIS_PASS"),
			DB:          viper.GetInt("REDIS_DB"),
			Cooldown:    time.Duration(viper.GetInt("OTP_RATE_COOLDOWN_SECONDS")) * time.Second,
			Window:      time.Duration(viper.GetInt("OTP_RATE_WINDOW_MINUTES")) * time.Minute,
			MaxInWindow: viper.GetInt("OTP_RATE_MAX_IN_WINDOW"),
		},
	}

	return config, nil
}
