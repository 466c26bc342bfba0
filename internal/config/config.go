package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Khalti   KhaltiConfig
	Session  SessionConfig
	Telegram TelegramConfig
	Return   ReturnConfig
	Cron     CronConfig
}

type ServerConfig struct {
	Port    int
	Env     string // "development", "production"
	BaseURL string // public URL used to build gateway return links
}

type DatabaseConfig struct {
	Host    string
	Port    string
	Name    string
	User    string
	Pass    string
	Charset string
}

type RedisConfig struct {
	Addr string
	Pass string
	DB   int
}

type KhaltiConfig struct {
	SecretKey  string
	Sandbox    bool
	WebsiteURL string
}

type SessionConfig struct {
	APIKey string
	TTL    time.Duration
}

type TelegramConfig struct {
	Token  string
	ChatID string
}

type ReturnConfig struct {
	HomePath     string
	Countdown    time.Duration
	SupportEmail string
	SupportPhone string
}

type CronConfig struct {
	ReconcileSpec  string
	ReconcileAfter time.Duration
	ExpireSpec     string
	ExpireAfter    time.Duration
}

// Load reads configuration from .env file and environment variables.
func Load() (*Config, error) {
	// Load .env file (ignore error if missing)
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("APP_PORT", 8080)
	viper.SetDefault("APP_ENV", "production")
	viper.SetDefault("APP_BASE_URL", "http://localhost:8080")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "3306")
	viper.SetDefault("DB_CHARSET", "utf8mb4")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("KHALTI_SANDBOX", true)
	viper.SetDefault("SESSION_TTL", "12h")
	viper.SetDefault("RETURN_HOME_PATH", "/")
	viper.SetDefault("RETURN_COUNTDOWN", "5s")
	viper.SetDefault("CRON_RECONCILE_SPEC", "0 */1 * * * *")
	viper.SetDefault("CRON_RECONCILE_AFTER", "2m")
	viper.SetDefault("CRON_EXPIRE_SPEC", "0 0 * * * *")
	viper.SetDefault("CRON_EXPIRE_AFTER", "24h")

	cfg := &Config{
		Server: ServerConfig{
			Port:    viper.GetInt("APP_PORT"),
			Env:     viper.GetString("APP_ENV"),
			BaseURL: viper.GetString("APP_BASE_URL"),
		},
		Database: DatabaseConfig{
			Host:    viper.GetString("DB_HOST"),
			Port:    viper.GetString("DB_PORT"),
			Name:    viper.GetString("DB_NAME"),
			User:    viper.GetString("DB_USER"),
			Pass:    viper.GetString("DB_PASS"),
			Charset: viper.GetString("DB_CHARSET"),
		},
		Redis: RedisConfig{
			Addr: viper.GetString("REDIS_ADDR"),
			Pass: viper.GetString("REDIS_PASS"),
			DB:   viper.GetInt("REDIS_DB"),
		},
		Khalti: KhaltiConfig{
			SecretKey:  viper.GetString("KHALTI_SECRET_KEY"),
			Sandbox:    viper.GetBool("KHALTI_SANDBOX"),
			WebsiteURL: viper.GetString("KHALTI_WEBSITE_URL"),
		},
		Session: SessionConfig{
			APIKey: viper.GetString("ADMIN_API_KEY"),
			TTL:    durationOr("SESSION_TTL", 12*time.Hour),
		},
		Telegram: TelegramConfig{
			Token:  viper.GetString("TELEGRAM_BOT_TOKEN"),
			ChatID: viper.GetString("TELEGRAM_CHAT_ID"),
		},
		Return: ReturnConfig{
			HomePath:     viper.GetString("RETURN_HOME_PATH"),
			Countdown:    durationOr("RETURN_COUNTDOWN", 5*time.Second),
			SupportEmail: viper.GetString("SUPPORT_EMAIL"),
			SupportPhone: viper.GetString("SUPPORT_PHONE"),
		},
		Cron: CronConfig{
			ReconcileSpec:  viper.GetString("CRON_RECONCILE_SPEC"),
			ReconcileAfter: durationOr("CRON_RECONCILE_AFTER", 2*time.Minute),
			ExpireSpec:     viper.GetString("CRON_EXPIRE_SPEC"),
			ExpireAfter:    durationOr("CRON_EXPIRE_AFTER", 24*time.Hour),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = "http://localhost:8080"
	}
	if cfg.Khalti.WebsiteURL == "" {
		cfg.Khalti.WebsiteURL = cfg.Server.BaseURL
	}

	if cfg.Database.Name == "" {
		log.Println("WARNING: DB_NAME is not set")
	}
	if cfg.Khalti.SecretKey == "" {
		log.Println("WARNING: KHALTI_SECRET_KEY is not set")
	}
	if cfg.Session.APIKey == "" {
		log.Println("WARNING: ADMIN_API_KEY is not set, admin sessions cannot be issued")
	}

	return cfg, nil
}

// LoadDatabaseOnly reads just the database settings, for schema bootstrap runs.
func LoadDatabaseOnly() (*DatabaseConfig, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	return &cfg.Database, nil
}

// IsDevelopment reports whether verbose development logging is wanted.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// DSN returns the MySQL DSN string for GORM.
func (d *DatabaseConfig) DSN() string {
	return d.User + ":" + d.Pass + "@tcp(" + d.Host + ":" + d.Port + ")/" + d.Name + "?charset=" + d.Charset + "&parseTime=True&loc=Local"
}

func durationOr(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(viper.GetString(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
