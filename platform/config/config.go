package config

import (
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/viper"
)

type Database struct {
	User     string
	Addr     string
	Password string
	Name     string
	// Store selects "postgres" or "memory".
	Store            string
	LockTimeout      time.Duration
	StatementTimeout time.Duration
	TxRetries        int
}

type Runner struct {
	Interval        time.Duration
	RoundCap        int
	TickTimeout     time.Duration
	DecisionURL     string
	DecisionTimeout time.Duration
}

type Config struct {
	AppPort         string
	SocketPort      string
	RedisURL        string
	RabbitMQURL     string
	JWTSecret       string
	AllowedOrigins  []string
	StartingBalance int
	LogLevel        string
	LogFormat       string
	Database        Database
	Runner          Runner
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "4101")
	v.SetDefault("SOCKET_PORT", "8000")
	v.SetDefault("DB_ADDR", "localhost:5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_NAME", "monopoly")
	v.SetDefault("STORE", "postgres")
	v.SetDefault("DB_LOCK_TIMEOUT", "2s")
	v.SetDefault("DB_STATEMENT_TIMEOUT", "5s")
	v.SetDefault("DB_TX_RETRIES", 3)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("JWT_SECRET", "secret")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("STARTING_BALANCE", 1500)
	v.SetDefault("RUNNER_INTERVAL", "3s")
	v.SetDefault("RUNNER_ROUND_CAP", 100)
	v.SetDefault("RUNNER_TICK_TIMEOUT", "10s")
	v.SetDefault("AGENT_DECISION_URL", "")
	v.SetDefault("AGENT_DECISION_TIMEOUT", "2s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
}

// Load reads the environment (and .env, through godotenv) on top of the
// defaults.
func Load() *Config {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return fromViper(v)
}

func fromViper(v *viper.Viper) *Config {
	var origins []string
	for _, o := range strings.Split(v.GetString("ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return &Config{
		AppPort:         v.GetString("APP_PORT"),
		SocketPort:      v.GetString("SOCKET_PORT"),
		RedisURL:        v.GetString("REDIS_URL"),
		RabbitMQURL:     v.GetString("RABBITMQ_URL"),
		JWTSecret:       v.GetString("JWT_SECRET"),
		AllowedOrigins:  origins,
		StartingBalance: v.GetInt("STARTING_BALANCE"),
		LogLevel:        v.GetString("LOG_LEVEL"),
		LogFormat:       v.GetString("LOG_FORMAT"),
		Database: Database{
			User:             v.GetString("DB_USER"),
			Addr:             v.GetString("DB_ADDR"),
			Password:         v.GetString("DB_PASSWORD"),
			Name:             v.GetString("DB_NAME"),
			Store:            strings.ToLower(v.GetString("STORE")),
			LockTimeout:      v.GetDuration("DB_LOCK_TIMEOUT"),
			StatementTimeout: v.GetDuration("DB_STATEMENT_TIMEOUT"),
			TxRetries:        v.GetInt("DB_TX_RETRIES"),
		},
		Runner: Runner{
			Interval:        v.GetDuration("RUNNER_INTERVAL"),
			RoundCap:        v.GetInt("RUNNER_ROUND_CAP"),
			TickTimeout:     v.GetDuration("RUNNER_TICK_TIMEOUT"),
			DecisionURL:     v.GetString("AGENT_DECISION_URL"),
			DecisionTimeout: v.GetDuration("AGENT_DECISION_TIMEOUT"),
		},
	}
}
