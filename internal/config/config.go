package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cron      CronConfig      `mapstructure:"cron"`
	PrizePool PrizePoolConfig `mapstructure:"prize_pool"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type RedisConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Addr           string        `mapstructure:"addr"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	LeaderboardTTL time.Duration `mapstructure:"leaderboard_ttl"`
}

type CronConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	AutoSettleCheck string `mapstructure:"auto_settle_check"`
}

// PrizePoolConfig holds the pool base amount and the seed defaults for the
// auto-settlement config row. The DB row is authoritative after first boot;
// these values are only applied when the row does not exist yet.
type PrizePoolConfig struct {
	BaseAmount string           `mapstructure:"base_amount"`
	AutoSettle AutoSettleConfig `mapstructure:"auto_settle"`
}

type AutoSettleConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	DayOfMonth int  `mapstructure:"day_of_month"`
	Hour       int  `mapstructure:"hour"`
	Minute     int  `mapstructure:"minute"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HWP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.leaderboard_ttl", "30s")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.auto_settle_check", "@every 1m")
	v.SetDefault("prize_pool.base_amount", "200")
	v.SetDefault("prize_pool.auto_settle.enabled", false)
	v.SetDefault("prize_pool.auto_settle.day_of_month", 1)
	v.SetDefault("prize_pool.auto_settle.hour", 2)
	v.SetDefault("prize_pool.auto_settle.minute", 0)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
