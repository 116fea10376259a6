package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App struct {
		Env string `mapstructure:"env"`
	} `mapstructure:"app"`
	DB struct {
		Path        string        `mapstructure:"path"`
		MaxConns    int           `mapstructure:"max_connections"`
		ConnTimeout time.Duration `mapstructure:"connection_timeout"`
		UseWAL      bool          `mapstructure:"use_wal"`
	} `mapstructure:"db"`
	Log struct {
		File string `mapstructure:"file"`
	} `mapstructure:"log"`
}

func LoadConfig() (cfg Config, err error) {

	err = godotenv.Load()
	if err != nil {
		log.Println("warning: .env file not found, use default.")
	}

	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	if err = viper.ReadInConfig(); err != nil {
		log.Printf("note: config.yaml not found, read .env only. Error: %v", err)
	}

	viper.SetDefault("app.env", "development")
	viper.SetDefault("db.path", "data/folio.db")
	viper.SetDefault("db.max_connections", 5)
	viper.SetDefault("db.connection_timeout", 5*time.Second)
	viper.SetDefault("db.use_wal", true)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.BindEnv("app.env", "APP_ENV")
	viper.BindEnv("db.path", "DB_PATH")
	viper.BindEnv("db.max_connections", "DB_MAX_CONNECTIONS")
	viper.BindEnv("db.connection_timeout", "DB_CONNECTION_TIMEOUT")
	viper.BindEnv("db.use_wal", "DB_USE_WAL")
	viper.BindEnv("log.file", "LOG_FILE")

	err = viper.Unmarshal(&cfg)
	return
}
