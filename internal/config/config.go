package config

import (
	"fmt"
	"log"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/mandymgr/helseriet-backend/internal/models"
)

type Config struct {
	HTTPPort string `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME"`

	ESURL      string `env:"ES_URL"`
	ESUser     string `env:"ES_USER"`
	ESPassword string `env:"ES_PASSWORD"`

	JWTSecret     string `env:"JWT_SECRET"`
	RefreshSecret string `env:"REFRESH_SECRET"`

	KafkaAddress string `env:"KAFKA_ADDRESS" envDefault:"localhost:9092"`

	Vipps Vipps `envPrefix:"VIPPS_"`
}

type Vipps struct {
	BaseURL              string `env:"BASE_URL" envDefault:"https://apitest.vipps.no"`
	ClientID             string `env:"CLIENT_ID"`
	ClientSecret         string `env:"CLIENT_SECRET"`
	SubscriptionKey      string `env:"SUBSCRIPTION_KEY"`
	MerchantSerialNumber string `env:"MSN"`
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Product{},
		&models.User{},
		&models.RefreshToken{},
		&models.CartItem{},
		&models.Order{},
		&models.OrderItem{},
		&models.Payment{},
	); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
