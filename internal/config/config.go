// Package config содержит логику чтения конфигурации сервиса обмена баллов.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса обмена баллов.
type Config struct {
	RunAddress      string `env:"RUN_ADDRESS"`
	DatabaseURI     string `env:"DATABASE_URI"`
	CatalogAddress  string `env:"CATALOG_ADDRESS"`
	NotifierAddress string `env:"NOTIFIER_ADDRESS"`
	AuthSecret      string `env:"AUTH_SECRET"`

	CartTTLMinutes int `env:"CART_TTL_MINUTES"`
	MaxCartItems   int `env:"MAX_CART_ITEMS"`
	MaxItemQty     int `env:"MAX_ITEM_QTY"`
}

// CartTTL возвращает время жизни неактивной строки корзины.
func (c *Config) CartTTL() time.Duration {
	return time.Duration(c.CartTTLMinutes) * time.Minute
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envCatalogAddress := cfg.CatalogAddress
	envNotifierAddress := cfg.NotifierAddress
	envAuthSecret := cfg.AuthSecret
	envCartTTL := cfg.CartTTLMinutes
	envMaxCartItems := cfg.MaxCartItems
	envMaxItemQty := cfg.MaxItemQty

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.CatalogAddress, "c", "", "catalog service address")
	flag.StringVar(&cfg.NotifierAddress, "n", "", "notification service address")
	flag.StringVar(&cfg.AuthSecret, "s", "pointshop-secret", "secret key for auth cookies")
	flag.IntVar(&cfg.CartTTLMinutes, "ttl", 30, "cart reservation TTL in minutes")
	flag.IntVar(&cfg.MaxCartItems, "max-items", 10, "max distinct articles in a cart")
	flag.IntVar(&cfg.MaxItemQty, "max-qty", 5, "max quantity per cart line")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envCatalogAddress != "" {
		cfg.CatalogAddress = envCatalogAddress
	}
	if envNotifierAddress != "" {
		cfg.NotifierAddress = envNotifierAddress
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}
	if envCartTTL > 0 {
		cfg.CartTTLMinutes = envCartTTL
	}
	if envMaxCartItems > 0 {
		cfg.MaxCartItems = envMaxCartItems
	}
	if envMaxItemQty > 0 {
		cfg.MaxItemQty = envMaxItemQty
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.CartTTLMinutes <= 0 {
		cfg.CartTTLMinutes = 30
	}
	if cfg.MaxCartItems <= 0 {
		cfg.MaxCartItems = 10
	}
	if cfg.MaxItemQty <= 0 {
		cfg.MaxItemQty = 5
	}

	return cfg, nil
}
