// Package config reads process configuration from the environment, with an
// optional .env file for local runs.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	ListenAddr string
	// MaxBalance caps every account balance; consulted on every
	// balance-increasing path.
	MaxBalance decimal.Decimal
	// DatabaseURL selects the Postgres store when set; empty means the
	// in-memory store.
	DatabaseURL string
	// KafkaBrokers enables event publishing when non-empty.
	KafkaBrokers []string
	KafkaTopic   string
}

const defaultMaxBalance = "50000.00"

// Load reads .env (if present) and the environment.
func Load() (Config, error) {
	godotenv.Load()

	cfg := Config{
		ListenAddr:  getenv("LISTEN_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		KafkaTopic:  getenv("KAFKA_TOPIC", "ledger_entry_committed"),
	}

	raw := getenv("MAX_BALANCE", defaultMaxBalance)
	max, err := decimal.NewFromString(raw)
	if err != nil || max.Sign() <= 0 {
		return Config{}, fmt.Errorf("invalid MAX_BALANCE %q", raw)
	}
	cfg.MaxBalance = max

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
