package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Gateway  GatewayConfig
	Referral ReferralConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path             string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	ConnMaxIdleTime  time.Duration
	PingTimeout      time.Duration
	CreateDummyUsers bool
	OffersFile       string
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr            string
	AdminApiKey     string
	ShutdownTimeout time.Duration
}

// GatewayConfig holds payment gateway settings
type GatewayConfig struct {
	BaseUrl       string
	ApiKey        string
	WebhookSecret string
	Timeout       time.Duration
	ArrivalOffset time.Duration
}

// ReferralConfig holds referral reward settings
type ReferralConfig struct {
	DefaultRewardAmount decimal.Decimal
}
