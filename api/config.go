package api

import (
	"crypto/ed25519"
	"time"
)

type ServerConfig struct {
	// InstanceID 同時作為消費者群組中的 consumer 名稱
	InstanceID string

	DB      DBConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Bidding BiddingConfig
	Reaper  ReaperConfig
}

type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     int
	Database string
	Schema   string
}

// RedisConfig Addr 為空時以單一實例模式運作
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string

	StreamKeys    RedisStreamKeys
	ConsumerGroup string
}

type RedisStreamKeys struct {
	SSE           string
	Notifications string
}

type AuthConfig struct {
	PrivateKey ed25519.PrivateKey
	Issuer     string
	Audience   string
}

type BiddingConfig struct {
	// Timeout 單筆交易的逾時時間
	Timeout time.Duration
}

type ReaperConfig struct {
	Interval              time.Duration
	RecentWindow          time.Duration
	MaxWindow             time.Duration
	BatchSize             int
	MaxFailures           int
	RefundIncrementLosers bool
}
