package main

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"bidhall/api"
)

func ParseArgs() (Args, error) {
	return parseArgs(pflag.CommandLine, viper.GetViper(), os.Args[1:])
}

func parseArgs(flags *pflag.FlagSet, v *viper.Viper, arguments []string) (Args, error) {
	hostname, _ := os.Hostname()

	// server config
	flags.String("server-url", "0.0.0.0:8080", "")
	flags.String("instance-id", hostname, "consumer name of this replica in the notification group")

	// db config
	flags.String("db-user", "", "")
	flags.String("db-password", "", "")
	flags.String("db-host", "", "")
	flags.Int("db-port", 5432, "")
	flags.String("db-database", "", "")
	flags.String("db-schema", "", "")

	// redis config
	flags.String("redis-addr", "", "leave empty to run as a single instance")
	flags.String("redis-password", "", "")
	flags.Int("redis-db", 15, "")
	flags.String("redis-key-prefix", "bidhall:", "")

	// redis stream keys
	flags.String("redis-stream-key-for-sse", "bidhall-shared-sse-stream", "")
	flags.String("redis-stream-key-for-notifications", "bidhall-notification-stream", "")
	flags.String("redis-consumer-group", "bidhall-notifier", "")

	// auth config
	flags.String("auth-private-key", "", "base64 encoded ed25519 seed")
	flags.String("auth-issuer", "", "")
	flags.String("auth-audience", "", "")

	// bidding config
	flags.Duration("bid-timeout", 0, "timeout of a single bidding transaction, 0 uses the default")

	// reaper config
	flags.Duration("reaper-interval", 0, "")
	flags.Duration("reaper-recent-window", 0, "")
	flags.Duration("reaper-max-window", 0, "")
	flags.Int("reaper-batch-size", 0, "")
	flags.Int("reaper-max-failures", 0, "consecutive failures before an auction is retried after other candidates")
	flags.Bool("reaper-refund-increment-losers", false, "refund losing bids of increment auctions at settlement")

	// bind pflag to viper
	if err := flags.Parse(arguments); err != nil {
		return Args{}, err
	}
	if err := v.BindPFlags(flags); err != nil {
		return Args{}, err
	}
	v.AutomaticEnv()
	v.SetEnvPrefix("BIDHALL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	privateKey, err := decodePrivateKey(v.GetString("auth-private-key"))
	if err != nil {
		return Args{}, err
	}

	// initial arguments
	return Args{
		ServerURL: v.GetString("server-url"),
		ServerConfig: api.ServerConfig{
			InstanceID: v.GetString("instance-id"),
			DB: api.DBConfig{
				User:     v.GetString("db-user"),
				Password: v.GetString("db-password"),
				Host:     v.GetString("db-host"),
				Port:     v.GetInt("db-port"),
				Database: v.GetString("db-database"),
				Schema:   v.GetString("db-schema"),
			},
			Redis: api.RedisConfig{
				Addr:      v.GetString("redis-addr"),
				Password:  v.GetString("redis-password"),
				DB:        v.GetInt("redis-db"),
				KeyPrefix: v.GetString("redis-key-prefix"),
				StreamKeys: api.RedisStreamKeys{
					SSE:           v.GetString("redis-stream-key-for-sse"),
					Notifications: v.GetString("redis-stream-key-for-notifications"),
				},
				ConsumerGroup: v.GetString("redis-consumer-group"),
			},
			Auth: api.AuthConfig{
				PrivateKey: privateKey,
				Issuer:     v.GetString("auth-issuer"),
				Audience:   v.GetString("auth-audience"),
			},
			Bidding: api.BiddingConfig{
				Timeout: v.GetDuration("bid-timeout"),
			},
			Reaper: api.ReaperConfig{
				Interval:              v.GetDuration("reaper-interval"),
				RecentWindow:          v.GetDuration("reaper-recent-window"),
				MaxWindow:             v.GetDuration("reaper-max-window"),
				BatchSize:             v.GetInt("reaper-batch-size"),
				MaxFailures:           v.GetInt("reaper-max-failures"),
				RefundIncrementLosers: v.GetBool("reaper-refund-increment-losers"),
			},
		},
	}, nil
}

// decodePrivateKey 接受 32 bytes 的 seed 或 64 bytes 的完整私鑰
func decodePrivateKey(encoded string) (ed25519.PrivateKey, error) {
	if encoded == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("auth-private-key is not valid base64: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	default:
		return nil, fmt.Errorf("auth-private-key must be %d or %d bytes, got %d", ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}
}

type Args struct {
	ServerURL    string
	ServerConfig api.ServerConfig
}

func (args Args) Validate() error {
	config := args.ServerConfig
	var errs []error
	if args.ServerURL == "" {
		errs = append(errs, errors.New("server-url is required"))
	}
	if config.DB.Host == "" || config.DB.User == "" || config.DB.Database == "" {
		errs = append(errs, errors.New("db-host, db-user and db-database are required"))
	}
	if config.Auth.PrivateKey == nil {
		errs = append(errs, errors.New("auth-private-key is required"))
	}
	if config.Redis.Addr != "" {
		if config.InstanceID == "" {
			errs = append(errs, errors.New("instance-id is required when redis is enabled"))
		}
		if config.Redis.StreamKeys.SSE == "" || config.Redis.StreamKeys.Notifications == "" || config.Redis.ConsumerGroup == "" {
			errs = append(errs, errors.New("redis stream keys and consumer group are required when redis is enabled"))
		}
	}
	return errors.Join(errs...)
}
