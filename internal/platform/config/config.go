package config

import (
	"os"
	"strings"
	"time"

	pstrings "talentgate/pkg/platform/strings"
)

// Server captures process-level configuration. Policy tables and provider
// limits are loaded separately (see policyfile) and passed into services at
// construction.
type Server struct {
	Addr          string
	PostgresURL   string
	Redis         RedisConfig
	KafkaBrokers  []string
	KafkaTopic    string
	JWTSigningKey string
	// PayloadKey is the base64 key for payload encryption at rest.
	PayloadKey    string
	SweepInterval time.Duration
	PolicyFile    string
}

// RedisConfig holds Redis connection settings. An empty URL means Redis is
// not configured and the in-memory bucket store is used.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("TALENTGATE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	sweep := 1 * time.Minute
	if raw := os.Getenv("TALENTGATE_SWEEP_INTERVAL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			sweep = d
		}
	}

	var brokers []string
	if raw := os.Getenv("TALENTGATE_KAFKA_BROKERS"); raw != "" {
		brokers = pstrings.DedupeAndTrim(strings.Split(raw, ","))
	}
	topic := os.Getenv("TALENTGATE_KAFKA_TOPIC")
	if topic == "" {
		topic = "talentgate.audit"
	}

	jwtSigningKey := os.Getenv("TALENTGATE_JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:          addr,
		PostgresURL:   os.Getenv("TALENTGATE_POSTGRES_URL"),
		Redis:         redisFromEnv(),
		KafkaBrokers:  brokers,
		KafkaTopic:    topic,
		JWTSigningKey: jwtSigningKey,
		PayloadKey:    os.Getenv("TALENTGATE_PAYLOAD_KEY"),
		SweepInterval: sweep,
		PolicyFile:    os.Getenv("TALENTGATE_POLICY_FILE"),
	}
}

func redisFromEnv() RedisConfig {
	return RedisConfig{
		URL:          os.Getenv("TALENTGATE_REDIS_URL"),
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}
