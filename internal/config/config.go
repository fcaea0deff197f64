package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string
	Environment string // ENV: production, development, etc.

	StoreBackend      string // mongo or memory
	MongoURI          string
	MongoDatabase     string
	MongoTransactions bool // requires a replica set
	RedisURI          string
	PostgresURI       string // optional; enables the durable membership event log

	IdentityServiceURL     string
	IdentityTimeout        time.Duration
	IdentityMaxConcurrency int
	IdentityCacheTTL       time.Duration
	MembershipServiceURL   string // empty means membership is checked against the local ChatStore

	CallerIDHeader      string
	GatewaySharedSecret string   // when set, X-Caller-Claims must carry a valid HS256 token
	AllowedOrigins      []string // CORS: from ALLOWED_ORIGINS or FRONTEND_URL

	MessageEditWindow time.Duration // 0 disables the edit window
	PageLimitDefault  int
	PageLimitMax      int

	RateLimitPerMinute int
	TrustProxy         bool // key anonymous rate limits by X-Forwarded-For
	ReconcileInterval  time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE_BACKEND", "mongo")
	v.SetDefault("MONGODB_URI", "mongodb://localhost:27017/conversations")
	v.SetDefault("MONGO_DATABASE", "")
	v.SetDefault("MONGO_TRANSACTIONS", false)
	v.SetDefault("REDIS_URI", "redis://localhost:6379/0")
	v.SetDefault("POSTGRES_URI", "")
	v.SetDefault("IDENTITY_SERVICE_URL", "http://localhost:5001/api")
	v.SetDefault("IDENTITY_TIMEOUT", 5*time.Second)
	v.SetDefault("IDENTITY_MAX_CONCURRENCY", 8)
	v.SetDefault("IDENTITY_CACHE_TTL", 5*time.Minute)
	v.SetDefault("MEMBERSHIP_SERVICE_URL", "")
	v.SetDefault("CALLER_ID_HEADER", "X-User-Id")
	v.SetDefault("GATEWAY_SHARED_SECRET", "")
	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("MESSAGE_EDIT_WINDOW", 15*time.Minute)
	v.SetDefault("PAGE_LIMIT_DEFAULT", 20)
	v.SetDefault("PAGE_LIMIT_MAX", 100)
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 120)
	v.SetDefault("TRUST_PROXY", false)
	v.SetDefault("RECONCILE_INTERVAL", 10*time.Minute)
}

// Load reads configuration from the environment. Callers load .env beforehand.
func Load() *Config {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return fromViper(v)
}

func fromViper(v *viper.Viper) *Config {
	allowedOrigins := parseOrigins(v.GetString("ALLOWED_ORIGINS"))
	if len(allowedOrigins) == 0 {
		allowedOrigins = parseOrigins(v.GetString("FRONTEND_URL"))
	}

	cfg := &Config{
		Port:                   v.GetString("PORT"),
		Environment:            strings.ToLower(strings.TrimSpace(v.GetString("ENV"))),
		StoreBackend:           strings.ToLower(strings.TrimSpace(v.GetString("STORE_BACKEND"))),
		MongoURI:               v.GetString("MONGODB_URI"),
		MongoDatabase:          v.GetString("MONGO_DATABASE"),
		MongoTransactions:      v.GetBool("MONGO_TRANSACTIONS"),
		RedisURI:               v.GetString("REDIS_URI"),
		PostgresURI:            v.GetString("POSTGRES_URI"),
		IdentityServiceURL:     strings.TrimRight(v.GetString("IDENTITY_SERVICE_URL"), "/"),
		IdentityTimeout:        v.GetDuration("IDENTITY_TIMEOUT"),
		IdentityMaxConcurrency: v.GetInt("IDENTITY_MAX_CONCURRENCY"),
		IdentityCacheTTL:       v.GetDuration("IDENTITY_CACHE_TTL"),
		MembershipServiceURL:   strings.TrimRight(v.GetString("MEMBERSHIP_SERVICE_URL"), "/"),
		CallerIDHeader:         v.GetString("CALLER_ID_HEADER"),
		GatewaySharedSecret:    v.GetString("GATEWAY_SHARED_SECRET"),
		AllowedOrigins:         allowedOrigins,
		MessageEditWindow:      v.GetDuration("MESSAGE_EDIT_WINDOW"),
		PageLimitDefault:       v.GetInt("PAGE_LIMIT_DEFAULT"),
		PageLimitMax:           v.GetInt("PAGE_LIMIT_MAX"),
		RateLimitPerMinute:     v.GetInt("RATE_LIMIT_PER_MINUTE"),
		TrustProxy:             v.GetBool("TRUST_PROXY"),
		ReconcileInterval:      v.GetDuration("RECONCILE_INTERVAL"),
	}

	if cfg.IdentityMaxConcurrency <= 0 {
		cfg.IdentityMaxConcurrency = 1
	}
	if cfg.PageLimitMax <= 0 {
		cfg.PageLimitMax = 100
	}
	if cfg.PageLimitDefault <= 0 || cfg.PageLimitDefault > cfg.PageLimitMax {
		cfg.PageLimitDefault = cfg.PageLimitMax
	}
	if cfg.MessageEditWindow < 0 {
		cfg.MessageEditWindow = 0
	}
	if strings.TrimSpace(cfg.CallerIDHeader) == "" {
		cfg.CallerIDHeader = "X-User-Id"
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:3000"}
	}
	return cfg
}

func parseOrigins(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" && !containsOrigin(out, part) {
			out = append(out, part)
		}
	}
	return out
}

func containsOrigin(list []string, o string) bool {
	o = strings.TrimSpace(strings.ToLower(o))
	for _, v := range list {
		if strings.TrimSpace(strings.ToLower(v)) == o {
			return true
		}
	}
	return false
}

// IsProduction returns true when ENV is set to "production".
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// UsesMemoryStore reports whether persistence runs in-process (local development and tests).
func (c *Config) UsesMemoryStore() bool {
	return c.StoreBackend == "memory"
}
