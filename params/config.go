package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Server struct {
	Addr        string
	CORSOrigins []string
	Env         string // "development" enables stack traces in error responses
}

type Wallet struct {
	PrivateKey    string // never logged
	FunderAddress string
	SignatureType int // 0 = EOA, 1 = POLY_PROXY, 2 = POLY_GNOSIS_SAFE
}

type Upstream struct {
	ClobHost         string
	GammaHost        string
	ChainID          int64
	MarketSlugPrefix string
	HTTPTimeout      time.Duration
}

// Timing holds the fixed waits of the order workflow.
//
// CredentialDelay runs between API key derivation and building the
// authenticated client, SessionDelay after the client is built, and
// SubmitDelay right before the order is posted.
type Timing struct {
	CredentialDelay time.Duration
	SessionDelay    time.Duration
	SubmitDelay     time.Duration
}

type Logging struct {
	File  string
	Level string
}

type Storage struct {
	JournalPath string // empty disables the order journal
}

type Config struct {
	Server   Server
	Wallet   Wallet
	Upstream Upstream
	Timing   Timing
	Logging  Logging
	Storage  Storage
}

func Default() Config {
	return Config{
		Server: Server{
			Addr:        ":3000",
			CORSOrigins: []string{"*"},
			Env:         "production",
		},
		Wallet: Wallet{
			SignatureType: 1,
		},
		Upstream: Upstream{
			ClobHost:         "https://clob.polymarket.com",
			GammaHost:        "https://gamma-api.polymarket.com",
			ChainID:          137, // Polygon mainnet
			MarketSlugPrefix: "btc-updown-15m-",
			HTTPTimeout:      30 * time.Second,
		},
		Timing: Timing{
			CredentialDelay: 500 * time.Millisecond,
			SessionDelay:    0,
			SubmitDelay:     1000 * time.Millisecond,
		},
		Logging: Logging{
			Level: "info",
		},
	}
}

// IsDevelopment reports whether verbose error details may be returned.
func (c Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Addr = ":" + port
	}
	cfg.Server.Addr = getEnv("API_ADDR", cfg.Server.Addr)
	cfg.Server.Env = getEnv("APP_ENV", getEnv("NODE_ENV", cfg.Server.Env))
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.Server.CORSOrigins = splitList(origins)
	}

	cfg.Wallet.PrivateKey = os.Getenv("PRIVATE_KEY")
	cfg.Wallet.FunderAddress = os.Getenv("FUNDER_ADDRESS")
	if st := os.Getenv("SIGNATURE_TYPE"); st != "" {
		if n, err := strconv.Atoi(st); err == nil {
			cfg.Wallet.SignatureType = n
		}
	}

	cfg.Upstream.ClobHost = strings.TrimRight(getEnv("CLOB_HOST", cfg.Upstream.ClobHost), "/")
	cfg.Upstream.GammaHost = strings.TrimRight(getEnv("GAMMA_HOST", cfg.Upstream.GammaHost), "/")
	cfg.Upstream.MarketSlugPrefix = getEnv("MARKET_SLUG_PREFIX", cfg.Upstream.MarketSlugPrefix)
	if chain := os.Getenv("CHAIN_ID"); chain != "" {
		if n, err := strconv.ParseInt(chain, 10, 64); err == nil {
			cfg.Upstream.ChainID = n
		}
	}
	cfg.Upstream.HTTPTimeout = getEnvMillis("HTTP_TIMEOUT_MS", cfg.Upstream.HTTPTimeout)

	cfg.Timing.CredentialDelay = getEnvMillis("CREDENTIAL_DELAY_MS", cfg.Timing.CredentialDelay)
	cfg.Timing.SessionDelay = getEnvMillis("SESSION_DELAY_MS", cfg.Timing.SessionDelay)
	cfg.Timing.SubmitDelay = getEnvMillis("SUBMIT_DELAY_MS", cfg.Timing.SubmitDelay)

	cfg.Logging.File = os.Getenv("LOG_FILE")
	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)

	cfg.Storage.JournalPath = os.Getenv("JOURNAL_PATH")

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvMillis reads a non-negative millisecond count; malformed values keep the default.
func getEnvMillis(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	ms, err := strconv.Atoi(value)
	if err != nil || ms < 0 {
		return defaultValue
	}
	return time.Duration(ms) * time.Millisecond
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
