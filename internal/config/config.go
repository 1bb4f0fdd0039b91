package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// DefaultUserID is the user the exam service is queried for when no
// authenticated subject is known.
const DefaultUserID = "507f1f77bcf86cd799439011"

type Config struct {
	Mode     Mode
	HTTPAddr string

	// Remote collaborators
	ExamAPIURL  string // exams, question topics, conversation
	AuthAPIURL  string // users/register, users/login, users/me
	HTTPTimeout time.Duration
	UserID      string

	// Persisted state
	StateDriver string // sqlite|postgres|redis|memory
	StateDSN    string
	RedisAddr   string
	RedisPass   string
	RedisDB     int

	// Token sealing at rest (empty disables sealing)
	TokenPassphrase string
	// HS256 secret for verifying access tokens (empty means read claims unverified)
	AuthHMACSecret string

	UseMockData      bool
	DefaultTimeLimit int // minutes
	SubmitTimeout    time.Duration
	TickInterval     time.Duration

	LogLevel string

	CORSOriginsOnline  []string
	CORSOriginsOffline []string
}

// FromEnv loads an optional .env file and then reads the environment.
func FromEnv() Config {
	_ = godotenv.Load()

	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	return Config{
		Mode:               mode,
		HTTPAddr:           envOr("HTTP_ADDR", ":8080"),
		ExamAPIURL:         strings.TrimSuffix(envOr("EXAM_API_URL", "http://localhost:8000/api/v1"), "/"),
		AuthAPIURL:         strings.TrimSuffix(envOr("AUTH_API_URL", "http://localhost:3001/api"), "/"),
		HTTPTimeout:        envDuration("HTTP_TIMEOUT", 30*time.Second),
		UserID:             envOr("USER_ID", DefaultUserID),
		StateDriver:        envOr("STATE_DRIVER", "sqlite"),
		StateDSN:           envOr("STATE_DSN", ""),
		RedisAddr:          envOr("REDIS_ADDR", "localhost:6379"),
		RedisPass:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:            envInt("REDIS_DB", 0),
		TokenPassphrase:    os.Getenv("TOKEN_PASSPHRASE"),
		AuthHMACSecret:     os.Getenv("AUTH_HMAC_SECRET"),
		UseMockData:        envBool("USE_MOCK_DATA", false),
		DefaultTimeLimit:   envInt("DEFAULT_TIME_LIMIT", 60),
		SubmitTimeout:      envDuration("SUBMIT_TIMEOUT", 10*time.Second),
		TickInterval:       envDuration("TICK_INTERVAL", time.Second),
		LogLevel:           envOr("LOG_LEVEL", "INFO"),
		CORSOriginsOnline:  csvOr("CORS_ORIGINS_ONLINE", "https://genem.app"),
		CORSOriginsOffline: csvOr("CORS_ORIGINS_OFFLINE", "http://localhost:3000,http://localhost:5173"),
	}
}

// CORSOrigins returns the allowed origins for the current mode.
func (c Config) CORSOrigins() []string {
	if c.Mode == ModeOnline {
		return c.CORSOriginsOnline
	}
	return c.CORSOriginsOffline
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}
func envInt(k string, def int) int {
	n, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return def
	}
	return n
}
func envDuration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(k))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
