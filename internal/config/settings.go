package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	logrus "github.com/sirupsen/logrus"
)

// Settings is the runtime configuration read from the environment.
type Settings struct {
	Port                 string
	JWTSecret            string
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	OTPTTL               time.Duration
	OTPMaxAttempts       int
	AdminPhones          []string
	PaymentWebhookSecret string
	CORSOrigins          []string
	LogLevel             string
	LogStdout            bool
}

// Current holds the settings the process was started with. Defaults apply until Load runs.
var Current = Defaults()

// Defaults returns the settings used when nothing is configured.
func Defaults() Settings {
	return Settings{
		Port:            "8080",
		JWTSecret:       "supersecret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 30 * 24 * time.Hour,
		OTPTTL:          5 * time.Minute,
		OTPMaxAttempts:  5,
		LogLevel:        "debug",
	}
}

// Load reads .env (if present) and the environment into Current.
func Load() Settings {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, relying on env vars")
	}

	d := Defaults()
	s := Settings{
		Port:                 getEnv("PORT", d.Port),
		JWTSecret:            getEnv("JWT_SECRET", d.JWTSecret),
		AccessTokenTTL:       getDuration("ACCESS_TOKEN_TTL", d.AccessTokenTTL),
		RefreshTokenTTL:      getDuration("REFRESH_TOKEN_TTL", d.RefreshTokenTTL),
		OTPTTL:               getDuration("OTP_TTL", d.OTPTTL),
		OTPMaxAttempts:       getInt("OTP_MAX_ATTEMPTS", d.OTPMaxAttempts),
		AdminPhones:          getList("ADMIN_PHONES"),
		PaymentWebhookSecret: getEnv("PAYMENT_WEBHOOK_SECRET", ""),
		CORSOrigins:          getList("CORS_ORIGINS"),
		LogLevel:             getEnv("LOG_LEVEL", d.LogLevel),
		LogStdout:            getEnv("LOG_STDOUT", "") == "true",
	}
	if s.JWTSecret == d.JWTSecret {
		logrus.Warn("JWT_SECRET not set, using the development fallback")
	}

	Current = s
	return s
}

// IsAdminPhone reports whether phone is listed in ADMIN_PHONES.
func (s Settings) IsAdminPhone(phone string) bool {
	for _, p := range s.AdminPhones {
		if p == phone {
			return true
		}
	}
	return false
}

// getEnv reads an environment variable or returns the provided default
func getEnv(key, defaultValue string) string {
	if v, exists := os.LookupEnv(key); exists {
		return v
	}
	return defaultValue
}

func getDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logrus.WithError(err).Warnf("invalid %s, using %s", key, def)
		return def
	}
	return d
}

func getInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logrus.WithError(err).Warnf("invalid %s, using %d", key, def)
		return def
	}
	return n
}

func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
