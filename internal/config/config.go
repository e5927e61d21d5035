package config // package config loads application configuration from environment variables

import (
	"fmt"
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"strings"
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Secrets and external endpoints are strings; the
// optional integrations (email provider, LLM, broker) are left empty when
// unset and the components that depend on them report a configuration error
// at call time instead of refusing to boot.
type Config struct {
	Env    string // application environment (e.g. "dev", "prod")
	Port   string // HTTP port to listen on
	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	JWTSecret      string // shared secret used to verify access tokens and sign staff/impersonation tokens
	JWTIssuer      string // expected "iss" claim; empty disables the check
	ServiceRoleKey string // bearer key accepted on server-to-server endpoints
	StaffTTLMin    int    // lifetime of staff session tokens in minutes
	BcryptCost     int    // bcrypt cost for staff password hashing

	SiteURL      string // base URL used in email links
	ResendAPIKey string // email provider key
	EmailFrom    string // sender address
	EmailReplyTo string // reply-to address

	OpenAIAPIKey  string // LLM provider key
	OpenAIBaseURL string // LLM endpoint
	OpenAIModel   string // default chat model

	StorageDir        string // blob store root directory
	StorageSigningKey string // HMAC key for signed download URLs

	AMQPURL         string        // RabbitMQ URL; empty disables job publishing
	ParseStaleAfter time.Duration // how long a parse may sit in processing before it can be re-triggered
	ReminderHourUTC int           // hour of day the reminder engine runs
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	secret := must("SUPABASE_JWT_SECRET")
	supabaseURL := envStr("SUPABASE_URL", os.Getenv("VITE_SUPABASE_URL"))
	issuer := ""
	if supabaseURL != "" {
		issuer = strings.TrimRight(supabaseURL, "/") + "/auth/v1"
	}
	amqpURL := os.Getenv("RABBITMQ_URL")
	if amqpURL == "" {
		amqpURL = os.Getenv("AMQP_URL")
	}
	return Config{
		Env:    must("APP_ENV"),      // environment (dev/test/prod)
		Port:   must("APP_PORT"),     // port to bind the HTTP server
		DBUser: must("DB_USER"),      // database user
		DBPass: os.Getenv("DB_PASS"), // database password (empty allowed)
		DBHost: must("DB_HOST"),      // database host
		DBPort: must("DB_PORT"),      // database port
		DBName: must("DB_NAME"),      // database name

		JWTSecret:      secret,
		JWTIssuer:      issuer,
		ServiceRoleKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		StaffTTLMin:    envInt("STAFF_TOKEN_TTL_MIN", 60),
		BcryptCost:     envInt("BCRYPT_COST", 12),

		SiteURL:      strings.TrimRight(envStr("SITE_URL", "https://gigexecs.com"), "/"),
		ResendAPIKey: os.Getenv("RESEND_API_KEY"),
		EmailFrom:    envStr("EMAIL_FROM", "GigExecs <noreply@gigexecs.com>"),
		EmailReplyTo: envStr("EMAIL_REPLY_TO", "support@gigexecs.com"),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: strings.TrimRight(envStr("OPENAI_BASE_URL", "https://api.openai.com/v1"), "/"),
		OpenAIModel:   envStr("OPENAI_MODEL", "gpt-4o-mini"),

		StorageDir:        envStr("STORAGE_DIR", "./data/storage"),
		StorageSigningKey: envStr("STORAGE_SIGNING_KEY", secret),

		AMQPURL:         amqpURL,
		ParseStaleAfter: envDur("PARSE_STALE_AFTER", 15*time.Minute),
		ReminderHourUTC: envInt("REMINDER_HOUR_UTC", 9),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// Validate reports settings that parse but cannot work together.
func (c Config) Validate() error {
	if _, err := strconv.Atoi(c.DBPort); err != nil {
		return fmt.Errorf("DB_PORT must be numeric, got %q", c.DBPort)
	}
	if c.ReminderHourUTC < 0 || c.ReminderHourUTC > 23 {
		return fmt.Errorf("REMINDER_HOUR_UTC must be 0-23, got %d", c.ReminderHourUTC)
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST out of range: %d", c.BcryptCost)
	}
	return nil
}
