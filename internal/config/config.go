package config

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type Config struct {
	Env  string
	Port int

	StorageDriver string
	DBURL         string
	DBMaxConns    int32
	DBMigrate     bool
	SQLitePath    string

	BcryptCost       int
	ImportMaxRecords int
	MaxUploadBytes   int64
	UserTTL          time.Duration

	CORSAllowedOrigins []string

	OTelEndpoint    string
	OTelServiceName string

	AdminEmail     string
	AdminPassword  string
	AdminFirstName string
	AdminLastName  string

	// parse problems collected while reading the environment
	envErrs []error
}

// Load reads an optional .env file and then the process environment.
func Load() Config {
	// missing .env is the normal case outside local dev
	_ = godotenv.Load()

	cfg := Config{}

	cfg.Env = getEnv("APP_ENV", "dev")
	cfg.Port = cfg.getEnvInt("PORT", 8080)

	cfg.StorageDriver = strings.ToLower(getEnv("STORAGE_DRIVER", DriverSQLite))
	cfg.DBURL = getEnv("DATABASE_URL", buildDBURL())
	cfg.DBMaxConns = int32(cfg.getEnvInt("DB_MAX_CONNS", 5))
	cfg.DBMigrate = cfg.getEnvBool("DB_MIGRATE", true)
	cfg.SQLitePath = getEnv("SQLITE_PATH", "userdir.db")

	cfg.BcryptCost = cfg.getEnvInt("BCRYPT_COST", bcrypt.DefaultCost)
	cfg.ImportMaxRecords = cfg.getEnvInt("IMPORT_MAX_RECORDS", 10)
	cfg.MaxUploadBytes = int64(cfg.getEnvInt("MAX_UPLOAD_BYTES", 1<<20))
	cfg.UserTTL = time.Duration(cfg.getEnvInt("USER_TTL_DAYS", 30)) * 24 * time.Hour

	cfg.CORSAllowedOrigins = splitList(getEnv("CORS_ALLOWED_ORIGINS", ""))

	cfg.OTelEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	cfg.OTelServiceName = getEnv("OTEL_SERVICE_NAME", "userdir-api")

	cfg.AdminEmail = getEnv("ADMIN_EMAIL", "")
	cfg.AdminPassword = getEnv("ADMIN_PASSWORD", "")
	cfg.AdminFirstName = getEnv("ADMIN_FIRST_NAME", "Admin")
	cfg.AdminLastName = getEnv("ADMIN_LAST_NAME", "User")

	return cfg
}

// ApplyFlags lets command-line flags override values read from the environment.
func (c *Config) ApplyFlags(fs *flag.FlagSet, args []string) error {
	port := fs.Int("port", c.Port, "HTTP listen port")
	storage := fs.String("storage", c.StorageDriver, "storage driver: postgres, sqlite or memory")
	sqlitePath := fs.String("sqlite-path", c.SQLitePath, "sqlite database file")
	dbURL := fs.String("db-url", c.DBURL, "postgres connection string")

	if err := fs.Parse(args); err != nil {
		return err
	}

	c.Port = *port
	c.StorageDriver = strings.ToLower(*storage)
	c.SQLitePath = *sqlitePath
	c.DBURL = *dbURL

	return nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	errs := append([]error(nil), c.envErrs...)

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}

	switch c.StorageDriver {
	case DriverPostgres:
		if c.DBURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
		if c.DBMaxConns < 1 {
			errs = append(errs, fmt.Errorf("DB_MAX_CONNS must be positive, got %d", c.DBMaxConns))
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver))
	}

	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be within [%d,%d], got %d", bcrypt.MinCost, bcrypt.MaxCost, c.BcryptCost))
	}

	if c.ImportMaxRecords < 1 {
		errs = append(errs, fmt.Errorf("IMPORT_MAX_RECORDS must be positive, got %d", c.ImportMaxRecords))
	}

	if c.MaxUploadBytes < 1 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes))
	}

	if c.UserTTL <= 0 {
		errs = append(errs, errors.New("USER_TTL_DAYS must be positive"))
	}

	if (c.AdminEmail == "") != (c.AdminPassword == "") {
		errs = append(errs, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together"))
	}

	return errors.Join(errs...)
}

func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "userdir")
	pass := getEnv("DB_PASSWORD", "userdir")
	name := getEnv("DB_NAME", "userdir")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func (c *Config) getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			c.envErrs = append(c.envErrs, fmt.Errorf("%s: %w", key, err))
			return fallback
		}

		return num
	}
	return fallback
}

func (c *Config) getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)

		if err != nil {
			c.envErrs = append(c.envErrs, fmt.Errorf("%s: %w", key, err))
			return fallback
		}

		return b
	}
	return fallback
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	out := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}

	return out
}
