package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"

	SequenceStore = "store"
	SequenceRedis = "redis"
)

type Config struct {
	Port               string
	AllowedOrigin      string
	StoreDriver        string
	DatabaseURL        string
	MongoURI           string
	MongoDatabase      string
	SequenceDriver     string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	SequenceName       string
	SequenceStart      int64
	AnalyticsStrategy  string
	AnalyticsTimezone  string
	BillListLimit      int
	RateLimitPerMinute int
	LogLevel           string
	LogFormat          string
}

// LoadEnvFile copies values from a dotenv file into the environment
// without overriding variables that are already set. A missing file is
// not an error.
func LoadEnvFile(path string) (bool, error) {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("load %s: %w", path, err)
	}
	return true, nil
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	start, err := strconv.ParseInt(getEnv("SEQUENCE_START", "1"), 10, 64)
	if err != nil {
		start = 0
	}
	listLimit, err := strconv.Atoi(getEnv("BILL_LIST_LIMIT", "100"))
	if err != nil || listLimit < 1 {
		listLimit = 100
	}
	rateLimit, err := strconv.Atoi(getEnv("RATE_LIMIT_PER_MINUTE", "120"))
	if err != nil || rateLimit < 0 {
		rateLimit = 120
	}

	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	defaultDriver := StoreMemory
	if databaseURL != "" {
		defaultDriver = StorePostgres
	}

	cfg := Config{
		Port:               getEnv("PORT", "8080"),
		AllowedOrigin:      getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		StoreDriver:        strings.ToLower(getEnv("STORE_DRIVER", defaultDriver)),
		DatabaseURL:        databaseURL,
		MongoURI:           strings.TrimSpace(os.Getenv("MONGO_URI")),
		MongoDatabase:      getEnv("MONGO_DATABASE", "pos"),
		SequenceDriver:     strings.ToLower(getEnv("SEQUENCE_DRIVER", SequenceStore)),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            redisDB,
		SequenceName:       getEnv("SEQUENCE_NAME", "bill_seq"),
		SequenceStart:      start,
		AnalyticsStrategy:  strings.ToLower(getEnv("ANALYTICS_STRATEGY", "native")),
		AnalyticsTimezone:  getEnv("ANALYTICS_TIMEZONE", "UTC"),
		BillListLimit:      listLimit,
		RateLimitPerMinute: rateLimit,
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "json")),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location resolves the analytics time zone. "Local" is refused because
// the database side of aggregation needs a zone name it can resolve too.
func (c Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.AnalyticsTimezone)
	if name == "" || strings.EqualFold(name, "local") {
		return nil, fmt.Errorf("ANALYTICS_TIMEZONE must name an IANA zone, got %q", c.AnalyticsTimezone)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("ANALYTICS_TIMEZONE: %w", err)
	}
	return loc, nil
}

func getEnv(key string, fallback string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return val
}
