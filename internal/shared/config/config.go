package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultETLCommand     = "python3 run_etl.py"
	defaultETLTimeout     = 60 * time.Second
	defaultMaxUploadBytes = 50 << 20
)

// Config holds application configuration.
type Config struct {
	Port               string
	Env                string
	CORSAllowOrigin    []string
	BaseDir            string
	ConfigFile         string
	DataDir            string
	SchemasDir         string
	OutputFile         string
	ETLCommand         []string
	ETLTimeout         time.Duration
	MaxUploadBytes     int64
	UploadPDFPreflight bool
	SchemaCacheSize    int
	ArchiveStore       string
	ArchiveDir         string
	AWSRegion          string
	S3Bucket           string
	S3Prefix           string
	SSEKMSKeyID        string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	return Config{
		Port:               getEnv("PORT", "5001"),
		Env:                normalizeEnv(getEnv("ENV", "dev")),
		CORSAllowOrigin:    splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "*")),
		BaseDir:            getEnv("BASE_DIR", "."),
		ConfigFile:         getEnv("CONFIG_FILE", "config.yaml"),
		DataDir:            getEnv("DATA_DIR", "data"),
		SchemasDir:         getEnv("SCHEMAS_DIR", "schemas"),
		OutputFile:         getEnv("OUTPUT_FILE", filepath.Join("data", "output.csv")),
		ETLCommand:         strings.Fields(getEnv("ETL_COMMAND", defaultETLCommand)),
		ETLTimeout:         getDuration("ETL_TIMEOUT", defaultETLTimeout),
		MaxUploadBytes:     getInt64("MAX_UPLOAD_BYTES", defaultMaxUploadBytes),
		UploadPDFPreflight: getBool("UPLOAD_PDF_PREFLIGHT", false),
		SchemaCacheSize:    int(getInt64("SCHEMA_CACHE_SIZE", 128)),
		ArchiveStore:       normalizeStoreType(getEnv("ARCHIVE_STORE", "none")),
		ArchiveDir:         getEnv("ARCHIVE_DIR", "./archive"),
		AWSRegion:          getEnv("AWS_REGION", ""),
		S3Bucket:           getEnv("S3_BUCKET", ""),
		S3Prefix:           getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:        getEnv("SSE_KMS_KEY_ID", ""),
	}
}

// Path resolves a configured relative path against BaseDir.
func (c Config) Path(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(c.BaseDir, rel)
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil || val <= 0 {
		log.Printf("config %s invalid duration %q, using %s", key, raw, def)
		return def
	}
	return val
}

func getInt64(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || val <= 0 {
		log.Printf("config %s invalid integer %q, using %d", key, raw, def)
		return def
	}
	return val
}

func getBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	case "local":
		return "local"
	default:
		return "none"
	}
}
