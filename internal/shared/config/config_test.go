package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"PORT", "ETL_COMMAND", "ETL_TIMEOUT", "CORS_ALLOW_ORIGINS", "ARCHIVE_STORE"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "5001", cfg.Port)
	assert.Equal(t, []string{"python3", "run_etl.py"}, cfg.ETLCommand)
	assert.Equal(t, 60*time.Second, cfg.ETLTimeout)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowOrigin)
	assert.Equal(t, "none", cfg.ArchiveStore)
	assert.Equal(t, filepath.Join("data", "output.csv"), cfg.OutputFile)
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ETL_COMMAND", "  ./bin/etl   --quiet ")
	t.Setenv("ETL_TIMEOUT", "90s")
	t.Setenv("MAX_UPLOAD_BYTES", "1024")
	t.Setenv("UPLOAD_PDF_PREFLIGHT", "true")
	t.Setenv("ARCHIVE_STORE", "S3")

	cfg := Load()

	assert.Equal(t, []string{"./bin/etl", "--quiet"}, cfg.ETLCommand)
	assert.Equal(t, 90*time.Second, cfg.ETLTimeout)
	assert.EqualValues(t, 1024, cfg.MaxUploadBytes)
	assert.True(t, cfg.UploadPDFPreflight)
	assert.Equal(t, "s3", cfg.ArchiveStore)
}

func TestLoadInvalidTimeoutFallsBack(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ETL_TIMEOUT", "soon")

	assert.Equal(t, 60*time.Second, Load().ETLTimeout)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("SCHEMAS_DIR", "")
	require.NoError(t, os.Unsetenv("SCHEMAS_DIR"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SCHEMAS_DIR=./static/schemas\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("SCHEMAS_DIR") })

	assert.Equal(t, "./static/schemas", Load().SchemasDir)
}

func TestPathResolvesAgainstBaseDir(t *testing.T) {
	cfg := Config{BaseDir: "/srv/etl"}

	assert.Equal(t, filepath.Join("/srv/etl", "config.yaml"), cfg.Path("config.yaml"))
	assert.Equal(t, "/abs/out.csv", cfg.Path("/abs/out.csv"))
}
