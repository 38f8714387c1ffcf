package etl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"etl-backend/internal/jobs"
	"etl-backend/internal/results"
	"etl-backend/internal/schemas"
	localstore "etl-backend/internal/shared/storage/object/local"
	"etl-backend/internal/uploads"
)

const baseConfig = `extract:
  type: json
  source: data/seed.json
  source_id: sales
load:
  target: data/output.csv
`

type testEnv struct {
	dir     string
	svc     *Service
	router  *gin.Engine
	archive string
}

func newTestEnv(t *testing.T, script string, timeout time.Duration) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(baseConfig), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "schemas"), 0o755))
	scriptPath := filepath.Join(dir, "etl.sh")
	require.NoError(t, os.WriteFile(scriptPath, []byte("#!/bin/sh\n"+script), 0o755))

	schemaStore, err := schemas.NewStore(filepath.Join(dir, "schemas"), 8)
	require.NoError(t, err)

	dataDir := filepath.Join(dir, "data")
	output := filepath.Join(dataDir, "output.csv")
	archiveDir := filepath.Join(dir, "archive")
	svc := &Service{
		Gate:       jobs.NewGate(),
		Receiver:   &uploads.Receiver{Store: localstore.New(dataDir), SourceDir: "data"},
		ConfigPath: filepath.Join(dir, "config.yaml"),
		DataDir:    dataDir,
		OutputPath: output,
		Runner: &jobs.Runner{
			Command:    []string{"/bin/sh", scriptPath},
			Dir:        dir,
			OutputPath: output,
			Timeout:    timeout,
		},
		Assembler: &results.Assembler{
			OutputPath: output,
			ConfigPath: filepath.Join(dir, "config.yaml"),
			Schemas:    schemaStore,
		},
		Archive:  localstore.New(archiveDir),
		newRunID: func() string { return "run-1" },
	}

	router := gin.New()
	NewHandler(svc, 1<<20).RegisterRoutes(router)
	return &testEnv{dir: dir, svc: svc, router: router, archive: archiveDir}
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := w.CreateFormFile(uploads.FieldName, name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func (e *testEnv) post(t *testing.T, files map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if files == nil {
		req = httptest.NewRequest(http.MethodPost, "/run-etl", nil)
	} else {
		body, contentType := multipartBody(t, files)
		req = httptest.NewRequest(http.MethodPost, "/run-etl", body)
		req.Header.Set("Content-Type", contentType)
	}
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload), resp.Body.String())
	return resp, payload
}

func (e *testEnv) readConfig(t *testing.T) map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(e.dir, "config.yaml"))
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, yaml.Unmarshal(data, &out))
	return out
}

func TestRunETLUploadEndToEnd(t *testing.T) {
	env := newTestEnv(t, "cp data/uploaded_input.csv data/output.csv\n", 5*time.Second)
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "schemas", "sales_schema.json"), []byte(`{"columns":["name","qty"]}`), 0o644))

	resp, payload := env.post(t, map[string]string{"sample.csv": "name,qty\nwidget,3\ngadget,\n"})

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, true, payload["success"], resp.Body.String())
	assert.Equal(t, []any{
		map[string]any{"name": "widget", "qty": "3"},
		map[string]any{"name": "gadget", "qty": ""},
	}, payload["table"])
	assert.Equal(t, map[string]any{"columns": []any{"name", "qty"}}, payload["schema"])

	cfg := env.readConfig(t)
	assert.Equal(t, map[string]any{
		"type":      "csv",
		"source":    "data/uploaded_input.csv",
		"source_id": "sales",
	}, cfg["extract"])
	assert.Equal(t, map[string]any{"target": "data/output.csv"}, cfg["load"])
	assert.FileExists(t, filepath.Join(env.dir, "data", "uploaded_input.csv"))

	archived, err := os.ReadFile(filepath.Join(env.archive, "runs", "run-1", ArchiveFileName))
	require.NoError(t, err)
	assert.Equal(t, "name,qty\nwidget,3\ngadget,\n", string(archived))
}

func TestRunETLWithoutUploadLeavesConfig(t *testing.T) {
	env := newTestEnv(t, "printf 'id\\n1\\n' > data/output.csv\n", 5*time.Second)
	before, err := os.ReadFile(filepath.Join(env.dir, "config.yaml"))
	require.NoError(t, err)

	_, payload := env.post(t, nil)

	assert.Equal(t, true, payload["success"])
	assert.Nil(t, payload["schema"])
	assert.Contains(t, payload, "schema")
	after, err := os.ReadFile(filepath.Join(env.dir, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
	matches, err := filepath.Glob(filepath.Join(env.dir, "data", "uploaded_input*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRunETLNoOutput(t *testing.T) {
	env := newTestEnv(t, "echo progress\necho 'source missing' >&2\nexit 2\n", 5*time.Second)

	resp, payload := env.post(t, map[string]string{"notes.txt": "hello"})

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, false, payload["success"])
	assert.Equal(t, MsgNoOutput, payload["error"])
	assert.Equal(t, "source missing\n", payload["details"])
	assert.Equal(t, "txt", env.readConfig(t)["extract"].(map[string]any)["type"])
}

func TestRunETLNoOutputFallsBackToStdout(t *testing.T) {
	env := newTestEnv(t, "echo only-stdout\n", 5*time.Second)

	_, payload := env.post(t, nil)

	assert.Equal(t, MsgNoOutput, payload["error"])
	assert.Equal(t, "only-stdout\n", payload["details"])
}

func TestRunETLStaleOutputIsNotReported(t *testing.T) {
	env := newTestEnv(t, "exit 0\n", 5*time.Second)
	require.NoError(t, os.MkdirAll(filepath.Join(env.dir, "data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "data", "output.csv"), []byte("old\nrow\n"), 0o644))

	_, payload := env.post(t, nil)

	assert.Equal(t, false, payload["success"])
	assert.Equal(t, MsgNoOutput, payload["error"])
}

func TestRunETLTimeout(t *testing.T) {
	env := newTestEnv(t, "printf 'a,b\\n1,2\\n' > data/output.csv\nexec sleep 5\n", 300*time.Millisecond)

	start := time.Now()
	resp, payload := env.post(t, map[string]string{"slow.csv": "a,b\n1,2\n"})

	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, false, payload["success"])
	assert.Equal(t, MsgTimedOut, payload["error"])
	assert.NotContains(t, payload, "table")
	assert.NotContains(t, payload, "details")
}

func TestRunETLParseError(t *testing.T) {
	env := newTestEnv(t, "printf 'a,b\\n1\\n' > data/output.csv\n", 5*time.Second)

	_, payload := env.post(t, nil)

	assert.Equal(t, false, payload["success"])
	assert.Contains(t, payload["error"], "wrong number of fields")
}

func TestRunETLRejectsSecondFile(t *testing.T) {
	env := newTestEnv(t, "exit 0\n", 5*time.Second)

	_, payload := env.post(t, map[string]string{"a.csv": "x\n1\n", "b.csv": "y\n2\n"})

	assert.Equal(t, false, payload["success"])
	assert.Equal(t, MsgUnexpectedField, payload["error"])
}

func TestRunETLUploadTooLarge(t *testing.T) {
	env := newTestEnv(t, "cp data/uploaded_input.csv data/output.csv\n", 5*time.Second)
	big := "a\n" + strings.Repeat("1234567\n", 2<<20/8)

	resp, payload := env.post(t, map[string]string{"big.csv": big})

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, false, payload["success"])
	assert.Equal(t, MsgUploadTooLarge, payload["error"])
	assert.NoFileExists(t, filepath.Join(env.dir, "data", "uploaded_input.csv"))
}

type failingStore struct{}

func (failingStore) Put(context.Context, string, string, io.Reader) (int64, error) {
	return 0, errors.New("bucket unavailable")
}

func (failingStore) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("bucket unavailable")
}

func TestRunETLArchiveFailureKeepsSuccess(t *testing.T) {
	env := newTestEnv(t, "printf 'a\\n1\\n' > data/output.csv\n", 5*time.Second)
	env.svc.Archive = failingStore{}

	resp, payload := env.post(t, nil)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, []any{map[string]any{"a": "1"}}, payload["table"])
}

func TestDownloadStreamsOutput(t *testing.T) {
	env := newTestEnv(t, "exit 0\n", time.Second)
	require.NoError(t, os.MkdirAll(filepath.Join(env.dir, "data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "data", "output.csv"), []byte("a,b\n1,2\n"), 0o644))

	resp := httptest.NewRecorder()
	env.router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/download", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Header().Get("Content-Disposition"), `filename="structured_table.csv"`)
	assert.Equal(t, "a,b\n1,2\n", resp.Body.String())
}

func TestDownloadMissingOutput(t *testing.T) {
	env := newTestEnv(t, "exit 0\n", time.Second)

	resp := httptest.NewRecorder()
	env.router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/download", nil))

	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestDownloadXLSX(t *testing.T) {
	env := newTestEnv(t, "exit 0\n", time.Second)
	require.NoError(t, os.MkdirAll(filepath.Join(env.dir, "data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, "data", "output.csv"), []byte("a,b\n1,2\n"), 0o644))

	resp := httptest.NewRecorder()
	env.router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/download/xlsx", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Header().Get("Content-Disposition"), "structured_table.xlsx")
	f, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(results.SheetName)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, rows)
}

func TestDownloadXLSXMissingOutput(t *testing.T) {
	env := newTestEnv(t, "exit 0\n", time.Second)

	resp := httptest.NewRecorder()
	env.router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/download/xlsx", nil))

	assert.Equal(t, http.StatusNotFound, resp.Code)
}
