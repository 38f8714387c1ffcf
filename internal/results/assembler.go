package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"etl-backend/internal/etlconfig"
	"etl-backend/internal/schemas"
	"etl-backend/internal/shared/telemetry"
)

var ErrNoOutput = errors.New("no output produced")

// SchemaSource resolves a source id to its schema document.
type SchemaSource interface {
	Lookup(ctx context.Context, sourceID string) (json.RawMessage, error)
}

// Assembler reads the output of a finished run.
type Assembler struct {
	OutputPath string
	ConfigPath string
	Schemas    SchemaSource
}

// Assembly is a parsed table with the schema of its source, if any.
type Assembly struct {
	Table    Table
	SourceID string
	// Schema is nil when no schema document matches SourceID.
	Schema json.RawMessage
}

// Assemble parses the output file and attaches the schema named by the
// current config. A missing output file is ErrNoOutput; a malformed one is
// a ParseError.
func (a *Assembler) Assemble(ctx context.Context) (Assembly, error) {
	table, err := LoadTable(a.OutputPath)
	if err != nil {
		return Assembly{}, err
	}

	sourceID, err := etlconfig.ResolveSourceID(a.ConfigPath)
	if err != nil {
		telemetry.Warn("results.source_id.default", map[string]any{"config": a.ConfigPath, "err": err})
	}

	out := Assembly{Table: table, SourceID: sourceID}
	if a.Schemas == nil {
		return out, nil
	}
	schema, err := a.Schemas.Lookup(ctx, sourceID)
	switch {
	case err == nil:
		out.Schema = schema
	case errors.Is(err, schemas.ErrNotFound):
		telemetry.Info("results.schema.absent", map[string]any{"source_id": sourceID})
	default:
		telemetry.Warn("results.schema.unusable", map[string]any{"source_id": sourceID, "err": err})
	}
	return out, nil
}

// LoadTable parses the CSV file at path.
func LoadTable(path string) (Table, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Table{}, ErrNoOutput
	}
	if err != nil {
		return Table{}, fmt.Errorf("open output: %w", err)
	}
	defer f.Close()
	return ParseCSV(f)
}
