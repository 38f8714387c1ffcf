// Package uploads receives the optional input file of a run and normalizes it
// into the canonical upload location the ETL configuration points at.
package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"etl-backend/internal/shared/telemetry"
	"etl-backend/internal/shared/util"
)

// FieldName is the multipart field carrying the upload.
const FieldName = "inputFile"

const canonicalBase = "uploaded_input"

// Upload types written into extract.type.
const (
	TypeCSV  = "csv"
	TypeJSON = "json"
	TypeText = "txt"
)

var (
	ErrUnexpectedFile = errors.New("unexpected field: at most one file is accepted")
	ErrMissingBody    = errors.New("upload body is required")
)

// Input is a file handed to the receiver, from a multipart form or the CLI.
type Input struct {
	FileName string
	Body     io.Reader
}

// Upload describes a stored upload.
type Upload struct {
	OriginalName string
	Extension    string
	Type         string
	// Source is the path recorded in the ETL config, relative to the base dir.
	Source     string
	StoredPath string
	SizeBytes  int64
}

// Store is the subset of the local object store the receiver writes through.
type Store interface {
	Put(ctx context.Context, key string, contentType string, r io.Reader) (int64, error)
	Path(key string) (string, error)
}

// Receiver writes uploads to the canonical path, replacing any previous one.
type Receiver struct {
	Store Store
	// SourceDir is the store's directory relative to the ETL working dir.
	SourceDir    string
	PDFPreflight bool
}

// Extension returns the lower-cased extension of name, including the dot.
func Extension(name string) string {
	return strings.ToLower(filepath.Ext(strings.TrimSpace(name)))
}

// Classify maps an extension to the extract type. Anything that is not CSV
// or JSON is handed to the ETL tool as free text.
func Classify(ext string) string {
	switch strings.ToLower(ext) {
	case ".csv":
		return TypeCSV
	case ".json":
		return TypeJSON
	default:
		return TypeText
	}
}

// Receive stores in at data/uploaded_input<ext>.
func (r *Receiver) Receive(ctx context.Context, in Input) (Upload, error) {
	if in.Body == nil {
		return Upload{}, ErrMissingBody
	}

	ext := Extension(in.FileName)
	name := canonicalBase + ext
	if !util.IsSafeSegment(name) {
		telemetry.Warn("uploads.extension.dropped", map[string]any{"file_name": in.FileName, "ext": ext})
		ext = ""
		name = canonicalBase
	}

	size, err := r.Store.Put(ctx, name, contentType(ext), in.Body)
	if err != nil {
		return Upload{}, fmt.Errorf("store upload: %w", err)
	}
	stored, err := r.Store.Path(name)
	if err != nil {
		return Upload{}, fmt.Errorf("store upload: %w", err)
	}

	if ext == ".pdf" && r.PDFPreflight {
		if err := checkTextLayer(stored); err != nil {
			return Upload{}, err
		}
	}

	up := Upload{
		OriginalName: in.FileName,
		Extension:    ext,
		Type:         Classify(ext),
		Source:       path.Join(filepath.ToSlash(r.SourceDir), name),
		StoredPath:   stored,
		SizeBytes:    size,
	}
	telemetry.Info("uploads.stored", map[string]any{
		"file_name":  displayName(in.FileName),
		"type":       up.Type,
		"source":     up.Source,
		"size_bytes": size,
	})
	return up, nil
}

func contentType(ext string) string {
	switch ext {
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".pdf":
		return "application/pdf"
	default:
		return "text/plain"
	}
}

func displayName(name string) string {
	if s, err := util.SanitizeFileName(name); err == nil {
		return s
	}
	return ""
}
