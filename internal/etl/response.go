package etl

import (
	"encoding/json"
	"errors"
	"net/http"

	"etl-backend/internal/jobs"
	"etl-backend/internal/results"
	"etl-backend/internal/shared/server/respond"
	"etl-backend/internal/uploads"
)

// Public failure messages.
const (
	MsgTimedOut        = "ETL timed out."
	MsgNoOutput        = "No output produced."
	MsgUnexpectedField = "Unexpected field"
	MsgUploadTooLarge  = "Upload too large"
)

// SuccessBody is the /run-etl body of a run that produced a table. Schema is
// null when no schema document matches the source id.
type SuccessBody struct {
	Success bool            `json:"success"`
	Table   results.Table   `json:"table"`
	Schema  json.RawMessage `json:"schema"`
}

// Describe maps a run error to the public message and optional details.
func Describe(err error, out Outcome) (string, *string) {
	var tooLarge *http.MaxBytesError
	var parseErr results.ParseError
	switch {
	case errors.Is(err, jobs.ErrTimeout):
		return MsgTimedOut, nil
	case errors.Is(err, results.ErrNoOutput):
		details := out.Process.Diagnostics()
		return MsgNoOutput, &details
	case errors.Is(err, uploads.ErrUnexpectedFile):
		return MsgUnexpectedField, nil
	case errors.As(err, &tooLarge):
		return MsgUploadTooLarge, nil
	case errors.As(err, &parseErr):
		return parseErr.Error(), nil
	default:
		return err.Error(), nil
	}
}

// Body returns the JSON body for a finished run.
func Body(out Outcome, err error) any {
	if err != nil {
		msg, details := Describe(err, out)
		return respond.Envelope{Success: false, Error: msg, Details: details}
	}
	schema := out.Assembly.Schema
	if len(schema) == 0 {
		schema = json.RawMessage("null")
	}
	return SuccessBody{Success: true, Table: out.Assembly.Table, Schema: schema}
}
