// Package etl drives one ETL run end to end: store the upload, point the
// config at it, run the external tool and read back its table.
package etl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/google/uuid"

	"etl-backend/internal/etlconfig"
	"etl-backend/internal/jobs"
	"etl-backend/internal/results"
	"etl-backend/internal/shared/metrics"
	"etl-backend/internal/shared/storage/object"
	"etl-backend/internal/shared/telemetry"
	"etl-backend/internal/uploads"
)

// ArchiveFileName is the name the output is downloaded and archived under.
const ArchiveFileName = "structured_table.csv"

// Request is one run. Input is nil when the caller sent no file.
type Request struct {
	Input *uploads.Input
}

// Outcome is everything a run produced, whether or not it succeeded.
type Outcome struct {
	RunID    string
	Upload   *uploads.Upload
	Process  jobs.Result
	Assembly results.Assembly
}

// Runner is the subset of jobs.Runner the service needs.
type Runner interface {
	Run(ctx context.Context) (jobs.Result, error)
}

type Service struct {
	Gate       *jobs.Gate
	Receiver   *uploads.Receiver
	ConfigPath string
	DataDir    string
	OutputPath string
	Runner     Runner
	Assembler  *results.Assembler
	// Archive receives a copy of each successful output. Nil disables it.
	Archive object.ObjectStore

	newRunID func() string
}

// Run waits for the gate, then executes the pipeline. Once admitted the run
// ignores ctx cancellation; only the process timeout stops it.
func (s *Service) Run(ctx context.Context, req Request) (Outcome, error) {
	out := Outcome{RunID: s.runID()}

	if s.Gate != nil {
		if waiting := s.Gate.Waiting(); waiting > 0 {
			telemetry.Info("etl.run.queued", map[string]any{"run_id": out.RunID, "ahead": waiting})
		}
		release, err := s.Gate.Acquire(ctx)
		if err != nil {
			return out, fmt.Errorf("wait for active run: %w", err)
		}
		defer release()
	}

	ctx = jobs.WithRunID(context.WithoutCancel(ctx), out.RunID)
	metrics.IncRunStarted()
	started := time.Now()
	telemetry.Info("etl.run.started", map[string]any{"run_id": out.RunID, "has_upload": req.Input != nil})

	err := s.run(ctx, req, &out)

	elapsed := time.Since(started)
	metrics.ObserveRunDurationMs(float64(elapsed.Milliseconds()))
	fields := map[string]any{"run_id": out.RunID, "duration_ms": elapsed.Milliseconds()}
	if err != nil {
		metrics.IncRunFailed()
		if errors.Is(err, jobs.ErrTimeout) {
			metrics.IncRunTimedOut()
		}
		fields["err"] = err
		telemetry.Warn("etl.run.failed", fields)
		return out, err
	}
	metrics.IncRunSucceeded()
	fields["rows"] = out.Assembly.Table.Len()
	fields["source_id"] = out.Assembly.SourceID
	telemetry.Info("etl.run.succeeded", fields)
	return out, nil
}

func (s *Service) run(ctx context.Context, req Request, out *Outcome) error {
	if s.DataDir != "" {
		if err := os.MkdirAll(s.DataDir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}

	if req.Input != nil {
		up, err := s.Receiver.Receive(ctx, *req.Input)
		if err != nil {
			return err
		}
		out.Upload = &up
		if err := s.pointConfigAt(up); err != nil {
			return err
		}
	}

	res, err := s.Runner.Run(ctx)
	out.Process = res
	if err != nil {
		return err
	}

	asm, err := s.Assembler.Assemble(ctx)
	if err != nil {
		return err
	}
	out.Assembly = asm

	s.archive(ctx, out.RunID)
	return nil
}

func (s *Service) pointConfigAt(up uploads.Upload) error {
	doc, err := etlconfig.Load(s.ConfigPath)
	if err != nil {
		return err
	}
	if err := doc.PointAt(up.Type, up.Source); err != nil {
		return err
	}
	if err := doc.Save(); err != nil {
		return err
	}
	extract, err := doc.Extract()
	if err != nil {
		return err
	}
	telemetry.Info("etl.config.updated", map[string]any{
		"config":    doc.Path(),
		"type":      extract.Type,
		"source":    extract.Source,
		"source_id": extract.SourceID,
	})
	return nil
}

// archive copies the output to runs/<run-id>/. Failures are only logged.
func (s *Service) archive(ctx context.Context, runID string) {
	if s.Archive == nil || s.OutputPath == "" {
		return
	}
	f, err := os.Open(s.OutputPath)
	if err != nil {
		telemetry.Warn("etl.archive.failed", map[string]any{"run_id": runID, "err": err})
		return
	}
	defer f.Close()

	key := path.Join("runs", runID, ArchiveFileName)
	size, err := s.Archive.Put(ctx, key, "text/csv", f)
	if err != nil {
		telemetry.Warn("etl.archive.failed", map[string]any{"run_id": runID, "key": key, "err": err})
		return
	}
	telemetry.Info("etl.archive.stored", map[string]any{"run_id": runID, "key": key, "size_bytes": size})
}

func (s *Service) runID() string {
	if s.newRunID != nil {
		return s.newRunID()
	}
	return uuid.NewString()
}
