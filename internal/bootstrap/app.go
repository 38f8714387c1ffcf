package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"etl-backend/internal/etl"
	"etl-backend/internal/jobs"
	"etl-backend/internal/results"
	"etl-backend/internal/schemas"
	"etl-backend/internal/services/health"
	"etl-backend/internal/shared/config"
	"etl-backend/internal/shared/server"
	"etl-backend/internal/shared/storage/object"
	localstore "etl-backend/internal/shared/storage/object/local"
	s3store "etl-backend/internal/shared/storage/object/s3"
	"etl-backend/internal/shared/telemetry"
	"etl-backend/internal/uploads"
)

const archiveDefaultRegion = "us-east-1"

// App holds shared dependencies.
type App struct {
	Config        config.Config
	Router        *gin.Engine
	Archive       object.ObjectStore
	Schemas       *schemas.Store
	Gate          *jobs.Gate
	ETLService    *etl.Service
	ETLHandler    *etl.Handler
	SchemaHandler *schemas.Handler
	Health        *health.Service
}

// Build wires the service from cfg. Relative paths resolve against
// cfg.BaseDir, which is also the ETL process's working directory.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if len(cfg.ETLCommand) == 0 {
		return nil, errors.New("ETL_COMMAND is empty")
	}
	ctx := context.Background()

	archive, err := buildArchive(ctx, cfg)
	if err != nil {
		return nil, err
	}

	schemaStore, err := schemas.NewStore(cfg.Path(cfg.SchemasDir), cfg.SchemaCacheSize)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:  cfg,
		Archive: archive,
		Schemas: schemaStore,
		Gate:    jobs.NewGate(),
	}
	buildServices(app)

	app.Router = server.NewRouter(server.RouterDeps{
		Config:        app.Config,
		ETLHandler:    app.ETLHandler,
		SchemaHandler: app.SchemaHandler,
		Health:        app.Health,
	})

	telemetry.Info("bootstrap.ready", map[string]any{
		"env":         cfg.Env,
		"base_dir":    cfg.BaseDir,
		"etl_command": strings.Join(cfg.ETLCommand, " "),
		"timeout_ms":  cfg.ETLTimeout.Milliseconds(),
		"archive":     cfg.ArchiveStore,
	})
	return app, nil
}

func buildServices(app *App) {
	cfg := app.Config
	configPath := cfg.Path(cfg.ConfigFile)
	dataDir := cfg.Path(cfg.DataDir)
	outputPath := cfg.Path(cfg.OutputFile)

	receiver := &uploads.Receiver{
		Store:        localstore.New(dataDir),
		SourceDir:    cfg.DataDir,
		PDFPreflight: cfg.UploadPDFPreflight,
	}
	runner := &jobs.Runner{
		Command:    cfg.ETLCommand,
		Dir:        cfg.BaseDir,
		OutputPath: outputPath,
		Timeout:    cfg.ETLTimeout,
	}
	assembler := &results.Assembler{
		OutputPath: outputPath,
		ConfigPath: configPath,
		Schemas:    app.Schemas,
	}

	app.ETLService = &etl.Service{
		Gate:       app.Gate,
		Receiver:   receiver,
		ConfigPath: configPath,
		DataDir:    dataDir,
		OutputPath: outputPath,
		Runner:     runner,
		Assembler:  assembler,
		Archive:    app.Archive,
	}
	app.ETLHandler = etl.NewHandler(app.ETLService, cfg.MaxUploadBytes)
	app.SchemaHandler = schemas.NewHandler(app.Schemas)
	app.Health = health.NewService(configPath, cfg.ETLCommand, cfg.Path(cfg.SchemasDir))
}

func buildArchive(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ArchiveStore {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("ARCHIVE_STORE=s3 requires S3_BUCKET")
		}
		region := strings.TrimSpace(cfg.AWSRegion)
		if region == "" {
			region = archiveDefaultRegion
		}
		return s3store.New(ctx, region, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	case "local":
		return localstore.New(cfg.Path(cfg.ArchiveDir)), nil
	default:
		return nil, nil
	}
}
