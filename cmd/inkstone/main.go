package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/inkstone-dev/inkstone/internal/config"
	"github.com/inkstone-dev/inkstone/internal/db"
	"github.com/inkstone-dev/inkstone/internal/filestore"
	"github.com/inkstone-dev/inkstone/internal/glyph"
	"github.com/inkstone-dev/inkstone/internal/handler"
	"github.com/inkstone-dev/inkstone/internal/job"
	"github.com/inkstone-dev/inkstone/internal/middleware"
	"github.com/inkstone-dev/inkstone/internal/model"
	"github.com/inkstone-dev/inkstone/internal/recognize"
	"github.com/inkstone-dev/inkstone/internal/refdata"
	"github.com/inkstone-dev/inkstone/internal/repo"
	"github.com/inkstone-dev/inkstone/internal/schedule"
	"github.com/inkstone-dev/inkstone/internal/service"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "inkstone",
		Short: "inkstone hanzi catalog server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run inkstone server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

			conn, err := db.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := db.ApplyMigrations(conn); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, conn)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func runServer(cfg *config.Config, conn *sql.DB) error {
	log := logutil.GetLogger(context.Background())
	log.Info("starting server",
		zap.Int("port", cfg.Port),
		zap.String("media_dir", cfg.Media.BaseDir),
		zap.String("file_store", cfg.FileStore.Type),
	)

	hanziRepo := repo.NewHanziRepo(conn)
	jobRepo := repo.NewImportJobRepo(conn)

	ref, err := refdata.Load(cfg.RefData)
	if err != nil {
		return fmt.Errorf("load reference data: %w", err)
	}
	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}

	var renderer glyph.Renderer = glyph.NoopRenderer{}
	if cfg.Glyph.Command != "" {
		renderer = glyph.NewCommandRenderer(cfg.Glyph.Command, cfg.Glyph.Args, 0)
	}

	var backend recognize.Recognizer = recognize.FallbackRecognizer{}
	if cfg.Recognizer.Command != "" {
		backend = recognize.NewCommandRecognizer(cfg.Recognizer.Command, cfg.Recognizer.Args)
	}
	recognizer := recognize.NewAdapter(
		backend,
		time.Duration(cfg.Recognizer.TimeoutSec)*time.Second,
		cfg.Recognizer.MinConfidence,
		model.ParseVariant(cfg.Recognizer.DefaultVariant),
	)

	catalogService, err := service.NewHanziService(hanziRepo, ref, store, renderer)
	if err != nil {
		return fmt.Errorf("init catalog service: %w", err)
	}
	importService := service.NewImportService(jobRepo, catalogService, recognizer, cfg.Import)
	exportsDir := filepath.Join(cfg.Media.BaseDir, "exports")
	exportService := service.NewExportService(hanziRepo, store, exportsDir)

	deps := handler.RouterDeps{
		Catalog: handler.NewHanziHandler(catalogService),
		Imports: handler.NewImportHandler(importService, catalogService, cfg.Import.MaxUploadSize),
		Export:  handler.NewExportHandler(exportService),
		Files:   handler.NewFileHandler(store, cfg.Import.OutputDir, exportsDir),
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(nil),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	log.Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(
		job.NewImportCleanupJob(jobRepo, time.Duration(cfg.Import.JobMaxAgeHours)*time.Hour),
		cfg.Cleanup.ImportJobSpec,
	); err != nil {
		return err
	}
	if err := scheduler.AddJob(
		job.NewExportCleanupJob(exportsDir, time.Duration(cfg.Cleanup.ExportMaxAgeH)*time.Hour),
		cfg.Cleanup.ExportSpec,
	); err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("server stopping...")
	return nil
}
