package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"elis/backend/features/annotation"
	"elis/backend/features/document"
	"elis/backend/features/image"
	"elis/backend/features/job"
	"elis/backend/features/stats"
	"elis/backend/internal/adapter/dockertool"
	"elis/backend/internal/config"
	"elis/backend/internal/middleware"
	"elis/backend/internal/worker"
)

type App struct {
	Handler http.Handler
	Runtime *worker.Runtime

	cfg *config.Config
}

func New(
	cfg *config.Config,
	db *sql.DB,
	taskPub worker.TaskPublisher,
	logger *slog.Logger,
) (*App, error) {

	// Feature: Document
	documentRepo := document.NewPostgresRepo(db)
	documentService := document.NewService(documentRepo, cfg.WorkspaceDir)
	documentHandler := document.NewHandler(documentService, cfg.MaxUploadSizeMB)

	// Feature: Image
	imageRepo := image.NewPostgresRepo(db)
	imageHandler := image.NewHandler(imageRepo)

	// Feature: Annotation
	annotationRepo := annotation.NewPostgresRepo(db)
	annotationHandler := annotation.NewHandler(annotationRepo)

	// Feature: Job
	jobRepo := job.NewPostgresRepo(db)
	jobService := job.NewService(jobRepo, taskPub, cfg.JobMaxRetries, logger)
	jobHandler := job.NewHandler(jobService)

	// Feature: Stats
	statsHandler := stats.NewHandler(documentRepo, imageRepo, jobRepo)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-ID")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /documents", middleware.CorrelationID(enableCORS(documentHandler.Upload)))
	mux.Handle("GET /documents", middleware.CorrelationID(enableCORS(documentHandler.List)))
	mux.Handle("GET /documents/{id}", middleware.CorrelationID(enableCORS(documentHandler.Get)))
	mux.Handle("DELETE /documents/{id}", middleware.CorrelationID(enableCORS(documentHandler.Delete)))

	mux.Handle("GET /images", middleware.CorrelationID(enableCORS(imageHandler.List)))
	mux.Handle("GET /images/{id}", middleware.CorrelationID(enableCORS(imageHandler.Get)))
	mux.Handle("DELETE /images/{id}", middleware.CorrelationID(enableCORS(imageHandler.Delete)))

	mux.Handle("POST /images/{id}/annotations", middleware.CorrelationID(enableCORS(annotationHandler.Create)))
	mux.Handle("GET /images/{id}/annotations", middleware.CorrelationID(enableCORS(annotationHandler.List)))
	mux.Handle("DELETE /images/{id}/annotations/{annotationId}", middleware.CorrelationID(enableCORS(annotationHandler.Delete)))

	mux.Handle("POST /jobs", middleware.CorrelationID(enableCORS(jobHandler.Submit)))
	mux.Handle("GET /jobs", middleware.CorrelationID(enableCORS(jobHandler.List)))
	mux.Handle("GET /jobs/{id}", middleware.CorrelationID(enableCORS(jobHandler.Get)))

	mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Worker setup
	invoker := dockertool.NewInvoker(
		cfg.DockerBinary,
		time.Duration(cfg.JobSoftTimeoutSeconds)*time.Second,
		time.Duration(cfg.JobHardTimeoutSeconds)*time.Second,
		logger,
	)
	icAdapter := &imageCreatorAdapter{repo: imageRepo}
	reporter := worker.NewRepoReporter(jobRepo, logger)

	executor := worker.NewExecutor(
		jobRepo,
		invoker,
		dockertool.Catalog(cfg),
		icAdapter,
		taskPub,
		reporter,
		cfg.WorkspaceDir,
		cfg.JobLeaseSeconds,
		time.Duration(cfg.JobRetryBaseSeconds)*time.Second,
		logger,
	)

	reaper := worker.NewReaper(
		jobRepo,
		taskPub,
		time.Duration(cfg.ReaperIntervalSeconds)*time.Second,
		cfg.ReaperBatchSize,
		time.Duration(cfg.JobLeaseSeconds)*time.Second,
		logger,
	)

	runtime := worker.NewRuntime(cfg, executor, reaper, logger)

	return &App{
		Handler: mux,
		Runtime: runtime,
		cfg:     cfg,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.ServerPort),
		Handler: a.Handler,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.cfg.ServerPort)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Adapter for ImageCreator in Worker
type imageCreatorAdapter struct {
	repo image.Repository
}

func (a *imageCreatorAdapter) CreateExtracted(ctx context.Context, ownerID, documentID string, artifacts []dockertool.Artifact) error {
	imgs := make([]image.Image, 0, len(artifacts))
	for _, art := range artifacts {
		imgs = append(imgs, image.Image{
			OwnerID:    ownerID,
			DocumentID: documentID,
			Filename:   art.Name,
			FilePath:   art.Path,
			Size:       art.Size,
			SourceType: image.SourceExtracted,
		})
	}
	return a.repo.BulkCreate(ctx, imgs)
}
