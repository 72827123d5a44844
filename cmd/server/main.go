package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rpattn/resultgrid/internal/config"
	"github.com/rpattn/resultgrid/internal/db"
	"github.com/rpattn/resultgrid/internal/export"
	"github.com/rpattn/resultgrid/internal/ingestion"
	"github.com/rpattn/resultgrid/internal/metrics"
	"github.com/rpattn/resultgrid/internal/middleware"
	"github.com/rpattn/resultgrid/internal/repository"
	"github.com/rpattn/resultgrid/internal/table"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	configPath := os.Getenv("RESULTGRID_CONFIG_PATH")
	if configPath == "" {
		configPath = "."
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Pick the result set store
	var repo repository.ResultSetRepository
	switch cfg.Storage {
	case config.StoragePostgres:
		conn, err := db.NewConnection(ctx, cfg.Database)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer conn.Close()

		if err := db.RunMigrations(conn.Pool); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		repo = repository.NewResultSetRepository(conn.Pool)
	default:
		log.Println("Using in-memory result set store")
		repo = repository.NewMemoryResultSetRepository()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	profiler, err := table.NewProfiler(cfg.Profiler, m)
	if err != nil {
		log.Fatalf("Failed to create profiler: %v", err)
	}

	ingestionService := ingestion.NewService(repo, m)
	exportService := export.NewService()

	api := http.NewServeMux()
	api.Handle("POST /results/import", ingestion.NewHTTPHandler(ingestionService))
	api.Handle("POST /results/preview", ingestion.NewPreviewHandler(ingestionService))
	api.Handle("PUT /results/{id}/rows", ingestion.NewRefreshHandler(ingestionService))
	api.Handle("POST /results/{id}/export", export.NewHTTPHandler(exportService, repo))
	tableHandler := table.NewHTTPHandler(repo, profiler, m)
	api.Handle("/results", tableHandler)
	api.Handle("/results/", tableHandler)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Row-Count"},
	})

	apiHandler := middleware.LoggingMiddleware(m)(
		middleware.WorkspaceMiddleware(
			middleware.DataLoaderMiddleware(repo)(api),
		),
	)

	mux := http.NewServeMux()
	mux.Handle("/results", corsHandler.Handler(apiHandler))
	mux.Handle("/results/", corsHandler.Handler(apiHandler))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting result grid server on %s (storage: %s)", cfg.Addr, cfg.Storage)
		log.Printf("Metrics available at http://localhost%s/metrics", cfg.Addr)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
