package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/trainlog/internal/aggregate"
	"example.com/trainlog/internal/api"
	"example.com/trainlog/internal/config"
	"example.com/trainlog/internal/decode"
	"example.com/trainlog/internal/domain"
	"example.com/trainlog/internal/ingest"
	"example.com/trainlog/internal/outbox"
	persistence "example.com/trainlog/internal/persistence/postgres"
	"example.com/trainlog/internal/provider/garmin"
	"example.com/trainlog/internal/reconcile"
	httptransport "example.com/trainlog/internal/transport/http"
)

func main() {
	// Local dev convenience; a missing .env file is fine.
	_ = godotenv.Load()

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)
	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()

	dispatcher := outbox.NewDispatcher(pool, producer, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	go dispatcher.Start(ctx)

	client := garmin.NewClient(cfg.GarminBaseURL, cfg.GarminToken, cfg.ProviderTimeout)
	decoder := decode.NewRegistry()

	engine := reconcile.NewEngine(domain.ProviderGarmin, client, repo)
	importer := ingest.NewImporter(domain.ProviderGarmin, client, decoder, repo,
		ingest.WithKeyTimeout(cfg.ProviderTimeout),
	)
	backfiller := ingest.NewBackfiller(domain.ProviderGarmin, decoder, repo)
	weekly := aggregate.NewService(repo, aggregate.Targets{
		DistanceKM: cfg.WeeklyDistanceKM,
		DurationH:  cfg.WeeklyDurationH,
	})

	handler := api.NewHandler(engine, importer, backfiller, weekly)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	// Simple CORS middleware for local dev
	cors := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "http://localhost:5173")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}

	// Basic request logger
	logger := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("%s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, logger(cors(mux)))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("trainlog listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	dispatcher.Wait()
}
