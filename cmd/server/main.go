package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"delivery-dispatch-service/internal/adapters/cache"
	"delivery-dispatch-service/internal/adapters/notify"
	"delivery-dispatch-service/internal/adapters/repositories"
	"delivery-dispatch-service/internal/api"
	"delivery-dispatch-service/internal/config"
	"delivery-dispatch-service/internal/platform/db"
	"delivery-dispatch-service/internal/ports"
	"delivery-dispatch-service/internal/services"
)

// main is the application composition root.
// It wires concrete adapters (Postgres, Redis, AMQP) behind ports and starts
// the HTTP server plus the offer-expiry sweeper.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	port := config.Get("PORT", "8080")
	seedPath := config.Get("SEED_PATH", "data/seeds/dispatch.json")
	cfg := config.LoadDispatch()

	databaseURL := os.Getenv("DATABASE_URL")
	if strings.TrimSpace(databaseURL) == "" {
		log.Fatal("DATABASE_URL is required")
	}

	conn, err := db.Open(databaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	// Initialize schema and seed demo data on startup for local runs.
	if err := initAndSeed(conn, seedPath); err != nil {
		log.Fatal(err)
	}

	drivers := repositories.NewPostgresDriverRepository(conn)
	orders := repositories.NewPostgresOrderRepository(conn)
	assignments := repositories.NewPostgresAssignmentRepository(conn)
	tracking := repositories.NewPostgresTrackingRepository(conn)

	// Redis and AMQP are optional: without them the engine still dispatches,
	// falling back to persisted driver positions and log-only notifications.
	var locations ports.LocationCache
	if redisURL := os.Getenv("REDIS_URL"); strings.TrimSpace(redisURL) != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Fatalf("parse REDIS_URL: %v", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		locations = cache.NewRedisLocationCache(client, cfg.LocationTTL)
	} else {
		log.Println("REDIS_URL not set, location cache disabled")
	}

	var notifier ports.Notifier
	if amqpURL := os.Getenv("AMQP_URL"); strings.TrimSpace(amqpURL) != "" {
		n, err := notify.Dial(amqpURL)
		if err != nil {
			log.Fatalf("connect AMQP: %v", err)
		}
		defer n.Close()
		notifier = n
	} else {
		log.Println("AMQP_URL not set, notifications disabled")
	}

	clock := ports.SystemClock{}
	directory := services.NewDriverDirectory(drivers, locations, clock, cfg)
	optimizer := services.NewRouteOptimizer(cfg.DefaultMinutesPerKm)
	eta := services.NewETACalculator(cfg, clock)
	coordinator := services.NewCoordinator(orders, drivers, assignments, directory, optimizer, eta, notifier, clock, cfg)
	tracker := services.NewTracker(assignments, tracking, drivers, locations, eta, clock, cfg)
	planner := services.NewBatchPlanner(orders, drivers, assignments, directory, optimizer, notifier, clock, cfg)
	reporting := services.NewReporting(assignments, cfg)

	// Expired offers are timed out by a background sweep, never by requests.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go runSweeper(sweepCtx, coordinator, cfg.SweepInterval)

	router := api.NewRouter(coordinator, tracker, planner, optimizer, reporting)

	log.Printf("Server listening addr=:%s", port)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	log.Fatal(srv.ListenAndServe())
}

func runSweeper(ctx context.Context, coordinator *services.Coordinator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := coordinator.SweepExpiredOffers(ctx); err != nil {
				log.Printf("op=sweep err=%v", err)
			}
		}
	}
}

func initAndSeed(conn *sql.DB, seedPath string) error {
	if err := repositories.InitSchema(conn); err != nil {
		return fmt.Errorf("init and seed: %w", err)
	}

	if err := repositories.SeedFromJSON(conn, seedPath); err != nil {
		return fmt.Errorf("init and seed: %w", err)
	}

	return nil
}
