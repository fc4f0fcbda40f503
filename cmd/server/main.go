package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/solvegate/solvegate/internal/alert"
	"github.com/solvegate/solvegate/internal/api"
	"github.com/solvegate/solvegate/internal/archive"
	"github.com/solvegate/solvegate/internal/dashboard"
	"github.com/solvegate/solvegate/internal/engine"
	"github.com/solvegate/solvegate/internal/solver"
	"github.com/solvegate/solvegate/internal/store"
)

func main() {
	solverURL := os.Getenv("SOLVER_URL")
	if solverURL == "" {
		log.Fatal("SOLVER_URL is required")
	}

	if os.Getenv("API_KEY") == "" {
		log.Printf("Warning: API_KEY is not set, all createTask requests will be rejected")
	}

	cfg := engine.DefaultConfig()
	if raw := os.Getenv("WORKERS"); raw != "" {
		workers, err := strconv.Atoi(raw)
		if err != nil || workers <= 0 {
			log.Fatalf("Invalid WORKERS value %q", raw)
		}
		cfg.Workers = workers
	}

	var st store.Store
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		redisStore, err := store.NewRedisStore(redisAddr, store.Config{})
		if err != nil {
			log.Fatal(err)
		}
		defer func() {
			if err := redisStore.Close(); err != nil {
				log.Printf("failed to close redis store: %v", err)
			}
		}()

		st = redisStore
		log.Printf("Using Redis store at %s", redisAddr)
	} else {
		st = store.NewMemoryStore(store.Config{})
		log.Printf("Using in-memory store")
	}

	e := engine.New(cfg, st, solver.NewRemote(solverURL))

	var history dashboard.History
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		arch, err := archive.New(dsn)
		if err != nil {
			log.Fatal(err)
		}
		defer func() {
			if err := arch.Close(); err != nil {
				log.Printf("failed to close archive: %v", err)
			}
		}()

		e.AddSink(arch.Sink())
		history = arch
		log.Printf("Solve history archiving enabled")
	}

	if alertTo := os.Getenv("ALERT_TO"); alertTo != "" {
		e.AddRecoveryHook(alert.New(alertTo).Hook())
		log.Printf("Recovery alerts enabled for %s", alertTo)
	}

	go e.Monitor(context.Background())
	go startMetricsCollector(e)

	apiHandler := api.NewAPI(e, history)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on :%s", port)
	log.Printf("Workers: %d, solver: %s", cfg.Workers, solverURL)

	if err := http.ListenAndServe(":"+port, apiHandler); err != nil {
		log.Fatal(err)
	}
}
