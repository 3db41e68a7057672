package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/microsoft/go-mssqldb"

	"hooked-notifications-worker/internal/config"
	"hooked-notifications-worker/internal/connections"
	"hooked-notifications-worker/internal/debounce"
	"hooked-notifications-worker/internal/integrations"
	"hooked-notifications-worker/internal/services"
	"hooked-notifications-worker/internal/triggers"
	"hooked-notifications-worker/internal/worker"
)

func main() {
	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log.Println("Worker starting, id=", config.WorkerId)

	if config.SqlConnString == "" {
		log.Fatal("DB_CONNECTION_STRING environment variable is required")
	}
	if config.PushGatewayURL == "" {
		log.Fatal("PUSH_GATEWAY_URL environment variable is required")
	}

	// Create metrics instance
	metrics := services.NewMetrics()

	// Connect to Db
	db := connections.InitDB(ctx)
	defer db.Close()

	store := integrations.NewStore(db, metrics)
	gateway := integrations.NewPushGatewayClient(metrics)
	cache := debounce.New(
		time.Duration(config.DebounceWindowSeconds)*time.Second,
		config.DebounceMaxEntries,
	)

	w := worker.New(store, gateway, cache, metrics,
		config.MaxAttempts,
		time.Duration(config.StaleAfterHours)*time.Hour,
		config.DrainBatchSize,
	)

	// Trigger entry points invoked by the document store's change feed.
	// Every enqueue kicks an opportunistic drain so the 1-minute cadence is
	// a backstop, not the latency floor.
	detectors := triggers.NewDetectors(store, metrics, w.Kick)
	detectors.RegisterHTTPHandlers()

	// Start metrics logger (logs every 30 seconds)
	go services.LogMetricsPeriodically(ctx, metrics, 30*time.Second)

	// Start health check server (serves the trigger endpoints too)
	services.StartHealthCheckServer(metrics)

	// Start reaper
	go w.ReaperLoop(ctx, time.Duration(config.ReaperIntervalSeconds)*time.Second)

	log.Println("worker started, id=", config.WorkerId)

	// Blocks until shutdown: scheduled drain + opportunistic kicks
	w.Run(ctx, time.Duration(config.DrainIntervalSeconds)*time.Second)

	log.Println("Shut down complete")
}
