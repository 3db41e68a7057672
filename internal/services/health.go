package services

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"hooked-notifications-worker/internal/config"
)

// HealthStatus represents the health check response structure
type HealthStatus struct {
	Status              string `json:"status"`
	WorkerID            string `json:"worker_id"`
	Uptime              string `json:"uptime"`
	MatchJobsEnqueued   int64  `json:"match_jobs_enqueued"`
	MessageJobsEnqueued int64  `json:"message_jobs_enqueued"`
	JobsSent            int64  `json:"jobs_sent"`
	PushesDelivered     int64  `json:"pushes_delivered"`
	JobsRetried         int64  `json:"jobs_retried"`
	PermanentFailures   int64  `json:"permanent_failures"`
	TotalErrors         int64  `json:"total_errors"`
}

// StartHealthCheckServer starts the HTTP server for health checks and the
// trigger endpoints registered on the default mux before this call.
func StartHealthCheckServer(metrics *Metrics) {
	go func() {
		http.HandleFunc("/health", HealthCheckHandler(metrics))
		http.HandleFunc("/healthz", HealthCheckHandler(metrics)) // Alternative endpoint for k8s

		addr := ":" + config.HealthCheckPort
		log.Printf("Health check server starting on %s\n", addr)

		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Printf("Health check server error: %v\n", err)
		}
	}()
}

// HealthCheckHandler returns an HTTP handler for health checks
func HealthCheckHandler(metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := time.Since(metrics.StartTime)

		totalErrors := metrics.PushErrors.Load() +
			metrics.RateLimitErrors.Load() +
			metrics.DatabaseErrors.Load()

		health := HealthStatus{
			Status:              "healthy",
			WorkerID:            config.WorkerId,
			Uptime:              uptime.String(),
			MatchJobsEnqueued:   metrics.MatchJobsEnqueued.Load(),
			MessageJobsEnqueued: metrics.MessageJobsEnqueued.Load(),
			JobsSent:            metrics.JobsSent.Load(),
			PushesDelivered:     metrics.PushesDelivered.Load(),
			JobsRetried:         metrics.JobsRetried.Load(),
			PermanentFailures: metrics.JobsPermanentlyFailed.Load() +
				metrics.StaleJobsExpired.Load() +
				metrics.NoTokenFailures.Load(),
			TotalErrors: totalErrors,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(health)
	}
}
