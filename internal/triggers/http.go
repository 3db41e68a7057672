package triggers

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"

	"hooked-notifications-worker/internal/constants"
	"hooked-notifications-worker/internal/models"
)

// likeWrittenRequest carries the before/after snapshots of a like document
// write. Either side may be null (creation has no before, deletion no after).
type likeWrittenRequest struct {
	Before *models.LikeSnapshot `json:"before"`
	After  *models.LikeSnapshot `json:"after"`
}

// createJobRequest is the external job-creation payload.
type createJobRequest struct {
	Type             string            `json:"type"`
	EventId          string            `json:"event_id"`
	SubjectSessionId string            `json:"subject_session_id"`
	ActorSessionId   string            `json:"actor_session_id,omitempty"`
	Title            string            `json:"title"`
	Body             string            `json:"body,omitempty"`
	Data             map[string]string `json:"data,omitempty"`
	AggregationKey   string            `json:"aggregation_key"`
}

// RegisterHTTPHandlers wires the change-feed entry points onto the default
// mux. Detector failures never surface to the caller: once the payload
// parses, the response is 204 regardless of what the detector decided.
func (d *Detectors) RegisterHTTPHandlers() {
	http.HandleFunc("/triggers/like-written", d.likeWrittenHandler)
	http.HandleFunc("/triggers/message-created", d.messageCreatedHandler)
	http.HandleFunc("/jobs", d.createJobHandler)
}

func (d *Detectors) likeWrittenHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req likeWrittenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	d.HandleLikeWritten(r.Context(), req.Before, req.After)
	w.WriteHeader(http.StatusNoContent)
}

func (d *Detectors) messageCreatedHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var msg models.MessageSnapshot
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if msg.MessageId == "" || msg.EventId == "" {
		http.Error(w, "message_id and event_id are required", http.StatusBadRequest)
		return
	}

	d.HandleMessageCreated(r.Context(), msg)
	w.WriteHeader(http.StatusNoContent)
}

// createJobHandler lets external callers enqueue a job directly, bypassing
// the detectors but not the enqueue-time duplicate suppression.
func (d *Detectors) createJobHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	switch req.Type {
	case constants.JobTypeMessage, constants.JobTypeMatch, constants.JobTypeLike, constants.JobTypeGeneric:
	default:
		http.Error(w, "unknown job type", http.StatusBadRequest)
		return
	}
	if req.SubjectSessionId == "" || req.AggregationKey == "" || req.Title == "" {
		http.Error(w, "subject_session_id, aggregation_key and title are required", http.StatusBadRequest)
		return
	}

	job := &models.NotificationJob{
		Type:             req.Type,
		EventId:          req.EventId,
		SubjectSessionId: req.SubjectSessionId,
		Title:            req.Title,
		Data:             req.Data,
		AggregationKey:   req.AggregationKey,
	}
	if req.ActorSessionId != "" {
		job.ActorSessionId = sql.NullString{String: req.ActorSessionId, Valid: true}
	}
	if req.Body != "" {
		job.Body = sql.NullString{String: req.Body, Valid: true}
	}

	created, err := d.store.EnqueueJob(r.Context(), job)
	if err != nil {
		log.Printf("external enqueue err subject=%s: %v", req.SubjectSessionId, err)
		http.Error(w, "enqueue failed", http.StatusInternalServerError)
		return
	}
	if created {
		d.metrics.ExternalJobsCreated.Add(1)
		d.onEnqueue()
	} else {
		d.metrics.DuplicateJobsDropped.Add(1)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{"created": created, "id": job.Id})
}
