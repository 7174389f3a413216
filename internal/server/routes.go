package server

import (
	"encoding/json"
	"net/http"
)

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /api/projects", handleProjectsList)
	mux.HandleFunc("GET /api/projects/{id}", handleProjectGet)
	mux.HandleFunc("POST /api/projects/{id}/package", handleProjectPackage)
	mux.HandleFunc("POST /api/projects/{id}/chapters/{chapterID}/retry", handleChapterRetry)
	mux.HandleFunc("POST /api/projects/{id}/chapters/{chapterID}/regenerate-audio", handleChapterRegenerateAudio)
	mux.HandleFunc("POST /api/projects/{id}/chapters/{chapterID}/regenerate-images", handleChapterRegenerateImages)

	mux.HandleFunc("GET /api/queue", handleQueueList)
	mux.HandleFunc("POST /api/queue", handleQueueEnqueue)
	mux.HandleFunc("POST /api/queue/pause", handleQueuePause)
	mux.HandleFunc("POST /api/queue/resume", handleQueueResume)
	mux.HandleFunc("POST /api/queue/clear", handleQueueClear)

	mux.HandleFunc("GET /ws", handleWebsocket)
}

// HealthResponse is the response for the health check endpoint.
type HealthResponse struct {
	Status      string `json:"status"`
	QueuePaused bool   `json:"queuePaused"`
	Subscribers int    `json:"subscribers"`
}

// handleHealth returns basic server health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if s.services.Queue != nil {
		resp.QueuePaused = s.services.Queue.Paused()
	}
	if s.services.Hub != nil {
		resp.Subscribers = s.services.Hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// decodeJSON decodes a request body, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
