// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package service

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	rgerr "github.com/kraklabs/repograph/internal/errors"
	"github.com/kraklabs/repograph/pkg/job"
)

// NewHandler builds the HTTP binding for the service. Errors never escape a
// handler: they are translated to {success:false, error:{kind, message}}
// with a status derived from the kind.
func NewHandler(s *Service) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			writeError(w, s.logger, rgerr.Newf(rgerr.KindNotFound, "no route for %s", r.URL.Path))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"service": "repograph",
			"status":  "running",
		})
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Health())
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /parse", func(w http.ResponseWriter, r *http.Request) {
		var req ParseRequest
		if !decodeBody(w, r, s.logger, &req) {
			return
		}
		jobID, err := s.Parse(req)
		if err != nil {
			writeError(w, s.logger, err)
			return
		}
		writeJobAccepted(w, jobID, "parse job submitted")
	})

	mux.HandleFunc("POST /index", func(w http.ResponseWriter, r *http.Request) {
		var req IndexRequest
		if !decodeBody(w, r, s.logger, &req) {
			return
		}
		jobID, err := s.Index(req)
		if err != nil {
			writeError(w, s.logger, err)
			return
		}
		writeJobAccepted(w, jobID, "index job submitted")
	})

	mux.HandleFunc("POST /parse_and_index", func(w http.ResponseWriter, r *http.Request) {
		var req ParseAndIndexRequest
		if !decodeBody(w, r, s.logger, &req) {
			return
		}
		jobID, err := s.ParseAndIndex(req)
		if err != nil {
			writeError(w, s.logger, err)
			return
		}
		writeJobAccepted(w, jobID, "parse and index job submitted")
	})

	mux.HandleFunc("POST /search", func(w http.ResponseWriter, r *http.Request) {
		var req SearchRequest
		if !decodeBody(w, r, s.logger, &req) {
			return
		}
		resp, err := s.Search(r.Context(), req)
		if err != nil {
			writeError(w, s.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("POST /analyze", func(w http.ResponseWriter, r *http.Request) {
		var req AnalyzeRequest
		if !decodeBody(w, r, s.logger, &req) {
			return
		}
		resp, err := s.Analyze(r.Context(), req)
		if err != nil {
			writeError(w, s.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("GET /jobs", func(w http.ResponseWriter, r *http.Request) {
		jobs, totals := s.ListJobs()
		byID := make(map[string]job.Snapshot, len(jobs))
		for _, snap := range jobs {
			byID[snap.ID] = snap
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"total":     len(jobs),
			"active":    totals[job.StatePending] + totals[job.StateRunning],
			"completed": totals[job.StateCompleted],
			"failed":    totals[job.StateFailed],
			"jobs":      byID,
		})
	})

	mux.HandleFunc("GET /jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		snap, err := s.Status(r.PathValue("id"))
		if err != nil {
			writeError(w, s.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "job": snap})
	})

	mux.HandleFunc("POST /jobs/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := s.CancelJob(id); err != nil {
			writeError(w, s.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "job_id": id, "message": "cancellation requested"})
	})

	mux.HandleFunc("DELETE /jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := s.DeleteJob(id); err != nil {
			writeError(w, s.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "job_id": id})
	})

	mux.HandleFunc("GET /collections", func(w http.ResponseWriter, r *http.Request) {
		collections, err := s.ListCollections(r.Context())
		if err != nil {
			writeError(w, s.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":           true,
			"qdrant_url":        s.cfg.QdrantURL,
			"total_collections": len(collections),
			"collections":       collections,
		})
	})

	return mux
}

func decodeBody(w http.ResponseWriter, r *http.Request, logger *slog.Logger, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeError(w, logger, rgerr.Wrap(rgerr.KindInvalidInput, "decode request body", err))
		return false
	}
	return true
}

func writeJobAccepted(w http.ResponseWriter, jobID, message string) {
	writeJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"job_id":  jobID,
		"status":  "processing",
		"message": message,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps an error kind to an HTTP status and emits the structured
// error envelope.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := rgerr.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case rgerr.KindInvalidInput:
		status = http.StatusBadRequest
	case rgerr.KindNotFound:
		status = http.StatusNotFound
	case rgerr.KindIndexUnavailable, rgerr.KindIndexNotReady:
		status = http.StatusServiceUnavailable
	case rgerr.KindTimeout:
		status = http.StatusGatewayTimeout
	case rgerr.KindFetchFailed, rgerr.KindParseFailed, rgerr.KindEmbedFailed:
		status = http.StatusUnprocessableEntity
	}
	if logger != nil {
		logger.Warn("http.request.failed", "kind", kind, "status", status, "error", err)
	}
	writeJSON(w, status, map[string]any{
		"success": false,
		"error": map[string]any{
			"kind":    string(kind),
			"message": err.Error(),
		},
	})
}
