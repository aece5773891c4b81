package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/madhouse/rconpanel/internal/storage"
)

// handleGetCommandLogs returns command log entries, optionally filtered
// with ?since=<RFC3339>
func (r *Router) handleGetCommandLogs(w http.ResponseWriter, req *http.Request) {
	since, err := parseSince(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid since parameter, expected RFC3339")
		return
	}

	entries, err := r.dispatcher.Logs(req.Context(), since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleExportCommandLogs streams the command log as gzipped JSON lines
func (r *Router) handleExportCommandLogs(w http.ResponseWriter, req *http.Request) {
	since, err := parseSince(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid since parameter, expected RFC3339")
		return
	}

	entries, err := r.dispatcher.Logs(req.Context(), since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	filename := fmt.Sprintf("command-logs-%s.jsonl.gz", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)

	gz := gzip.NewWriter(w)
	defer gz.Close()

	enc := json.NewEncoder(gz)
	for _, entry := range entries {
		if err := enc.Encode(entry); err != nil {
			r.logger.Errorf("api", "exporting command logs: %v", err)
			return
		}
	}
}

// handleResendCommand re-sends the exact command string stored on a
// log entry
func (r *Router) handleResendCommand(w http.ResponseWriter, req *http.Request) {
	entry, err := r.dispatcher.ResendCommand(req.Context(), req.PathValue("id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "log entry not found")
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadGateway, entry)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleResendEvent replays the stored event through trigger matching
func (r *Router) handleResendEvent(w http.ResponseWriter, req *http.Request) {
	entries, err := r.dispatcher.ResendEvent(req.Context(), req.PathValue("id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "log entry not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleGetAppLogs returns buffered application log entries, optionally
// filtered with ?since=<RFC3339>
func (r *Router) handleGetAppLogs(w http.ResponseWriter, req *http.Request) {
	since, err := parseSince(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid since parameter, expected RFC3339")
		return
	}
	writeJSON(w, http.StatusOK, r.logger.Since(since))
}
