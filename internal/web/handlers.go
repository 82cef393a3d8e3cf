package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/nem2sql/internal/core"
	"github.com/JonMunkholm/nem2sql/internal/web/ui"
)

// handleIndex renders the converter page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := ui.PageData{
		Title:          "NEM12 to SQL",
		MaxUploadBytes: s.cfg.Convert.MaxUploadBytes,
		History:        s.service.History(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	ui.Page(data).Render(r.Context(), w)
}

// handleStartConversion accepts a CSV file upload and starts an asynchronous
// conversion. The file streams straight into the parser; memory stays
// O(batch_size) regardless of file size.
func (s *Server) handleStartConversion(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Convert.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}

	// No defer file.Close() here. The service owns the file once Start
	// accepts it and closes it when the conversion goroutine is done.
	id, err := s.service.Start(r.Context(), core.Request{
		FileName: header.Filename,
		Size:     header.Size,
		Source:   file,
	})
	if err != nil {
		file.Close()
		status := http.StatusBadRequest
		if errors.Is(err, core.ErrTooManyConversions) {
			w.Header().Set("Retry-After", "5")
			status = http.StatusServiceUnavailable
		}
		s.respondError(w, r, err, status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"conversion_id": id})
}

// handleEvents streams conversion progress via Server-Sent Events.
// Supports resumption via the Last-Event-ID header or lastEventId query
// parameter for reconnection.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conversionID := chi.URLParam(r, "conversionID")
	if conversionID == "" {
		writeError(w, http.StatusBadRequest, "missing conversion ID")
		return
	}

	// The event ID is the progress percentage, allowing clients to skip
	// already-received events after reconnection
	lastEventIDStr := r.Header.Get("Last-Event-ID")
	if lastEventIDStr == "" {
		lastEventIDStr = r.URL.Query().Get("lastEventId")
	}
	var lastEventID int
	if lastEventIDStr != "" {
		lastEventID, _ = strconv.Atoi(lastEventIDStr)
	}

	progressCh, err := s.service.SubscribeProgress(conversionID)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	// Middleware wraps the ResponseWriter, so reach the flusher through the
	// Unwrap chain instead of a direct type assertion.
	rc := http.NewResponseController(w)

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				// Channel closed - conversion reached a terminal state
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				rc.Flush()
				return
			}

			currentPercent := progress.Percent()

			// Skip events that were already sent (for resumption).
			// Terminal updates always go out.
			if lastEventIDStr != "" && currentPercent <= lastEventID && !progress.Phase.Terminal() {
				continue
			}

			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", currentPercent, data)
			rc.Flush()

		case <-heartbeat.C:
			// Comment line keeps proxies from idling out the stream
			fmt.Fprintf(w, ": ping\n\n")
			rc.Flush()

		case <-r.Context().Done():
			// Client disconnected
			return
		}
	}
}

// handleGetConversion returns the final result of a conversion, blocking
// until it finishes.
func (s *Server) handleGetConversion(w http.ResponseWriter, r *http.Request) {
	conversionID := chi.URLParam(r, "conversionID")
	if conversionID == "" {
		writeError(w, http.StatusBadRequest, "missing conversion ID")
		return
	}

	result, err := s.service.Result(r.Context(), conversionID)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	writeJSON(w, toResponse(result))
}

// handleReadings renders the emitted readings as an HTML table fragment.
func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	conversionID := chi.URLParam(r, "conversionID")
	if conversionID == "" {
		writeError(w, http.StatusBadRequest, "missing conversion ID")
		return
	}

	readings, err := s.service.Readings(conversionID)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	ui.ReadingsTable(readings).Render(r.Context(), w)
}

// handleScript returns the generated SQL script as plain text, blocking
// until the conversion finishes. With ?download=1 the response carries an
// attachment disposition.
func (s *Server) handleScript(w http.ResponseWriter, r *http.Request) {
	conversionID := chi.URLParam(r, "conversionID")
	if conversionID == "" {
		writeError(w, http.StatusBadRequest, "missing conversion ID")
		return
	}

	script, err := s.service.Script(r.Context(), conversionID)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if r.URL.Query().Get("download") == "1" {
		filename := fmt.Sprintf("conversion_%s.sql", conversionID)
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	}
	w.Write([]byte(script))
}

// handlePreviewFile classifies the first rows of a CSV file without
// starting a conversion.
func (s *Server) handlePreviewFile(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Convert.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	result, err := core.Preview(file, s.cfg.Convert.PreviewRows)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	writeJSON(w, result)
}

// handleHistory returns recent conversions, as an HTML fragment for HTMX
// requests and JSON otherwise.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history := s.service.History()

	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		ui.HistoryList(history).Render(r.Context(), w)
		return
	}

	writeJSON(w, history)
}

// handleQueue returns the current state of the conversion limiter.
// Used for monitoring and to check if the system can accept more conversions.
func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.service.Queue())
}

// handleHealthz reports liveness.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// handleFlushConversions drops all finished conversions from the registry.
func (s *Server) handleFlushConversions(w http.ResponseWriter, r *http.Request) {
	flushed := s.service.FlushFinished()
	writeJSON(w, map[string]int{"flushed": flushed})
}

// statusFor picks the HTTP status for a service error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ConversionResponse wraps the conversion result for JSON encoding.
type ConversionResponse struct {
	ConversionID string `json:"conversion_id"`
	FileName     string `json:"file_name"`
	RowsRead     int    `json:"rows_read"`
	Records      int    `json:"records"`
	Statements   int    `json:"statements"`
	Duration     string `json:"duration"`
	Error        string `json:"error,omitempty"`
}

// toResponse converts a Result to a JSON-friendly format.
func toResponse(result *core.Result) ConversionResponse {
	return ConversionResponse{
		ConversionID: result.ConversionID,
		FileName:     result.FileName,
		RowsRead:     result.RowsRead,
		Records:      len(result.Records),
		Statements:   len(result.Statements),
		Duration:     result.Duration.String(),
		Error:        result.Error,
	}
}
