package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/Mihir-M112/VisiQ-GPT/internal/extract"
	"github.com/Mihir-M112/VisiQ-GPT/internal/logging"
	"github.com/Mihir-M112/VisiQ-GPT/internal/responder"
	"github.com/Mihir-M112/VisiQ-GPT/internal/session"
	"github.com/Mihir-M112/VisiQ-GPT/internal/vision"
)

// Generation defaults applied when the request omits a parameter.
const (
	defaultMaxTokens   = 300
	defaultTemperature = 0.7
	defaultTopP        = 0.9
	defaultTopKSample  = 40
)

// errUploadTooLarge means an upload exceeded Config.MaxUploadBytes.
var errUploadTooLarge = errors.New("upload exceeds the size limit")

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError sends a JSON error body. Internal detail stays in the log.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requestOptions converts the request's sampling fields into model options,
// filling omitted values from the server's configured defaults.
func (s *Server) requestOptions(req *generateRequest) *vision.Options {
	opts := &vision.Options{
		Temperature: req.Temperature,
		TopP:        req.TopP,
		TopK:        req.TopK,
		NumPredict:  req.MaxTokens,
	}
	def := s.cfg.Defaults
	if opts.NumPredict <= 0 {
		opts.NumPredict = def.NumPredict
	}
	if opts.Temperature <= 0 {
		opts.Temperature = def.Temperature
	}
	if opts.TopP <= 0 {
		opts.TopP = def.TopP
	}
	if opts.TopK <= 0 {
		opts.TopK = def.TopK
	}
	return opts
}

// resolveSession returns a usable session ID: the provided one (created on
// first use) or a freshly generated one. With no session store configured the
// provided ID passes through unchanged.
func (s *Server) resolveSession(r *http.Request, id string) (string, error) {
	if s.sessions == nil {
		return id, nil
	}
	if id != "" {
		return id, s.sessions.Ensure(r.Context(), id)
	}
	return s.sessions.Create(r.Context())
}

// handleGenerate handles POST /api/generate: a single non-streaming answer.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	sessionID, err := s.resolveSession(r, req.SessionID)
	if err != nil {
		s.failQuery(w, r, "session setup failed", err)
		return
	}

	resp, err := s.answerer.Respond(r.Context(), &responder.Request{
		SessionID: sessionID,
		Query:     req.Query,
		Options:   s.requestOptions(&req),
	})
	if err != nil {
		s.metrics.queryRequestsTotal.WithLabelValues(outcomeError).Inc()
		s.failQuery(w, r, "generation failed", err)
		return
	}

	s.metrics.queryRequestsTotal.WithLabelValues(outcomeOK).Inc()
	s.metrics.queryDurationSeconds.WithLabelValues(outcomeOK).Observe(time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, generateResponse{
		Answer:    resp.Answer,
		SessionID: sessionID,
		Sources:   toSourceRefs(resp.Sources),
	})
}

// handleQuery handles POST /api/query: the same pipeline as /api/generate but
// streamed as Server-Sent Events so the client renders tokens as they arrive.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	sessionID, err := s.resolveSession(r, req.SessionID)
	if err != nil {
		s.failQuery(w, r, "session setup failed", err)
		return
	}

	// SSE headers must be set before the first write.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	fmt.Fprintf(w, "event: session\ndata: %s\n\n", sessionID)
	flusher.Flush()

	s.metrics.queryActiveStreams.Inc()
	defer s.metrics.queryActiveStreams.Dec()

	sw := &sseWriter{w: w, flusher: flusher}
	resp, err := s.answerer.RespondStream(r.Context(), &responder.Request{
		SessionID: sessionID,
		Query:     req.Query,
		Options:   s.requestOptions(&req),
	}, sw)
	if err != nil {
		s.metrics.queryRequestsTotal.WithLabelValues(outcomeError).Inc()
		logging.FromContext(r.Context()).Error("query stream failed", slog.Any("error", err))
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", err.Error())
		flusher.Flush()
		return
	}

	if refs := toSourceRefs(resp.Sources); len(refs) > 0 {
		if raw, err := json.Marshal(refs); err == nil {
			fmt.Fprintf(w, "event: sources\ndata: %s\n\n", raw)
		}
	}
	fmt.Fprintf(w, "event: done\ndata: [DONE]\n\n")
	flusher.Flush()

	s.metrics.queryRequestsTotal.WithLabelValues(outcomeOK).Inc()
	s.metrics.queryDurationSeconds.WithLabelValues(outcomeOK).Observe(time.Since(start).Seconds())
}

// handleAnalyze handles POST /api/analyze: a multipart image upload answered
// directly by the vision model, without touching the index.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	if extract.InferKind(header.Filename) != extract.KindImage {
		writeError(w, http.StatusUnsupportedMediaType, "file must be an image")
		return
	}

	// Read one byte past the cap so an oversized upload is detected
	// instead of silently truncated.
	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		s.failQuery(w, r, "reading upload failed", err)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit")
		return
	}

	query := r.FormValue("query")
	if query == "" {
		query = "Describe this image in detail."
	}

	sessionID, err := s.resolveSession(r, r.FormValue("session_id"))
	if err != nil {
		s.failQuery(w, r, "session setup failed", err)
		return
	}

	resp, err := s.answerer.Respond(r.Context(), &responder.Request{
		SessionID: sessionID,
		Query:     query,
		Images:    []string{base64.StdEncoding.EncodeToString(data)},
	})
	if err != nil {
		s.failQuery(w, r, "analysis failed", err)
		return
	}

	writeJSON(w, http.StatusOK, analyzeResponse{
		Answer:    resp.Answer,
		SessionID: sessionID,
	})
}

// handleIngest handles POST /api/ingest: a multipart file upload that is
// stored and indexed. The uploading session's current file is updated so
// follow-up queries target the new document.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.ingester == nil {
		writeError(w, http.StatusServiceUnavailable, "ingestion is not configured")
		return
	}

	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	if extract.InferKind(header.Filename) == extract.KindUnknown {
		writeError(w, http.StatusUnsupportedMediaType, "unsupported file type")
		return
	}

	dest := filepath.Join(s.cfg.UploadDir, filepath.Base(header.Filename))
	if err := saveUpload(file, dest, s.cfg.MaxUploadBytes); err != nil {
		if errors.Is(err, errUploadTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit")
			return
		}
		s.failQuery(w, r, "storing upload failed", err)
		return
	}

	result, err := s.ingester.IngestFile(r.Context(), dest)
	if err != nil {
		s.failQuery(w, r, "ingestion failed", err)
		return
	}

	sessionID := r.FormValue("session_id")
	if sessionID != "" && s.sessions != nil {
		if err := s.sessions.Ensure(r.Context(), sessionID); err == nil {
			err = s.sessions.SetCurrentFile(r.Context(), sessionID, dest)
		}
		if err != nil {
			logging.FromContext(r.Context()).Warn("updating session current file failed",
				slog.String("session_id", sessionID),
				slog.Any("error", err),
			)
		}
	}

	writeJSON(w, http.StatusOK, ingestResponse{
		Source:    result.Source,
		Kind:      string(result.Kind),
		Chunks:    result.Chunks,
		Cached:    result.Cached,
		SessionID: sessionID,
	})
}

// handleSessionDelete handles DELETE /api/session/{id}.
func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "sessions are not configured")
		return
	}
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "session id is required")
		return
	}
	if err := s.sessions.Delete(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.failQuery(w, r, "deleting session failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

// failQuery logs the underlying error and sends a generic 500 to the client.
func (s *Server) failQuery(w http.ResponseWriter, r *http.Request, msg string, err error) {
	logging.FromContext(r.Context()).Error(msg, slog.Any("error", err))
	writeError(w, http.StatusInternalServerError, msg)
}

// saveUpload streams the uploaded content to dest. An upload larger than
// maxBytes is rejected with errUploadTooLarge and the partial file removed,
// never truncated and indexed.
func saveUpload(src io.Reader, dest string, maxBytes int64) error {
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	defer out.Close()

	n, err := io.Copy(out, io.LimitReader(src, maxBytes+1))
	if err != nil {
		os.Remove(dest)
		return fmt.Errorf("write %s: %w", dest, err)
	}
	if n > maxBytes {
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("%s: %w", dest, errUploadTooLarge)
	}
	return nil
}
