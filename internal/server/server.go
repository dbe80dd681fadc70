// Package server exposes the voice pipeline over HTTP.
//
// Two transports are offered: a single-shot multipart upload on
// POST /process-audio, and a chunked WebSocket stream on /ws for clients
// that record while speaking. Both feed the same pipeline and share the
// session registry, so a caller can mix transports within one conversation.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/verbalis-ai/verbalis/internal/config"
	"github.com/verbalis-ai/verbalis/internal/health"
	"github.com/verbalis-ai/verbalis/internal/observe"
	"github.com/verbalis-ai/verbalis/internal/pipeline"
	"github.com/verbalis-ai/verbalis/internal/session"
)

const (
	// sessionHeader carries the client's conversation identifier. Clients
	// without one get a server-assigned UUID echoed back in the response.
	sessionHeader = "X-Session-ID"

	// multipartOverhead is slack added on top of the configured upload cap
	// for multipart framing and the non-file form fields.
	multipartOverhead = 1 << 20

	// shutdownTimeout bounds graceful drain of in-flight requests.
	shutdownTimeout = 15 * time.Second

	// idleSessionTTL is how long a session may sit untouched before the
	// janitor evicts it.
	idleSessionTTL = 30 * time.Minute

	// janitorInterval is how often idle sessions are swept.
	janitorInterval = time.Minute
)

// Config holds the server's own settings, extracted from the full
// application config by the caller.
type Config struct {
	ListenAddr     string
	MaxUploadBytes int64
	ChunkThreshold int
	MinChunkBytes  int
	TLS            *config.TLSConfig
}

// Server ties the HTTP surface to the pipeline and session registry.
type Server struct {
	cfg      Config
	pipe     *pipeline.Pipeline
	sessions *session.Registry
	metrics  *observe.Metrics
	health   *health.Handler
}

// New creates a Server. The health checkers are evaluated on /readyz.
func New(cfg Config, pipe *pipeline.Pipeline, sessions *session.Registry, metrics *observe.Metrics, checkers ...health.Checker) *Server {
	return &Server{
		cfg:      cfg,
		pipe:     pipe,
		sessions: sessions,
		metrics:  metrics,
		health:   health.New(checkers...),
	}
}

// Handler builds the route table wrapped in the observability middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /process-audio", s.handleProcessAudio)
	mux.HandleFunc("POST /reset-session", s.handleResetSession)
	mux.HandleFunc("GET /ws", s.handleStream)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.health.Register(mux)
	return observe.Middleware(s.metrics)(mux)
}

// Run serves until ctx is cancelled, then drains in-flight requests for up
// to shutdownTimeout. A background janitor evicts idle sessions while the
// server runs.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if s.cfg.TLS != nil {
			err = srv.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		ticker := time.NewTicker(janitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n := s.sessions.EvictIdle(idleSessionTTL); n > 0 {
					s.metrics.ActiveSessions.Add(ctx, int64(-n))
					observe.Logger(ctx).Debug("evicted idle sessions", "count", n)
				}
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// processResponse is the success body for POST /process-audio.
type processResponse struct {
	// Text is the transcription of the uploaded audio.
	Text string `json:"text"`

	// Response is the assistant's reply.
	Response string `json:"response"`

	// Audio is the reply as a data:audio/mp3;base64,… URI.
	Audio string `json:"audio"`

	// SessionID echoes the conversation identifier, including a
	// server-assigned one when the client sent none.
	SessionID string `json:"session_id"`
}

// errorResponse is the body for every non-2xx outcome.
type errorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// handleProcessAudio runs one full voice turn from a multipart upload. The
// form carries the audio file under "audio" plus optional "category" and
// "voice_model" selectors.
func (s *Server) handleProcessAudio(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+multipartOverhead)

	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes + multipartOverhead); err != nil {
		s.writeError(w, r, &pipeline.ValidationError{Err: fmt.Errorf("parse multipart form: %w", err)})
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		s.writeError(w, r, &pipeline.ValidationError{Err: errors.New(`missing "audio" form file`)})
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("read upload: %w", err))
		return
	}

	sess := s.obtainSession(r)
	result, err := s.pipe.Process(ctx, sess, pipeline.Request{
		Audio:      audio,
		MIMEType:   header.Header.Get("Content-Type"),
		Category:   config.Category(r.FormValue("category")),
		VoiceModel: config.VoiceModel(r.FormValue("voice_model")),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set(sessionHeader, sess.ID())
	writeJSON(w, http.StatusOK, processResponse{
		Text:      result.Text,
		Response:  result.Response,
		Audio:     result.AudioDataURI,
		SessionID: sess.ID(),
	})
}

// handleResetSession clears the conversation history for the caller's
// session. Other sessions are untouched; resetting an unknown session is a
// no-op success so clients can reset unconditionally.
func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	if id == "" {
		s.writeError(w, r, &pipeline.ValidationError{Err: errors.New("no session identifier supplied")})
		return
	}
	existed := s.sessions.Reset(id)
	observe.Logger(r.Context()).Info("session reset", "session_id", id, "existed", existed)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "session_id": id})
}

// obtainSession resolves the request's session, creating one under a fresh
// UUID when the client supplied no identifier.
func (s *Server) obtainSession(r *http.Request) *session.Session {
	id := sessionID(r)
	if id == "" {
		id = uuid.NewString()
	}
	sess, created := s.sessions.Obtain(id)
	if created {
		s.metrics.ActiveSessions.Add(r.Context(), 1)
	}
	return sess
}

// sessionID extracts the conversation identifier from the header, form
// field, or query parameter, in that order of precedence.
func sessionID(r *http.Request) string {
	if id := r.Header.Get(sessionHeader); id != "" {
		return id
	}
	if id := r.FormValue("session_id"); id != "" {
		return id
	}
	return r.URL.Query().Get("session_id")
}

// statusFor maps pipeline errors onto HTTP status codes. Client mistakes
// are 4xx, upstream provider trouble is 502, and a blown time budget is 504.
func statusFor(err error) int {
	var (
		validationErr *pipeline.ValidationError
		sessionErr    *pipeline.SessionError
		timeoutErr    *pipeline.TimeoutError
		remoteErr     *pipeline.RemoteServiceError
		transcodeErr  *pipeline.TranscodeError
	)
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &sessionErr):
		return http.StatusNotFound
	case errors.As(err, &timeoutErr):
		return http.StatusGatewayTimeout
	case errors.As(err, &remoteErr), errors.As(err, &transcodeErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError emits the JSON error body with the request's correlation ID so
// callers can quote it when reporting problems.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	cid := observe.CorrelationID(r.Context())

	log := observe.Logger(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "status", status, "error", err)
	} else {
		log.Info("request rejected", "status", status, "error", err)
	}

	writeJSON(w, status, errorResponse{Error: err.Error(), CorrelationID: cid})
}

// writeJSON encodes v with the given status. Encoding failures are logged
// rather than surfaced; the status line has already been written.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		observe.Logger(context.Background()).Warn("response encode failed", "error", err)
	}
}
