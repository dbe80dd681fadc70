package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/verbalis-ai/verbalis/internal/config"
	"github.com/verbalis-ai/verbalis/internal/observe"
	"github.com/verbalis-ai/verbalis/internal/pipeline"
	"github.com/verbalis-ai/verbalis/internal/session"
)

// streamMIMEType is the container browsers produce when recording for the
// chunk stream. Single-shot uploads declare their own type; the stream is
// always Opus-in-WebM.
const streamMIMEType = "audio/webm;codecs=opus"

// chunkMessage is one inbound frame on the chunk stream.
type chunkMessage struct {
	// Audio is the base64-encoded chunk payload.
	Audio string `json:"audio"`

	// Timestamp is the client's capture time in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// IsLastChunk marks the end of the utterance and forces a flush.
	IsLastChunk bool `json:"isLastChunk"`
}

// streamEvent is one outbound frame. Type is "transcription",
// "audio_response", or "error"; the other fields are filled per type.
type streamEvent struct {
	Type          string `json:"type"`
	Text          string `json:"text,omitempty"`
	Response      string `json:"response,omitempty"`
	Audio         string `json:"audio,omitempty"`
	Error         string `json:"error,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// handleStream runs the chunked WebSocket transport. Chunks land in the
// session's aggregator so a reset-session request can drop buffered audio
// mid-utterance; chunk arrival itself is serialized by the sequential reads
// off the socket. Closing the connection drops any buffered chunks while the
// session history stays in the registry for a later reconnect.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observe.Logger(ctx)

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Info("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	sess := s.obtainSession(r)
	category := config.Category(r.URL.Query().Get("category"))
	voiceModel := config.VoiceModel(r.URL.Query().Get("voice_model"))
	log = log.With("session_id", sess.ID())

	s.metrics.ActiveStreams.Add(ctx, 1)
	defer s.metrics.ActiveStreams.Add(context.WithoutCancel(ctx), -1)

	agg := sess.Aggregator(s.cfg.ChunkThreshold, s.cfg.MinChunkBytes)
	defer agg.Reset()
	log.Info("stream opened", "category", category, "voice_model", voiceModel)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				log.Info("stream closed", "pending_chunks", agg.PendingChunks())
			} else {
				log.Warn("stream read failed", "error", err)
			}
			return
		}

		var msg chunkMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.rejectChunk(ctx, conn, "malformed chunk message", "malformed")
			continue
		}

		payload, err := base64.StdEncoding.DecodeString(msg.Audio)
		if err != nil {
			s.rejectChunk(ctx, conn, "chunk audio is not valid base64", "bad_base64")
			continue
		}

		flush, err := agg.Add(session.Chunk{
			Data:      payload,
			Timestamp: time.UnixMilli(msg.Timestamp),
			Last:      msg.IsLastChunk,
		})
		if errors.Is(err, session.ErrChunkTooSmall) {
			s.rejectChunk(ctx, conn, "chunk below minimum size", "too_small")
			continue
		}
		if err != nil {
			s.rejectChunk(ctx, conn, err.Error(), "rejected")
			continue
		}

		s.metrics.ChunksReceived.Add(ctx, 1)
		if flush == nil {
			continue
		}
		s.metrics.Flushes.Add(ctx, 1, metric.WithAttributes(attribute.Bool("final", flush.Final)))

		s.processWindow(ctx, conn, sess, pipeline.Request{
			Audio:      flush.Audio,
			MIMEType:   streamMIMEType,
			Category:   category,
			VoiceModel: voiceModel,
		})
	}
}

// processWindow runs one aggregation window through the pipeline and emits
// the transcription and audio_response events. Pipeline failures become
// error events; the stream stays open so the caller can keep talking.
func (s *Server) processWindow(ctx context.Context, conn *websocket.Conn, sess *session.Session, req pipeline.Request) {
	log := observe.Logger(ctx).With("session_id", sess.ID())

	result, err := s.pipe.Process(ctx, sess, req)
	if err != nil {
		if pipeline.IsClientError(err) {
			log.Info("window rejected", "error", err)
		} else {
			log.Error("window failed", "error", err)
		}
		s.sendEvent(ctx, conn, streamEvent{
			Type:          "error",
			Error:         err.Error(),
			CorrelationID: observe.CorrelationID(ctx),
		})
		return
	}

	s.sendEvent(ctx, conn, streamEvent{Type: "transcription", Text: result.Text})
	s.sendEvent(ctx, conn, streamEvent{
		Type:     "audio_response",
		Response: result.Response,
		Audio:    result.AudioDataURI,
	})
}

// rejectChunk counts the rejection and tells the client why. The aggregator
// state is untouched, so a well-formed follow-up chunk proceeds normally.
func (s *Server) rejectChunk(ctx context.Context, conn *websocket.Conn, msg, reason string) {
	s.metrics.ChunksRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	s.sendEvent(ctx, conn, streamEvent{Type: "error", Error: msg})
}

// sendEvent writes one outbound frame. Send failures are logged only; the
// read loop will observe the broken connection on its next iteration.
func (s *Server) sendEvent(ctx context.Context, conn *websocket.Conn, ev streamEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		observe.Logger(ctx).Warn("event marshal failed", "type", ev.Type, "error", err)
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		observe.Logger(ctx).Debug("event write failed", "type", ev.Type, "error", err)
	}
}
