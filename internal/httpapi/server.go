package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/agentworkforce/fleetdesk/internal/intake"
	"github.com/google/uuid"
)

const correlationHeader = "X-Correlation-Id"

// UpdateHandler consumes one decoded webhook delivery.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u intake.Update) error
}

type ServerConfig struct {
	// WebhookSecret, when set, must match the secret token header.
	WebhookSecret string
	MaxBodyBytes  int64
	Logger        *slog.Logger
}

type Server struct {
	handler UpdateHandler
	cfg     ServerConfig
	logger  *slog.Logger
}

func NewServer(handler UpdateHandler) *Server {
	return NewServerWithConfig(handler, ServerConfig{})
}

func NewServerWithConfig(handler UpdateHandler, cfg ServerConfig) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{handler: handler, cfg: cfg, logger: logger}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/health" && r.Method == http.MethodGet:
		writeText(w, http.StatusOK, "ok")
	case r.URL.Path == "/webhook" && r.Method == http.MethodPost:
		s.handleWebhook(w, r)
	default:
		writeText(w, http.StatusNotFound, "not found")
	}
}

// handleWebhook answers 200 for every authenticated delivery that fits the
// body limit, including malformed ones and ones whose processing failed, so
// the sender does not redeliver.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if authErr := verifyWebhookSecret(s.cfg.WebhookSecret, r.Header.Get(webhookSecretHeader)); authErr != nil {
		writeText(w, authErr.status, authErr.message)
		return
	}
	correlationID := r.Header.Get(correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := s.logger.With("correlation_id", correlationID)

	body, ok := s.readRequestBody(w, r)
	if !ok {
		logger.Warn("webhook body rejected", "limit_bytes", s.cfg.MaxBodyBytes)
		return
	}
	update, ok := decodeUpdate(body)
	if !ok {
		logger.Debug("malformed webhook payload dropped", "bytes", len(body))
		writeText(w, http.StatusOK, "ok")
		return
	}
	if update.UpdateID != nil {
		logger = logger.With("update_id", strconv.FormatInt(*update.UpdateID, 10))
	}

	ctx := intake.ContextWithLogger(context.WithoutCancel(r.Context()), logger)
	started := time.Now()
	if s.handler != nil {
		if err := s.handler.HandleUpdate(ctx, update); err != nil {
			logger.Error("update processing failed", "error", err, "duration", time.Since(started))
		} else {
			logger.Debug("update processed", "duration", time.Since(started))
		}
	}
	writeText(w, http.StatusOK, "ok")
}

func decodeUpdate(body []byte) (intake.Update, bool) {
	if err := validateUpdate(body); err != nil {
		return intake.Update{}, false
	}
	var update intake.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return intake.Update{}, false
	}
	return update, true
}

func (s *Server) readRequestBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeText(w, http.StatusRequestEntityTooLarge, "payload too large")
			return nil, false
		}
		writeText(w, http.StatusBadRequest, "bad request")
		return nil, false
	}
	return body, true
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
