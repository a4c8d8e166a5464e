package server

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sealbox/sealbox/internal/botcheck"
	"github.com/sealbox/sealbox/internal/secret"
	"github.com/sealbox/sealbox/pkg/metrics"
)

// actionRequest is the JSON body of the action endpoint. The uuid and
// turnstile_token aliases keep older clients working.
type actionRequest struct {
	Action         string `json:"action"`
	Secret         string `json:"secret"`
	Password       string `json:"password"`
	ExpiresAt      any    `json:"expires_at"`
	Handle         string `json:"handle"`
	UUID           string `json:"uuid"`
	CaptchaToken   string `json:"captcha_token"`
	TurnstileToken string `json:"turnstile_token"`
}

func (r *actionRequest) handle() string {
	if r.Handle != "" {
		return r.Handle
	}
	return r.UUID
}

func (r *actionRequest) token() string {
	if r.CaptchaToken != "" {
		return r.CaptchaToken
	}
	return r.TurnstileToken
}

// SecretHandler dispatches action requests to the lifecycle controller.
type SecretHandler struct {
	controller *secret.Controller
	verifier   botcheck.Verifier
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	version    string
}

// NewSecretHandler creates a handler for the secrets API.
func NewSecretHandler(
	controller *secret.Controller,
	verifier botcheck.Verifier,
	m *metrics.Metrics,
	version string,
	logger zerolog.Logger,
) *SecretHandler {
	if verifier == nil {
		verifier = botcheck.NopVerifier{}
	}
	return &SecretHandler{
		controller: controller,
		verifier:   verifier,
		metrics:    m,
		logger:     logger.With().Str("component", "secret_handler").Logger(),
		version:    version,
	}
}

// RegisterRoutes registers the API routes on the given mux.
func (h *SecretHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/secrets", h.HandleAction)
	mux.HandleFunc("OPTIONS /api/v1/secrets", h.HandlePreflight)
	mux.HandleFunc("GET /healthz", h.HandleHealthz)
}

// HandleAction decodes the action envelope and routes it.
func (h *SecretHandler) HandleAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest,
			"missing or invalid request body, expected fields: action, secret (for create), handle (for retrieve/check)")
		return
	}

	// Healthcheck is exempt from bot protection.
	if req.Action == "healthcheck" {
		h.writeHealth(w)
		return
	}

	switch req.Action {
	case "create", "retrieve", "check":
	default:
		writeError(w, http.StatusBadRequest,
			`invalid or missing action, must be "create", "retrieve", "check" or "healthcheck"`)
		return
	}

	if err := h.verifier.Verify(ctx, req.token(), remoteIP(r)); err != nil {
		switch {
		case errors.Is(err, botcheck.ErrTokenMissing):
			writeError(w, http.StatusBadRequest, "missing required field: captcha_token (bot protection enabled)")
		case errors.Is(err, botcheck.ErrTokenInvalid):
			writeError(w, http.StatusForbidden, err.Error())
		default:
			h.logger.Error().Err(err).Msg("bot check failed")
			writeError(w, http.StatusInternalServerError, "bot-protection verification unavailable")
		}
		return
	}

	start := time.Now()
	switch req.Action {
	case "create":
		h.handleCreate(w, r, &req)
	case "retrieve":
		h.handleRetrieve(w, r, &req)
	case "check":
		h.handleCheck(w, r, &req)
	}
	if h.metrics != nil {
		h.metrics.OperationDuration.WithLabelValues(req.Action).Observe(time.Since(start).Seconds())
	}
}

// HandlePreflight answers CORS preflight requests.
func (h *SecretHandler) HandlePreflight(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"message": "CORS preflight OK"})
}

// HandleHealthz reports service health.
func (h *SecretHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeHealth(w)
}

func (h *SecretHandler) writeHealth(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"version": h.version,
	})
}

func (h *SecretHandler) handleCreate(w http.ResponseWriter, r *http.Request, req *actionRequest) {
	expiresAt, err := expiresAtString(req.ExpiresAt)
	if err != nil {
		h.countOutcome("create", "validation_error")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.controller.Create(r.Context(), secret.CreateRequest{
		Secret:    req.Secret,
		Password:  req.Password,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		h.writeOperationError(w, "create", err)
		return
	}

	h.countOutcome("create", "success")
	body := map[string]any{
		"handle":  result.Handle,
		"message": "Secret created successfully",
	}
	if result.ExpiresAt > 0 {
		body["expires_at"] = result.ExpiresAt
	}
	writeJSON(w, http.StatusCreated, body)
}

func (h *SecretHandler) handleRetrieve(w http.ResponseWriter, r *http.Request, req *actionRequest) {
	plaintext, err := h.controller.Retrieve(r.Context(), req.handle(), req.Password)
	if err != nil {
		h.writeOperationError(w, "retrieve", err)
		return
	}

	h.countOutcome("retrieve", "success")
	writeJSON(w, http.StatusOK, map[string]any{
		"secret":  plaintext,
		"message": "Secret retrieved and deleted successfully",
	})
}

func (h *SecretHandler) handleCheck(w http.ResponseWriter, r *http.Request, req *actionRequest) {
	result, err := h.controller.Check(r.Context(), req.handle())
	if err != nil {
		h.writeOperationError(w, "check", err)
		return
	}

	h.countOutcome("check", "success")
	body := map[string]any{
		"requires_password": result.RequiresPassword,
		"encrypted":         result.RequiresPassword,
	}
	if result.ExpiresAt > 0 {
		body["expires_at"] = result.ExpiresAt
	}
	writeJSON(w, http.StatusOK, body)
}

// writeOperationError maps controller errors to response codes. Caller
// mistakes are logged at debug; operational faults at error.
func (h *SecretHandler) writeOperationError(w http.ResponseWriter, action string, err error) {
	if secret.IsUserError(err) {
		h.logger.Debug().Err(err).Str("action", action).Msg("operation rejected")
	} else {
		h.logger.Error().Err(err).Str("action", action).Msg("operation failed")
	}

	var expired *secret.ExpiredError
	switch {
	case errors.As(err, &expired):
		h.countOutcome(action, "expired")
		if h.metrics != nil {
			h.metrics.SecretsExpired.Inc()
		}
		writeJSON(w, http.StatusGone, map[string]any{
			"error":      "Secret has expired and has been deleted",
			"expired_at": expired.ExpiredAt.Unix(),
		})
	case errors.Is(err, secret.ErrValidation):
		h.countOutcome(action, "validation_error")
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, secret.ErrNotFound):
		h.countOutcome(action, "not_found")
		writeError(w, http.StatusNotFound, "Secret not found or already accessed")
	case errors.Is(err, secret.ErrPasswordRequired):
		h.countOutcome(action, "password_required")
		writeError(w, http.StatusBadRequest, "Password required for encrypted secret")
	case errors.Is(err, secret.ErrDecryptionFailed):
		h.countOutcome(action, "decryption_failed")
		writeError(w, http.StatusBadRequest, "Decryption failed: invalid password or corrupted data")
	case errors.Is(err, secret.ErrSystemKeyUnavailable):
		h.countOutcome(action, "system_error")
		writeError(w, http.StatusInternalServerError, "System encryption key is not configured")
	default:
		h.countOutcome(action, "store_error")
		writeError(w, http.StatusInternalServerError, "Internal error, please retry")
	}
}

func (h *SecretHandler) countOutcome(action, outcome string) {
	if h.metrics != nil {
		h.metrics.OperationsTotal.WithLabelValues(action, outcome).Inc()
	}
}

// expiresAtString normalizes the expires_at field, which older clients send
// as either a JSON number or a string.
func expiresAtString(v any) (string, error) {
	switch value := v.(type) {
	case nil:
		return "", nil
	case string:
		return value, nil
	case float64:
		if value != math.Trunc(value) {
			return "", errors.New("invalid expires_at format, expected UNIX timestamp (integer)")
		}
		return strconv.FormatInt(int64(value), 10), nil
	default:
		return "", errors.New("invalid expires_at format, expected UNIX timestamp (integer)")
	}
}

// remoteIP extracts the originating client IP for bot verification.
func remoteIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.IndexByte(xff, ','); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	host := r.RemoteAddr
	if idx := strings.LastIndexByte(host, ':'); idx > 0 {
		host = host[:idx]
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
