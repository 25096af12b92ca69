package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"houseprice/errs"
	"houseprice/serving"
)

// HealthMessage is the plain-text body of GET /health.
const HealthMessage = "I am healthy!"

// Model is what the handlers need from the predictor.
type Model interface {
	PredictJSON(body []byte) (float64, error)
	Info() (serving.Info, error)
}

type Handler struct {
	model  Model
	logger *zap.Logger
}

func NewHandler(model Model, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{model: model, logger: logger}
}

// RegisterRoutes installs the API on r, including JSON 404 and 405
// responses.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.handleHealth).Methods("GET")
	r.HandleFunc("/predict", h.handlePredict).Methods("POST")
	r.HandleFunc("/info", h.handleInfo).Methods("GET")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusNotFound, errorResponse{Error: "route not found", Kind: "not_found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed", Kind: "method_not_allowed"})
	})
}

type predictResponse struct {
	Prediction float64 `json:"prediction"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// respondJSON encodes data before writing the status, so an unencodable
// value becomes a 500 instead of an empty body.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		buf.Reset()
		status = http.StatusInternalServerError
		json.NewEncoder(&buf).Encode(errorResponse{Error: "internal server error", Kind: "internal"})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

// respondError writes err with the status its kind maps to. Internal
// failures are logged and reported without detail.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	kind := errs.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		fields := []zap.Field{
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		}
		if start, ok := GetStartTime(r.Context()); ok {
			fields = append(fields, zap.Duration("elapsed", time.Since(start)))
		}
		h.logger.Error("request failed", fields...)
		msg = "internal server error"
	}
	respondJSON(w, status, errorResponse{Error: msg, Kind: errs.Name(kind)})
}

func statusFor(kind error) int {
	switch kind {
	case errs.Validation:
		return http.StatusBadRequest
	case errs.NotReady:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, HealthMessage)
}

func (h *Handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		if isBodyTooLarge(err) {
			respondJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large", Kind: "validation"})
			return
		}
		h.respondError(w, r, errs.E(errs.Validation, "read request", err))
		return
	}

	prediction, err := h.model.PredictJSON(body)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, predictResponse{Prediction: prediction})
}

func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.model.Info()
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}
