package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"nutrition-resolver/internal/app"
	"nutrition-resolver/internal/nutrition"
)

// maxBodyBytes bounds the request body of a nutrition request.
const maxBodyBytes = 64 << 10

// TextResolver resolves free text into nutrition facts.
type TextResolver interface {
	ResolveText(ctx context.Context, text string) (*app.Response, error)
}

// Server exposes the resolution pipeline over HTTP.
type Server struct {
	resolver  TextResolver
	jwtSecret []byte
}

// NewServer creates a Server. A nil resolver answers every nutrition request
// with a configuration error; an empty jwtSecret disables authentication.
func NewServer(resolver TextResolver, jwtSecret string) *Server {
	s := &Server{resolver: resolver}
	if jwtSecret != "" {
		s.jwtSecret = []byte(jwtSecret)
	}
	return s
}

type nutritionRequest struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Handler returns the routes of the API.
func (s *Server) Handler() http.Handler {
	var nutritionHandler http.Handler = http.HandlerFunc(s.handleNutrition)
	if s.jwtSecret != nil {
		nutritionHandler = requireToken(s.jwtSecret, nutritionHandler)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/nutrition", allowMethod(http.MethodPost, nutritionHandler))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return logRequests(mux)
}

func (s *Server) handleNutrition(w http.ResponseWriter, r *http.Request) {
	var req nutritionRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "body must be a JSON object with a text field")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}

	if s.resolver == nil {
		writeError(w, http.StatusInternalServerError, "configuration_error", "service is missing upstream credentials")
		return
	}

	resp, err := s.resolver.ResolveText(r.Context(), req.Text)
	switch {
	case err == nil:
		w.Header().Set("X-Request-ID", resp.RequestID)
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, app.ErrEmptyText):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, nutrition.ErrConfiguration):
		log.Printf("Configuration error: %v", err)
		writeError(w, http.StatusInternalServerError, "configuration_error", "service is missing upstream credentials")
	default:
		log.Printf("Resolution failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}

func allowMethod(method string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("%s %s %d %v", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}
