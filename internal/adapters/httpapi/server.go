// Package httpapi exposes the recognition pipeline over HTTP: upload,
// single-job lookup, and paginated listing.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"platescan/internal/domain"
	"platescan/internal/services/ingest"
	"platescan/internal/services/query"
)

// Server routes HTTP traffic to the ingest and query services.
type Server struct {
	ingest   *ingest.Service
	query    *query.Service
	maxBytes int64
	log      *slog.Logger
}

func New(ingestSvc *ingest.Service, querySvc *query.Service, maxBytes int64, log *slog.Logger) *Server {
	return &Server{ingest: ingestSvc, query: querySvc, maxBytes: maxBytes, log: log}
}

// Routes returns the chi router for the API surface.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Route("/api/v1/recognition", func(r chi.Router) {
		r.Post("/", s.handleSubmit)
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleGet)
	})
	return r
}

type submitResponse struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type jobResponse struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	PlateNumber  *string   `json:"plate_number"`
	Confidence   *float64  `json:"confidence"`
	ErrorMessage *string   `json:"error_message"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type listResponse struct {
	Items      []jobResponse `json:"items"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalPages int           `json:"total_pages"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toJobResponse(job domain.RecognitionJob) jobResponse {
	return jobResponse{
		ID:           job.ID.String(),
		Status:       string(job.Status),
		PlateNumber:  job.PlateNumber,
		Confidence:   job.Confidence,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSubmit accepts either a multipart form with a "file" part or a raw
// image body, and answers 202 with the job id.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.readUpload(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.ingest.Submit(r.Context(), contentType, data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{
		JobID:     res.JobID.String(),
		Status:    string(res.Status),
		CreatedAt: res.CreatedAt,
	})
}

func (s *Server) readUpload(r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, s.maxBytes+1)

	mediaType := r.Header.Get("Content-Type")
	if strings.HasPrefix(mediaType, "multipart/form-data") {
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", domain.Invalidf("missing multipart field %q", "file")
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, "", domain.Invalidf("read upload: %v", err)
		}
		return data, header.Header.Get("Content-Type"), nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", domain.Invalidf("upload exceeds %d bytes", s.maxBytes)
		}
		return nil, "", domain.Invalidf("read upload: %v", err)
	}
	return data, mediaType, nil
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, domain.Invalidf("invalid job id"))
		return
	}
	job, err := s.query.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pageSize, err := queryInt(r, "page_size", 10)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.query.List(r.Context(), page, pageSize)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items := make([]jobResponse, 0, len(result.Items))
	for _, job := range result.Items {
		items = append(items, toJobResponse(job))
	}
	writeJSON(w, http.StatusOK, listResponse{
		Items:      items,
		Total:      result.Total,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalPages: result.TotalPages,
	})
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.Invalidf("%s must be an integer", name)
	}
	return v, nil
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "job not found"})
	default:
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "temporarily unavailable"})
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
