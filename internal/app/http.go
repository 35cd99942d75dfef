package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"loandocs/api/internal/document"
	"loandocs/api/internal/store"
)

const maxUploadBytes = 50 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/catalog" {
		writeJSON(w, http.StatusOK, map[string]any{"catalog": document.Catalog()})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/documents" {
		limit := 0
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		page, err := s.service.ListAll(r.Context(), limit, strings.TrimSpace(r.URL.Query().Get("cursor")))
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/orphans" {
		orphans, err := s.service.Orphans(r.Context())
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": orphans, "count": len(orphans)})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/storage/migrate" {
		result, err := s.service.MigrateFromLegacyStore(r.Context())
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/storage/clear" {
		var body struct {
			Confirm bool `json:"confirm"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if !body.Confirm {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "confirm must be true to clear all documents", nil)
			return
		}
		result, err := s.service.ClearAllDocuments(r.Context())
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	parts := splitPath(r.URL.Path)

	if len(parts) >= 4 && parts[0] == "api" && parts[1] == "loans" {
		s.handleLoan(w, r, parts[2], parts[3:])
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "documents" {
		s.handleDocument(w, r, parts[2], parts[3:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
		"remote":   map[string]any{"status": "ok", "mode": s.service.Mode()},
		"index":    map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	// The remote store and index are optional; the service keeps working without them.
	if err := s.service.RemotePing(ctx); err != nil {
		checks["remote"] = map[string]any{
			"status": "degraded",
			"mode":   s.service.Mode(),
			"error":  err.Error(),
		}
	}
	if !s.service.IndexHealthy() {
		checks["index"] = map[string]any{"status": "degraded"}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleLoan(w http.ResponseWriter, r *http.Request, loanID string, rest []string) {
	ctx := r.Context()

	if len(rest) == 1 && rest[0] == "documents" && r.Method == http.MethodGet {
		docs, err := s.service.ListDocuments(ctx, loanID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"loanId": loanID, "documents": docs})
		return
	}

	if len(rest) == 1 && rest[0] == "documents" && r.Method == http.MethodPost {
		in, err := readUpload(w, r)
		if err != nil {
			s.fail(w, err)
			return
		}
		in.LoanID = loanID
		result, err := s.service.Upload(ctx, in)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, result)
		return
	}

	if len(rest) == 2 && rest[0] == "documents" && rest[1] == "generate" && r.Method == http.MethodPost {
		var body struct {
			DocType string `json:"docType"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if strings.TrimSpace(body.DocType) == "" {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "docType is required", nil)
			return
		}
		result, err := s.service.Generate(ctx, loanID, strings.TrimSpace(body.DocType))
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, result)
		return
	}

	if len(rest) == 1 && rest[0] == "profile" && r.Method == http.MethodGet {
		loan, err := s.service.LoanProfile(ctx, loanID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"loan": loan})
		return
	}

	if len(rest) == 1 && rest[0] == "profile" && r.Method == http.MethodPut {
		var body store.Loan
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		body.LoanID = loanID
		loan, err := s.service.SaveLoanProfile(ctx, body)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"loan": loan})
		return
	}

	if len(rest) == 1 && rest[0] == "slots" && r.Method == http.MethodGet {
		slots, err := s.service.Slots(ctx, loanID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"loanId": loanID, "slots": slots})
		return
	}

	if len(rest) == 1 && rest[0] == "dedupe" && r.Method == http.MethodPost {
		result, err := s.service.Deduplicate(ctx, loanID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	if len(rest) == 1 && rest[0] == "reconcile" && r.Method == http.MethodPost {
		result, err := s.service.Reconcile(ctx, loanID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	if len(rest) == 1 && rest[0] == "sync" && r.Method == http.MethodGet {
		status, err := s.service.ComputeDrift(ctx, loanID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	if len(rest) == 1 && rest[0] == "sync" && r.Method == http.MethodPost {
		result, err := s.service.PushLocalToRemote(ctx, loanID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	if len(rest) == 1 && rest[0] == "diagnostics" && r.Method == http.MethodGet {
		report, err := s.service.Diagnostics(ctx, loanID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	}

	if len(rest) == 2 && rest[0] == "orphans" && rest[1] == "repair" && r.Method == http.MethodPost {
		repaired, err := s.service.RepairOrphaned(ctx, loanID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"loanId": loanID, "repaired": repaired, "count": len(repaired)})
		return
	}

	if len(rest) == 1 && rest[0] == "index" && r.Method == http.MethodPost {
		result, err := s.service.IndexDocuments(ctx, loanID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	if len(rest) == 1 && rest[0] == "query" && r.Method == http.MethodPost {
		var body struct {
			Query string `json:"query"`
			TopK  int    `json:"topK"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.QueryDocuments(ctx, loanID, body.Query, body.TopK)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
}

func (s *HTTPServer) handleDocument(w http.ResponseWriter, r *http.Request, documentID string, rest []string) {
	ctx := r.Context()

	if len(rest) == 0 && r.Method == http.MethodGet {
		view, err := s.service.View(ctx, documentID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
		return
	}

	if len(rest) == 1 && rest[0] == "content" && r.Method == http.MethodGet {
		view, err := s.service.View(ctx, documentID)
		if err != nil {
			s.fail(w, err)
			return
		}
		mimeType, data, err := document.DecodeDataURL(view.Record.Content)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "INVALID_CONTENT", err.Error(), nil)
			return
		}
		w.Header().Set("Content-Type", mimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", view.Record.Filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}

	if len(rest) == 0 && r.Method == http.MethodPatch {
		var body DocumentUpdate
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		updated, err := s.service.UpdateDocument(ctx, documentID, body)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"document": updated})
		return
	}

	if len(rest) == 0 && r.Method == http.MethodDelete {
		result, err := s.service.Delete(ctx, documentID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
}

func (s *HTTPServer) fail(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status == http.StatusInternalServerError {
		log.Printf("http: %v", err)
	}
	writeError(w, status, code, message, details)
}

// readUpload reads a multipart upload with fields file, docType and category.
func readUpload(w http.ResponseWriter, r *http.Request) (UploadInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return UploadInput{}, domainError(http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File exceeds the upload limit", map[string]any{"maxBytes": maxUploadBytes})
		}
		return UploadInput{}, domainError(http.StatusBadRequest, "INVALID_BODY", "expected multipart form data", nil)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return UploadInput{}, validationError("file is required")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return UploadInput{}, fmt.Errorf("read upload: %w", err)
	}
	return UploadInput{
		DocType:     r.FormValue("docType"),
		Category:    r.FormValue("category"),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
