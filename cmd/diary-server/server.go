package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/theimaginaryfoundation/emotion-diary/diary"
	"github.com/theimaginaryfoundation/emotion-diary/diary/store"
)

type Server struct {
	router *chi.Mux
	writer diary.Writer
	db     *store.DB
	cfg    Config
	logger *slog.Logger
}

// NewServer wires the routes. db may be nil, in which case diaries are not stored and the
// /api/v1/diaries routes are not mounted.
func NewServer(cfg Config, w diary.Writer, db *store.DB, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		writer: w,
		db:     db,
		cfg:    cfg,
		logger: logger,
	}

	router.Get("/health", s.health)
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(bearerAuth(cfg.APIToken))
		r.Post("/extract", s.extract)
		r.Post("/diary", s.generate)
		if db != nil {
			r.Get("/diaries", s.listDiaries)
			r.Get("/diaries/{date}", s.getDiary)
		}
	})
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"storage": s.db != nil,
	})
}

type extractResponse struct {
	Date       string   `json:"date"`
	DateLabel  string   `json:"date_label"`
	Utterances []string `json:"utterances"`
	Count      int      `json:"count"`
}

// extract handles POST /api/v1/extract: export (file or export_text) plus optional date.
func (s *Server) extract(w http.ResponseWriter, r *http.Request) {
	if err := s.parseForm(w, r); err != nil {
		writeFormError(w, err)
		return
	}
	day, err := s.formDate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	export, err := readExport(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if export == "" {
		writeError(w, http.StatusBadRequest, "missing export file")
		return
	}

	utterances := diary.ExtractDayWithOptions(export, day.Label(), s.cfg.ExtractOptions())
	writeJSON(w, http.StatusOK, extractResponse{
		Date:       day.String(),
		DateLabel:  day.Label(),
		Utterances: utterances,
		Count:      len(utterances),
	})
}

type diaryResponse struct {
	ID string `json:"id,omitempty"`
	diary.Result
}

// generate handles POST /api/v1/diary: optional export, date, search_log and summary.
func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	if err := s.parseForm(w, r); err != nil {
		writeFormError(w, err)
		return
	}
	day, err := s.formDate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	export, err := readExport(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := diary.Generate(r.Context(), s.writer, diary.Request{
		Date:            day,
		Export:          export,
		SearchLog:       r.FormValue("search_log"),
		Summary:         r.FormValue("summary"),
		Extract:         s.cfg.ExtractOptions(),
		SkipAutoSummary: s.cfg.NoAutoSummary,
	}, s.logger)
	if err != nil {
		s.writeGenerateError(w, err, res)
		return
	}

	out := diaryResponse{Result: res}
	if s.db != nil {
		entry, err := s.db.Save(r.Context(), store.EntryFromResult(res))
		if err != nil {
			s.logger.Error("failed to store diary", "date", res.Date, "error", err)
		} else {
			out.ID = entry.ID.String()
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) writeGenerateError(w http.ResponseWriter, err error, res diary.Result) {
	var mre *diary.MalformedResponseError
	switch {
	case errors.Is(err, diary.ErrMissingInput):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      err.Error(),
			"date_label": res.DateLabel,
			"utterances": len(res.Utterances),
		})
	case errors.As(err, &mre):
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error": err.Error(),
			"step":  mre.Step,
			"raw":   mre.Raw,
		})
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		s.logger.Error("diary generation failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) listDiaries(w http.ResponseWriter, r *http.Request) {
	limit := 30
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 365 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 365")
			return
		}
		limit = n
	}
	entries, err := s.db.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list diaries", "error", err)
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"diaries": entries, "count": len(entries)})
}

func (s *Server) getDiary(w http.ResponseWriter, r *http.Request) {
	day, err := diary.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	entry, err := s.db.Latest(r.Context(), day.String())
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no diary for "+day.String())
		return
	}
	if err != nil {
		s.logger.Error("failed to load diary", "date", day.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// parseForm accepts multipart and urlencoded bodies up to the upload limit.
func (s *Server) parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return err
	}
	return nil
}

func (s *Server) formDate(r *http.Request) (diary.Date, error) {
	if v := strings.TrimSpace(r.FormValue("date")); v != "" {
		return diary.ParseDate(v)
	}
	loc, err := diary.ResolveLocation(s.cfg.Timezone)
	if err != nil {
		return diary.Date{}, err
	}
	return diary.Today(loc), nil
}

// readExport returns the decoded "export" upload, falling back to the export_text field.
func readExport(r *http.Request) (string, error) {
	f, _, err := r.FormFile("export")
	switch {
	case err == nil:
		defer f.Close()
		b, err := io.ReadAll(f)
		if err != nil {
			return "", err
		}
		return diary.DecodeExport(b), nil
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return diary.DecodeExport([]byte(r.FormValue("export_text"))), nil
	default:
		return "", err
	}
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		want := []byte("Bearer " + token)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get("Authorization"))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"elapsed", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func writeFormError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
