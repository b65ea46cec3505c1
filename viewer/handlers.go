package main

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Server holds shared state for HTTP handlers.
type Server struct {
	roots   []string
	dbCache *DBCache
}

func NewServer(roots []string, refresh time.Duration) *Server {
	return &Server{
		roots:   roots,
		dbCache: NewDBCache(roots, refresh),
	}
}

// RegisterRoutes sets up all routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/generations", s.handleGenerations)
	mux.HandleFunc("/api/generations/", s.handleGenerationTicks)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/index", s.handleIndex)
}

func (s *Server) Close() error {
	return s.dbCache.Close()
}

// allowGet handles CORS preflight and rejects anything but GET. It reports
// whether the handler should continue.
func allowGet(w http.ResponseWriter, r *http.Request) bool {
	withCORS(w, r)
	if r.Method == http.MethodOptions {
		return false
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (s *Server) generationsPage(r *http.Request) ([]GenerationSummary, int64, error) {
	// Force DB refresh to pick up generations flushed since the last request.
	if err := s.dbCache.Refresh(); err != nil {
		return nil, 0, fmt.Errorf("refresh db: %w", err)
	}
	index, err := s.dbCache.GetGenerationsIndex(r.Context())
	if err != nil {
		return nil, 0, err
	}

	limit := parseIntQuery(r, "limit", 1000)
	offset := parseIntQuery(r, "offset", 0)
	sortKey := strings.TrimSpace(r.URL.Query().Get("sort"))
	sortDir := strings.TrimSpace(r.URL.Query().Get("dir"))
	return paginateGenerations(index, limit, offset, sortKey, sortDir), int64(len(index)), nil
}

func (s *Server) handleGenerations(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	gens, total, err := s.generationsPage(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, GenerationsResponse{Total: total, Generations: gens})
}

// handleGenerationTicks serves /api/generations/{id}/ticks and
// /api/generations/{id}/ticks/{turn}.
func (s *Server) handleGenerationTicks(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	id, turn, hasTurn, ok := parseTicksPath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	db, err := s.dbCache.Get()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if hasTurn {
		t, err := queryTick(r.Context(), db, id, turn)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				http.NotFound(w, r)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, t)
		return
	}

	ticks, err := queryTicks(r.Context(), db, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(ticks) == 0 {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, ticks)
}

func parseTicksPath(path string) (id string, turn int32, hasTurn bool, ok bool) {
	rest := strings.TrimPrefix(path, "/api/generations/")
	parts := strings.Split(strings.TrimSuffix(rest, "/"), "/")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] != "ticks" {
		return "", 0, false, false
	}
	id, err := url.PathUnescape(parts[0])
	if err != nil {
		return "", 0, false, false
	}
	if len(parts) == 2 {
		return id, 0, false, true
	}
	n, err := strconv.ParseInt(parts[2], 10, 32)
	if err != nil || n < 0 {
		return "", 0, false, false
	}
	return id, int32(n), true, true
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	db, err := s.dbCache.Get()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	now := time.Now().UnixNano()
	toNs := parseInt64Query(r, "to_ns", now)
	fromNs := parseInt64Query(r, "from_ns", toNs-int64(24*time.Hour))
	bucketNs := parseInt64Query(r, "bucket_ns", int64(time.Hour))
	if bucketNs <= 0 || fromNs > toNs {
		http.Error(w, "bad range", http.StatusBadRequest)
		return
	}

	points, err := queryStats(r.Context(), db, fromNs, toNs, bucketNs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, StatsResponse{FromNs: fromNs, ToNs: toNs, BucketNs: bucketNs, Points: points})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	gens, total, err := s.generationsPage(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderIndex(w, gens, total); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
