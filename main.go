package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/chainguard-dev/clog"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/imjasonh/stint/duration"
	"github.com/sethvargo/go-envconfig"
)

var cfg = envconfig.MustProcess(context.Background(), &(struct {
	Port         int   `env:"PORT,default=8080"`
	CacheSize    int   `env:"CACHE_SIZE,default=10000"`
	MaxBodyBytes int64 `env:"MAX_BODY_BYTES,default=1048576"`
}{}))

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))
	ctx := context.Background()
	log := clog.FromContext(ctx)

	log.InfoContext(ctx, "starting stint length service",
		"port", cfg.Port,
		"cache_size", cfg.CacheSize,
	)

	cache, err := lru.New[string, float64](cfg.CacheSize)
	if err != nil {
		log.FatalContext(ctx, "failed to create cache", "error", err)
	}

	srv := &Server{
		cache:        cache,
		maxBodyBytes: cfg.MaxBodyBytes,
	}

	http.HandleFunc("/", srv.ServeHTTP)

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.InfoContext(ctx, "listening", "addr", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.FatalContext(ctx, "server failed", "error", err)
	}
}

type Server struct {
	cache        *lru.Cache[string, float64]
	maxBodyBytes int64
}

// LengthResponse is returned by GET /length.
type LengthResponse struct {
	Duration string  `json:"duration"`
	Seconds  float64 `json:"seconds"`
}

// TotalResponse is returned by POST /total.
type TotalResponse struct {
	Count   int     `json:"count"`
	Seconds float64 `json:"seconds"`
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := clog.FromContext(ctx)
	log.InfoContext(ctx, "request", "method", r.Method, "path", r.URL.Path)

	switch r.URL.Path {
	case "/length":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleLength(ctx, w, r)
	case "/total":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleTotal(ctx, w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleLength(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	log := clog.FromContext(ctx)

	text := strings.TrimSpace(r.URL.Query().Get("d"))
	if text == "" {
		http.Error(w, "missing d parameter", http.StatusBadRequest)
		return
	}

	seconds, err := s.length(ctx, text)
	if err != nil {
		log.WarnContext(ctx, "invalid duration", "duration", text, "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(ctx, w, LengthResponse{Duration: text, Seconds: seconds})
}

func (s *Server) handleTotal(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	log := clog.FromContext(ctx)

	var sum duration.Sum
	scanner := bufio.NewScanner(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	// A single line may use the whole body allowance.
	scanner.Buffer(make([]byte, 0, min(bufio.MaxScanTokenSize, int(s.maxBodyBytes)+1)), int(s.maxBodyBytes)+1)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		seconds, err := s.length(ctx, text)
		if err != nil {
			log.WarnContext(ctx, "invalid duration", "line", line, "duration", text, "error", err)
			http.Error(w, fmt.Sprintf("line %d: %v", line, err), http.StatusBadRequest)
			return
		}
		if err := sum.Add(seconds); err != nil {
			log.WarnContext(ctx, "total overflowed", "line", line, "error", err)
			http.Error(w, fmt.Sprintf("line %d: total %v", line, err), http.StatusBadRequest)
			return
		}
	}
	if err := scanner.Err(); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		case errors.Is(err, bufio.ErrTooLong):
			http.Error(w, fmt.Sprintf("line %d: too long", line+1), http.StatusBadRequest)
		default:
			log.ErrorContext(ctx, "failed to read request body", "error", err)
			http.Error(w, "failed to read request body", http.StatusBadRequest)
		}
		return
	}

	log.DebugContext(ctx, "total computed", "count", sum.Count, "seconds", sum.Seconds)
	writeJSON(ctx, w, TotalResponse{Count: sum.Count, Seconds: sum.Seconds})
}

// length parses text, consulting the cache first
func (s *Server) length(ctx context.Context, text string) (float64, error) {
	log := clog.FromContext(ctx)

	if cached, ok := s.cache.Get(text); ok {
		log.DebugContext(ctx, "cache hit", "duration", text)
		return cached, nil
	}

	log.DebugContext(ctx, "cache miss", "duration", text)

	seconds, err := duration.ToLength(text)
	if err != nil {
		return 0, err
	}

	s.cache.Add(text, seconds)

	return seconds, nil
}

// writeJSON encodes v fully before writing the status line.
func writeJSON(ctx context.Context, w http.ResponseWriter, v any) {
	log := clog.FromContext(ctx)

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		log.ErrorContext(ctx, "failed to encode response", "error", err)
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		log.ErrorContext(ctx, "failed to write response", "error", err)
	}
}
