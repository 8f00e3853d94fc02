// Package server exposes a cache over HTTP.
//
// The cache itself has no internal locking, so the handler owns it and
// serializes every request behind one mutex.
//
// Routes
//
//	PUT    /v1/keys/{key}[?ttl=30s|none]  store the JSON request body
//	GET    /v1/keys/{key}                 fetch (promotes the key)
//	HEAD   /v1/keys/{key}                 presence check (no promotion)
//	DELETE /v1/keys/{key}                 remove
//	GET    /v1/keys                       live keys, most recent first
//	DELETE /v1/keys                       clear
//	GET    /v1/size                       live entry count
//	GET    /v1/snapshot                   export the snapshot document
//	PUT    /v1/snapshot                   import a snapshot document
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/IvanBrykalov/snapcache/cache"
)

// maxBody caps request bodies (values and snapshot imports).
const maxBody = 8 << 20

// Handler serves cache operations.
type Handler struct {
	mu  sync.Mutex
	c   cache.Cache[json.RawMessage]
	log *zap.SugaredLogger
}

// New returns a router serving c. When metrics is non-nil it is mounted
// at /metrics.
func New(c cache.Cache[json.RawMessage], log *zap.Logger, metrics http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{c: c, log: log.Named("http").Sugar()}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/keys", h.keys)
		r.Delete("/keys", h.clear)
		r.Put("/keys/{key}", h.set)
		r.Get("/keys/{key}", h.get)
		r.Head("/keys/{key}", h.has)
		r.Delete("/keys/{key}", h.delete)
		r.Get("/size", h.size)
		r.Get("/snapshot", h.export)
		r.Put("/snapshot", h.importSnapshot)
	})
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}
	return r
}

// NewHTTPServer wraps handler in an *http.Server with conservative timeouts.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// locked runs fn with exclusive access to the cache.
func (h *Handler) locked(fn func(c cache.Cache[json.RawMessage])) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h.c)
}

func (h *Handler) set(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	if !json.Valid(body) {
		http.Error(w, "body must be a JSON value", http.StatusBadRequest)
		return
	}

	ttlParam, hasTTL := r.URL.Query()["ttl"]
	var ttl time.Duration
	if hasTTL {
		if ttl, err = parseTTL(ttlParam[0]); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	h.locked(func(c cache.Cache[json.RawMessage]) {
		if hasTTL {
			c.SetWithTTL(key, body, ttl)
		} else {
			c.Set(key, body)
		}
	})
	w.WriteHeader(http.StatusNoContent)
}

// parseTTL accepts a Go duration, or "none"/"0" for no expiration.
func parseTTL(s string) (time.Duration, error) {
	if s == "none" || s == "0" {
		return cache.NoExpiration, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("ttl must be positive (use ttl=none for no expiration)")
	}
	return d, nil
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var (
		v  json.RawMessage
		ok bool
	)
	h.locked(func(c cache.Cache[json.RawMessage]) { v, ok = c.Get(key) })
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(v)
}

func (h *Handler) has(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var ok bool
	h.locked(func(c cache.Cache[json.RawMessage]) { ok = c.Has(key) })
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var ok bool
	h.locked(func(c cache.Cache[json.RawMessage]) { ok = c.Delete(key) })
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) keys(w http.ResponseWriter, _ *http.Request) {
	var keys []string
	h.locked(func(c cache.Cache[json.RawMessage]) { keys = c.Keys() })
	if keys == nil {
		keys = []string{}
	}
	h.writeJSON(w, map[string]any{"keys": keys})
}

func (h *Handler) clear(w http.ResponseWriter, _ *http.Request) {
	h.locked(func(c cache.Cache[json.RawMessage]) { c.Clear() })
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) size(w http.ResponseWriter, _ *http.Request) {
	var n int
	h.locked(func(c cache.Cache[json.RawMessage]) { n = c.Len() })
	h.writeJSON(w, map[string]int{"size": n})
}

func (h *Handler) export(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var err error
	h.locked(func(c cache.Cache[json.RawMessage]) { err = c.Export(w) })
	if err != nil {
		h.log.Warnw("snapshot export failed", "err", err)
	}
}

func (h *Handler) importSnapshot(w http.ResponseWriter, r *http.Request) {
	// Read the whole body before locking so a slow client cannot stall
	// other requests.
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		} else {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
		return
	}

	h.locked(func(c cache.Cache[json.RawMessage]) { err = c.Import(bytes.NewReader(data)) })
	switch {
	case errors.Is(err, cache.ErrFormat):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case err != nil:
		h.log.Warnw("snapshot import failed", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Debugw("write response failed", "err", err)
	}
}
