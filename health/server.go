package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"time"

	"emperror.dev/errors"
)

// ReportFunc produces a fresh report for a request.
type ReportFunc func(ctx context.Context) Report

// StatusServer serves the health report over HTTP.
type StatusServer struct {
	startTime time.Time
	version   string
	report    ReportFunc
	log       *slog.Logger

	srv *http.Server
	ln  net.Listener
}

// NewStatusServer returns a server for addr. Nothing listens until Start.
func NewStatusServer(addr, version string, report ReportFunc, logger *slog.Logger) *StatusServer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ss := &StatusServer{
		startTime: time.Now(),
		version:   version,
		report:    report,
		log:       logger.With(slog.String("component", "status")),
	}
	ss.srv = &http.Server{
		Addr:              addr,
		Handler:           ss.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ss
}

// Handler routes /status and /health.
func (ss *StatusServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", ss.handleStatus)
	mux.HandleFunc("GET /health", ss.handleHealth)
	return mux
}

// Start listens and serves in the background.
func (ss *StatusServer) Start() error {
	ln, err := net.Listen("tcp", ss.srv.Addr)
	if err != nil {
		return errors.WrapIff(err, "listen on %s", ss.srv.Addr)
	}
	ss.ln = ln
	ss.log.Info("starting status server", "addr", ln.Addr().String())
	go func() {
		if err := ss.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ss.log.Error("status server failed", "error", err)
		}
	}()
	return nil
}

// Addr returns the listening address once started.
func (ss *StatusServer) Addr() string {
	if ss.ln == nil {
		return ss.srv.Addr
	}
	return ss.ln.Addr().String()
}

// Shutdown stops accepting requests and waits for active ones.
func (ss *StatusServer) Shutdown(ctx context.Context) error {
	return ss.srv.Shutdown(ctx)
}

type shardJSON struct {
	ID        int    `json:"id"`
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

type statusJSON struct {
	Service   string           `json:"service"`
	Status    string           `json:"status"`
	Version   string           `json:"version"`
	Uptime    string           `json:"uptime"`
	Timestamp string           `json:"timestamp"`
	Shards    []shardJSON      `json:"shards"`
	Counters  map[string]int64 `json:"counters"`
	Host      hostJSON         `json:"host"`
	Cache     string           `json:"cache"`
}

type hostJSON struct {
	Status        string  `json:"status"`
	CPU           float64 `json:"cpu_percent"`
	Memory        float64 `json:"memory_percent"`
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
}

// operational reports whether every shard is ready.
func operational(r Report) bool {
	if len(r.Shards) == 0 {
		return false
	}
	for _, s := range r.Shards {
		if s.Status != "ready" {
			return false
		}
	}
	return true
}

func (ss *StatusServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	report := ss.report(r.Context())

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	status := statusJSON{
		Service:   "dex-discord-gateway",
		Status:    "degraded",
		Version:   ss.version,
		Uptime:    time.Since(ss.startTime).Round(time.Second).String(),
		Timestamp: time.Now().Format(time.RFC3339),
		Shards:    make([]shardJSON, 0, len(report.Shards)),
		Counters:  report.Counters,
		Host: hostJSON{
			Status:        report.Host,
			CPU:           report.CPU,
			Memory:        report.Memory,
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(m.Alloc) / 1024 / 1024,
		},
		Cache: report.Cache,
	}
	if operational(report) {
		status.Status = "operational"
	}
	for _, s := range report.Shards {
		status.Shards = append(status.Shards, shardJSON{ID: s.ID, Status: s.Status, LatencyMS: s.Latency.Milliseconds()})
	}
	ss.write(w, http.StatusOK, status)
}

// handleHealth answers load balancers: 200 when every shard is ready.
func (ss *StatusServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !operational(ss.report(r.Context())) {
		ss.write(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	ss.write(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (ss *StatusServer) write(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		ss.log.Warn("encoding status response", "error", err)
	}
}
