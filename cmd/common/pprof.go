package common

import (
	"context"
	"net/http"
	"net/http/pprof"
	"time"
)

// RunPprof serves the Go profiler on `endpoint` until `ctx` is canceled.
func RunPprof(ctx context.Context, endpoint string) error {
	// Use a dedicated mux; pprof's init registers on the global one.
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	server := &http.Server{
		Addr:    endpoint,
		Handler: mux,
		// Profiles block for their sampling duration (30s by default).
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 65 * time.Second,
	}
	return RunServer(ctx, server, rootLogger.WithModule("pprof"))
}
