package metrics

import (
	"context"
	"net"
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Serve starts an HTTP server on addr exposing rec at /metrics through a
// dedicated registry (not the global DefaultRegisterer, so a sender and
// a receiver in the same process never collide). It returns a stop
// function the caller should defer.
func Serve(addr string, rec *Recorder) (stop func(), err error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(rec); err != nil {
		return nil, errors.Wrap(err, "registering metrics collector")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", addr)
	}

	srv := &http.Server{Handler: mux}
	go func() {
		_ = srv.Serve(ln)
	}()

	return func() {
		_ = srv.Shutdown(context.Background())
	}, nil
}
