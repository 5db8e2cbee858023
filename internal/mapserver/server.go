// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package mapserver serves the map API over any [durable.Store].
package mapserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/opentofu/mapsync/internal/durable"
	"github.com/opentofu/mapsync/internal/logging"
	"github.com/opentofu/mapsync/internal/mapdoc"
	"github.com/opentofu/mapsync/internal/peersync"
	"github.com/opentofu/mapsync/internal/remote"
)

// maxRequestSize bounds the body of a save request.
const maxRequestSize = 64 << 20

// Config describes what a [Server] serves.
type Config struct {
	// Store holds the documents, in wire form.
	Store durable.Store

	// Static, if set, is served under /static/. The fallback document is
	// expected at default-map.json within it.
	Static afero.Fs

	// Relay, if set, is served at /peers.
	Relay *peersync.Relay

	Logger hclog.Logger
}

// Server is an [http.Handler] implementing the map API.
type Server struct {
	store  durable.Store
	logger hclog.Logger
	mux    *http.ServeMux
}

// New returns a server for cfg.
func New(cfg Config) *Server {
	s := &Server{
		store:  cfg.Store,
		logger: cfg.Logger,
		mux:    http.NewServeMux(),
	}
	if s.logger == nil {
		s.logger = logging.NewLogger(nil, "mapserver")
	}

	s.mux.HandleFunc("GET /"+remote.LoadPath, s.handleLoad)
	s.mux.HandleFunc("POST /"+remote.SavePath, s.handleSave)
	s.mux.HandleFunc("GET /"+remote.ListPath, s.handleList)
	s.mux.HandleFunc("POST /"+remote.DeletePath, s.handleDelete)
	if cfg.Static != nil {
		s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(afero.NewHttpFs(cfg.Static))))
	}
	if cfg.Relay != nil {
		s.mux.Handle("GET /peers", cfg.Relay)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if err := durable.ValidateKey(name); err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	data, err := s.store.Get(r.Context(), name)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.respond(w, http.StatusOK, remote.Response{Success: true, Data: data})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req remote.SaveRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestSize)).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, fmt.Errorf("invalid save request: %w", err))
		return
	}
	if err := durable.ValidateKey(req.Name); err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	doc, err := mapdoc.Decode(req.MapData)
	if err != nil {
		s.fail(w, http.StatusBadRequest, fmt.Errorf("invalid mapData: %w", err))
		return
	}
	data, err := mapdoc.EncodeWire(doc)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.store.Put(r.Context(), req.Name, data); err != nil {
		s.storeError(w, err)
		return
	}
	s.logger.Debug("saved map", "name", req.Name, "size", len(data))
	s.respond(w, http.StatusOK, remote.Response{Success: true})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	keys, err := s.store.Keys(r.Context())
	if err != nil {
		s.storeError(w, err)
		return
	}
	slices.Sort(keys)
	if keys == nil {
		keys = []string{}
	}
	s.respond(w, http.StatusOK, remote.ListResponse{Maps: keys})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req remote.DeleteRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestSize)).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, fmt.Errorf("invalid delete request: %w", err))
		return
	}
	if err := durable.ValidateKey(req.Name); err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	if _, err := s.store.Get(r.Context(), req.Name); err != nil {
		s.storeError(w, err)
		return
	}
	if err := s.store.Delete(r.Context(), req.Name); err != nil {
		s.storeError(w, err)
		return
	}
	s.logger.Debug("deleted map", "name", req.Name)
	s.respond(w, http.StatusOK, remote.Response{Success: true})
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	switch {
	case durable.IsNotFound(err):
		s.respond(w, http.StatusNotFound, remote.Response{Error: "map not found"})
	case errors.Is(err, durable.ErrCapacityExceeded):
		s.fail(w, http.StatusRequestEntityTooLarge, err)
	case errors.Is(err, durable.ErrInvalidKey):
		s.fail(w, http.StatusBadRequest, err)
	default:
		s.logger.Error("storage failure", "error", err)
		s.fail(w, http.StatusInternalServerError, errors.New("storage failure"))
	}
}

func (s *Server) fail(w http.ResponseWriter, status int, err error) {
	s.respond(w, status, remote.Response{Error: err.Error()})
}

func (s *Server) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

// ListenAndServe serves the API on addr until ctx is cancelled, then
// shuts down gracefully. If ready is not nil it receives the address
// actually listened on.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           otelhttp.NewHandler(s, "mapsync"),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	if ready != nil {
		ready(ln.Addr())
	}
	s.logger.Info("serving map API", "address", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
