/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package api exposes the netsync job and topology operations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	srHttp "github.com/carverauto/netsync/pkg/http"
	"github.com/carverauto/netsync/pkg/jobs"
	"github.com/carverauto/netsync/pkg/logger"
	"github.com/carverauto/netsync/pkg/models"
	"github.com/carverauto/netsync/pkg/provision"
	"github.com/carverauto/netsync/pkg/swagger"
)

const (
	apiPrefix       = "/api/v1.0"
	actorHeader     = "X-Actor"
	defaultActor    = "api"
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// JobService is the coordinator surface the API drives.
type JobService interface {
	Enqueue(ctx context.Context, name string, args any, delay time.Duration, actor string, opts ...jobs.EnqueueOption) (int64, error)
	GetJob(ctx context.Context, jobID int64) (*models.Job, error)
	Abort(ctx context.Context, jobID int64, reason, actor string) (*models.Job, error)
	ListLocks(ctx context.Context) ([]*models.Joblock, error)
	ForceReleaseLock(ctx context.Context, name string) error
}

// LinknetUpdater refreshes stored links from LLDP.
type LinknetUpdater interface {
	UpdateLinknets(ctx context.Context, hostname string, dryRun bool) ([]models.LinkRecord, error)
}

// InitChecker runs provisioning checks.
type InitChecker interface {
	PreInitCheck(ctx context.Context, hostname string, role models.DeviceType, opts provision.CheckOptions) ([]string, error)
	MarkManaged(ctx context.Context, hostname string, role models.DeviceType) (*models.Device, error)
}

// Server is the netsync HTTP API.
type Server struct {
	router   *mux.Router
	jobs     JobService
	linknets LinknetUpdater
	checker  InitChecker
	progress ProgressReader
	apiKey   string
	log      logger.Logger

	streamInterval time.Duration
}

// NewServer builds the router. Endpoints whose backing service is not configured answer 501.
func NewServer(js JobService, log logger.Logger, options ...func(*Server)) *Server {
	s := &Server{
		router: mux.NewRouter(),
		jobs:   js,
		log:    logger.Wrap(log.WithComponent("api")),

		streamInterval: defaultStreamInterval,
	}

	for _, o := range options {
		o(s)
	}

	s.setupRoutes()

	return s
}

func WithLinknetUpdater(u LinknetUpdater) func(*Server) {
	return func(s *Server) { s.linknets = u }
}

func WithInitChecker(c InitChecker) func(*Server) {
	return func(s *Server) { s.checker = c }
}

// WithAPIKey requires key in the X-API-Key header.
func WithAPIKey(key string) func(*Server) {
	return func(s *Server) { s.apiKey = key }
}

func (s *Server) setupRoutes() {
	s.router.Use(func(next http.Handler) http.Handler {
		return srHttp.CommonMiddleware(next, s.log)
	})

	s.router.HandleFunc(apiPrefix+"/system/version", s.getVersion).Methods(http.MethodGet)
	s.router.Handle("/swagger/doc.json", swagger.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix(apiPrefix).Subrouter()
	api.Use(srHttp.APIKeyMiddleware(s.apiKey, s.log))

	api.HandleFunc("/device_syncto", s.postDeviceSyncTo).Methods(http.MethodPost)
	api.HandleFunc("/job/{id:[0-9]+}", s.getJob).Methods(http.MethodGet)
	api.HandleFunc("/job/{id:[0-9]+}", s.putJob).Methods(http.MethodPut)
	api.HandleFunc("/job/{id:[0-9]+}/stream", s.streamJob).Methods(http.MethodGet)
	api.HandleFunc("/joblocks", s.getJoblocks).Methods(http.MethodGet)
	api.HandleFunc("/joblocks", s.deleteJoblock).Methods(http.MethodDelete)
	api.HandleFunc("/device/{hostname}/update_linknets", s.postUpdateLinknets).Methods(http.MethodPost)
	api.HandleFunc("/device_initcheck/{hostname}", s.postInitCheck).Methods(http.MethodPost)
	api.HandleFunc("/device/{hostname}/managed", s.postManaged).Methods(http.MethodPost)
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		s.log.Info().Str("addr", addr).Msg("API server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	s.log.Info().Msg("API server stopped")

	return nil
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn().Err(err).Msg("unable to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Status: "error", Message: msg})
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	return dec.Decode(dst)
}

func actor(r *http.Request) string {
	if a := r.Header.Get(actorHeader); a != "" {
		return a
	}

	return defaultActor
}
