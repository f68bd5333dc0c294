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

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/carverauto/netsync/pkg/jobs"
	"github.com/carverauto/netsync/pkg/models"
	"github.com/carverauto/netsync/pkg/provision"
	"github.com/carverauto/netsync/pkg/store"
	netsync "github.com/carverauto/netsync/pkg/sync"
	"github.com/carverauto/netsync/pkg/topology"
	"github.com/carverauto/netsync/pkg/version"
)

// SyncToRequest is the body of POST /device_syncto.
type SyncToRequest struct {
	Hostname   string `json:"hostname,omitempty"`
	DeviceType string `json:"device_type,omitempty"`
	Group      string `json:"group,omitempty"`
	All        bool   `json:"all,omitempty"`
	DryRun     bool   `json:"dry_run"`
	Force      bool   `json:"force"`
	AutoPush   bool   `json:"auto_push"`
	Resync     bool   `json:"resync"`
	Comment    string `json:"comment,omitempty"`
	TicketRef  string `json:"ticket_ref,omitempty"`
}

// JobIDResponse answers requests that schedule a job.
type JobIDResponse struct {
	Status string `json:"status"`
	JobID  int64  `json:"job_id"`
}

// JobUpdateRequest is the body of PUT /job/{id}.
type JobUpdateRequest struct {
	Action      string `json:"action"`
	AbortReason string `json:"abort_reason,omitempty"`
}

type joblockDeleteRequest struct {
	Name string `json:"name"`
}

type updateLinknetsRequest struct {
	DryRun bool `json:"dry_run"`
}

// InitCheckRequest is the body of POST /device_initcheck/{hostname}.
type InitCheckRequest struct {
	DeviceType       string   `json:"device_type"`
	Neighbors        []string `json:"neighbors,omitempty"`
	MLAGPeerHostname string   `json:"mlag_peer_hostname,omitempty"`
}

// InitCheckResponse reports whether the device may be initialized.
type InitCheckResponse struct {
	Compatible bool     `json:"compatible"`
	Neighbors  []string `json:"neighbors,omitempty"`
	Message    string   `json:"message,omitempty"`
}

type managedRequest struct {
	DeviceType string `json:"device_type"`
}

// @Summary Synchronize devices
// @Description Schedules a sync_devices job for one device, a role, a settings group or all unsynchronized devices
// @Tags Devices
// @Accept json
// @Produce json
// @Param request body SyncToRequest true "Selection and options"
// @Success 200 {object} JobIDResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1.0/device_syncto [post]
// @Security ApiKeyAuth
func (s *Server) postDeviceSyncTo(w http.ResponseWriter, r *http.Request) {
	var body SyncToRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	req := netsync.Request{
		Selector: netsync.Selector{
			Hostname:   body.Hostname,
			DeviceType: models.DeviceType(strings.ToUpper(body.DeviceType)),
			Group:      body.Group,
			All:        body.All,
		},
		DryRun:   body.DryRun,
		Force:    body.Force,
		AutoPush: body.AutoPush,
		Resync:   body.Resync,
	}

	if err := req.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.jobs.Enqueue(r.Context(), netsync.SyncTaskName, req, 0, actor(r),
		jobs.WithComment(body.Comment), jobs.WithTicketRef(body.TicketRef))
	if err != nil {
		s.writeError(w, enqueueStatus(err), err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, JobIDResponse{Status: "success", JobID: id})
}

func enqueueStatus(err error) int {
	switch {
	case errors.Is(err, jobs.ErrQueueFull), errors.Is(err, jobs.ErrCoordinatorStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func jobID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

// @Summary Get job
// @Tags Jobs
// @Produce json
// @Param id path int true "Job ID"
// @Success 200 {object} models.Job
// @Failure 404 {object} ErrorResponse
// @Router /api/v1.0/job/{id} [get]
// @Security ApiKeyAuth
func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := s.jobs.GetJob(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("job %d not found", id))
		return
	}

	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, job)
}

// @Summary Abort job
// @Description Only action ABORT is supported
// @Tags Jobs
// @Accept json
// @Produce json
// @Param id path int true "Job ID"
// @Param request body JobUpdateRequest true "Action"
// @Success 200 {object} models.Job
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1.0/job/{id} [put]
// @Security ApiKeyAuth
func (s *Server) putJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	var body JobUpdateRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if !strings.EqualFold(body.Action, "ABORT") {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", body.Action))
		return
	}

	job, err := s.jobs.Abort(r.Context(), id, body.AbortReason, actor(r))

	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, job)
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("job %d not found", id))
	case errors.Is(err, jobs.ErrJobNotAbortable):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// @Summary List job locks
// @Tags Jobs
// @Produce json
// @Success 200 {array} models.Joblock
// @Router /api/v1.0/joblocks [get]
// @Security ApiKeyAuth
func (s *Server) getJoblocks(w http.ResponseWriter, r *http.Request) {
	locks, err := s.jobs.ListLocks(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if locks == nil {
		locks = []*models.Joblock{}
	}

	s.writeJSON(w, http.StatusOK, locks)
}

// @Summary Force release a job lock
// @Tags Jobs
// @Accept json
// @Param request body joblockDeleteRequest true "Lock name"
// @Success 200 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1.0/joblocks [delete]
// @Security ApiKeyAuth
func (s *Server) deleteJoblock(w http.ResponseWriter, r *http.Request) {
	var body joblockDeleteRequest
	if err := decodeBody(r, &body); err != nil || body.Name == "" {
		s.writeError(w, http.StatusBadRequest, "a lock name is required")
		return
	}

	err := s.jobs.ForceReleaseLock(r.Context(), body.Name)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("lock %q not found", body.Name))
		return
	}

	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, ErrorResponse{Status: "success", Message: "lock released"})
}

// @Summary Update linknets from LLDP
// @Tags Devices
// @Accept json
// @Produce json
// @Param hostname path string true "Device hostname"
// @Success 200 {array} models.LinkRecord
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1.0/device/{hostname}/update_linknets [post]
// @Security ApiKeyAuth
func (s *Server) postUpdateLinknets(w http.ResponseWriter, r *http.Request) {
	if s.linknets == nil {
		s.writeError(w, http.StatusNotImplemented, "linknet updates are not configured")
		return
	}

	var body updateLinknetsRequest
	if err := decodeBody(r, &body); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	records, err := s.linknets.UpdateLinknets(r.Context(), mux.Vars(r)["hostname"], body.DryRun)
	if err != nil {
		s.writeError(w, topologyStatus(err), err.Error())
		return
	}

	if records == nil {
		records = []models.LinkRecord{}
	}

	s.writeJSON(w, http.StatusOK, records)
}

func topologyStatus(err error) int {
	var (
		ifErr   *topology.InterfaceError
		nbrErr  *topology.NeighborError
		initErr *topology.InitVerificationError
	)

	switch {
	case errors.Is(err, netsync.ErrDeviceNotFound), errors.Is(err, provision.ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.As(err, &ifErr), errors.As(err, &nbrErr), errors.As(err, &initErr),
		errors.Is(err, netsync.ErrDeviceNotManaged), errors.Is(err, provision.ErrInvalidState),
		errors.Is(err, provision.ErrInvalidRole), errors.Is(err, models.ErrInvalidTransition):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// @Summary Check that a device can be initialized
// @Tags Devices
// @Accept json
// @Produce json
// @Param hostname path string true "Device hostname"
// @Param request body InitCheckRequest true "Target role"
// @Success 200 {object} InitCheckResponse
// @Router /api/v1.0/device_initcheck/{hostname} [post]
// @Security ApiKeyAuth
func (s *Server) postInitCheck(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		s.writeError(w, http.StatusNotImplemented, "provisioning checks are not configured")
		return
	}

	var body InitCheckRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	role, err := models.ParseDeviceType(body.DeviceType)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	nbrs, err := s.checker.PreInitCheck(r.Context(), mux.Vars(r)["hostname"], role, provision.CheckOptions{
		ExpectedNeighbors: body.Neighbors,
		MLAGPeer:          body.MLAGPeerHostname,
	})

	var (
		ifErr   *topology.InterfaceError
		nbrErr  *topology.NeighborError
		initErr *topology.InitVerificationError
	)

	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, InitCheckResponse{Compatible: true, Neighbors: nbrs})
	case errors.As(err, &ifErr), errors.As(err, &nbrErr), errors.As(err, &initErr):
		s.writeJSON(w, http.StatusOK, InitCheckResponse{Compatible: false, Message: err.Error()})
	default:
		s.writeError(w, topologyStatus(err), err.Error())
	}
}

// @Summary Mark a device as managed
// @Tags Devices
// @Accept json
// @Produce json
// @Param hostname path string true "Device hostname"
// @Success 200 {object} models.Device
// @Failure 400 {object} ErrorResponse
// @Router /api/v1.0/device/{hostname}/managed [post]
// @Security ApiKeyAuth
func (s *Server) postManaged(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		s.writeError(w, http.StatusNotImplemented, "provisioning checks are not configured")
		return
	}

	var body managedRequest
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	role, err := models.ParseDeviceType(body.DeviceType)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	dev, err := s.checker.MarkManaged(r.Context(), mux.Vars(r)["hostname"], role)
	if err != nil {
		s.writeError(w, topologyStatus(err), err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, dev)
}

func (s *Server) getVersion(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"version":  version.GetVersion(),
		"build_id": version.GetBuildID(),
	})
}
