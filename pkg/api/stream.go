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
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carverauto/netsync/pkg/models"
	"github.com/carverauto/netsync/pkg/store"
)

const (
	defaultStreamInterval = 500 * time.Millisecond
	streamWriteTimeout    = 5 * time.Second
)

// ProgressReader returns the devices a running job has finished so far.
type ProgressReader interface {
	GetProgress(ctx context.Context, jobID int64) (*models.JobProgress, error)
}

// JobEvent is one websocket message of the job stream.
type JobEvent struct {
	JobID           int64            `json:"job_id"`
	Status          models.JobStatus `json:"status"`
	FinishedDevices []string         `json:"finished_devices,omitempty"`
	ChangeScore     *float64         `json:"change_score,omitempty"`
	NextJobID       *int64           `json:"next_job_id,omitempty"`
}

func (e *JobEvent) equal(o *JobEvent) bool {
	return o != nil && e.Status == o.Status && slices.Equal(e.FinishedDevices, o.FinishedDevices)
}

func WithProgressReader(p ProgressReader) func(*Server) {
	return func(s *Server) { s.progress = p }
}

// WithStreamInterval sets how often the job stream polls for changes.
func WithStreamInterval(d time.Duration) func(*Server) {
	return func(s *Server) { s.streamInterval = d }
}

// @Summary Stream job progress
// @Description Upgrades to a websocket and sends a JobEvent whenever the job status or its finished devices change. The stream ends once the job is finished, failed or aborted.
// @Tags Jobs
// @Param id path int true "Job ID"
// @Router /api/v1.0/job/{id}/stream [get]
// @Security ApiKeyAuth
func (s *Server) streamJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	if _, err := s.jobs.GetJob(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, fmt.Sprintf("job %d not found", id))
			return
		}

		s.writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Str("remote_addr", r.RemoteAddr).Msg("failed to upgrade to websocket")
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go drainClient(conn, cancel)

	if err := s.pushJobEvents(ctx, conn, id); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn().Err(err).Int64("job_id", id).Msg("job stream ended")
	}
}

// drainClient discards client frames and cancels once the peer goes away.
func drainClient(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) pushJobEvents(ctx context.Context, conn *websocket.Conn, id int64) error {
	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	var last *JobEvent

	for {
		ev, err := s.jobEvent(ctx, id)
		if err != nil {
			return err
		}

		if !ev.equal(last) {
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))

			if err := conn.WriteJSON(ev); err != nil {
				return err
			}

			last = ev
		}

		if ev.Status.IsTerminal() {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(ev.Status))

			return conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(streamWriteTimeout))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Server) jobEvent(ctx context.Context, id int64) (*JobEvent, error) {
	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	ev := &JobEvent{
		JobID:           job.ID,
		Status:          job.Status,
		FinishedDevices: job.FinishedDevices,
		ChangeScore:     job.ChangeScore,
		NextJobID:       job.NextJobID,
	}

	if s.progress != nil && !job.Status.IsTerminal() {
		if p, err := s.progress.GetProgress(ctx, id); err == nil {
			ev.FinishedDevices = p.FinishedDevices
		}
	}

	return ev, nil
}
