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

package jobs

import (
	"context"

	"github.com/carverauto/netsync/pkg/logger"
	"github.com/carverauto/netsync/pkg/models"
	"github.com/carverauto/netsync/pkg/store"
)

// Execution is handed to every running task. It replaces ambient per-job state:
// identity, logging, abort polling and progress reporting all flow through it.
type Execution struct {
	JobID  int64
	Actor  string
	Logger logger.Logger

	ctx      context.Context
	jobs     store.JobStore
	progress chan<- string
}

// NewExecution builds a detached Execution for code running outside the coordinator,
// such as tests and one-off CLI invocations. Progress reports are dropped.
func NewExecution(jobID int64, actor string, log logger.Logger) *Execution {
	return &Execution{JobID: jobID, Actor: actor, Logger: log}
}

// NewStoreExecution is like NewExecution but also treats ctx cancellation and an
// ABORTING or ABORTED status in js as an abort.
func NewStoreExecution(ctx context.Context, jobID int64, actor string, js store.JobStore, log logger.Logger) *Execution {
	return &Execution{JobID: jobID, Actor: actor, Logger: log, ctx: ctx, jobs: js}
}

// Aborted reports whether the job has been asked to stop. It checks the job context first
// and then the stored status, so an abort issued by another process is also seen.
func (e *Execution) Aborted(ctx context.Context) bool {
	if e.ctx != nil && e.ctx.Err() != nil {
		return true
	}

	if e.jobs == nil {
		return false
	}

	job, err := e.jobs.GetJob(ctx, e.JobID)
	if err != nil {
		e.Logger.Warn().Err(err).Msg("unable to poll job status")
		return false
	}

	return job.Status == models.JobStatusAborting || job.Status == models.JobStatusAborted
}

// ReportFinished records that hostname is done. It never blocks; if the progress
// buffer is full the update is dropped.
func (e *Execution) ReportFinished(hostname string) {
	if e.progress == nil {
		return
	}

	select {
	case e.progress <- hostname:
	default:
		e.Logger.Debug().Str("hostname", hostname).Msg("progress buffer full, dropping update")
	}
}
