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
	"encoding/json"
	"errors"
	"fmt"

	"github.com/carverauto/netsync/pkg/models"
	"github.com/carverauto/netsync/pkg/store"
)

const maxAbortAttempts = 3

// Abort stops a job. A SCHEDULED job goes straight to ABORTED. A RUNNING job is
// marked ABORTING and its context canceled; the task observes that and returns.
func (c *Coordinator) Abort(ctx context.Context, jobID int64, reason, actor string) (*models.Job, error) {
	for attempt := 0; attempt < maxAbortAttempts; attempt++ {
		job, err := c.store.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}

		switch job.Status {
		case models.JobStatusScheduled:
			c.stopTimer(jobID)

			exc, _ := json.Marshal(models.JobException{
				Message: fmt.Sprintf("aborted by %s: %s", actor, reason),
				Type:    "AbortedError",
			})

			finishedAt := c.now().UTC()
			job.Status = models.JobStatusAborted
			job.Exception = exc
			job.FinishTime = &finishedAt

			err = c.store.UpdateJob(ctx, job, models.JobStatusScheduled)
		case models.JobStatusRunning:
			job.Status = models.JobStatusAborting

			err = c.store.UpdateJob(ctx, job, models.JobStatusRunning)
			if err == nil {
				c.cancelRunning(jobID)
			}
		default:
			return nil, fmt.Errorf("%w: job %d is %s", ErrJobNotAbortable, jobID, job.Status)
		}

		if errors.Is(err, store.ErrConflict) {
			continue
		}

		if err != nil {
			return nil, err
		}

		c.log.Info().
			Int64("job_id", jobID).
			Str("actor", actor).
			Str("reason", reason).
			Str("status", string(job.Status)).
			Msg("job abort requested")

		return job, nil
	}

	return nil, fmt.Errorf("%w: job %d kept changing", store.ErrConflict, jobID)
}

func (c *Coordinator) stopTimer(jobID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.timers[jobID]; ok {
		t.Stop()
		delete(c.timers, jobID)
	}
}

func (c *Coordinator) cancelRunning(jobID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cancel, ok := c.running[jobID]; ok {
		cancel()
	}
}
