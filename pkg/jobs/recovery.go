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
	"time"

	"github.com/carverauto/netsync/pkg/models"
	"github.com/carverauto/netsync/pkg/store"
)

// Recover reconciles the job table after a restart. Jobs that were running are aborted,
// scheduled jobs whose time passed are aborted, future jobs are re-armed when their task
// is registered, and locks held by finished jobs are released unless the holder handed
// them to a follow-up job that was re-armed. Job and lock changes commit together.
func (c *Coordinator) Recover(ctx context.Context) error {
	now := c.now().UTC()

	var rearm []*models.Job

	err := c.store.RunInTx(ctx, func(tx store.Store) error {
		rearm = rearm[:0]

		pending, err := tx.ListJobs(ctx, models.JobStatusScheduled, models.JobStatusRunning, models.JobStatusAborting)
		if err != nil {
			return err
		}

		for _, job := range pending {
			var reason string

			switch {
			case job.Status != models.JobStatusScheduled:
				reason = "job was running when the service stopped"
			case !job.ScheduledTime.After(now):
				reason = "scheduled time passed while the service was down"
			default:
				if _, ok := c.factory(job.FunctionName); ok {
					rearm = append(rearm, job)
					continue
				}

				reason = "no task registered for " + job.FunctionName
			}

			if err := c.abortForRecovery(ctx, tx, job, reason, now); err != nil {
				return err
			}
		}

		return c.releaseOrphanLocks(ctx, tx, rearm)
	})
	if err != nil {
		return err
	}

	for _, job := range rearm {
		c.log.Info().Int64("job_id", job.ID).Time("scheduled_time", job.ScheduledTime).Msg("re-arming scheduled job")
		c.schedule(job.ID, job.ScheduledTime.Sub(now))
	}

	return nil
}

func (c *Coordinator) abortForRecovery(ctx context.Context, tx store.Store, job *models.Job, reason string, now time.Time) error {
	exc, _ := json.Marshal(models.JobException{Message: reason, Type: "RecoveryAbort"})

	expect := job.Status
	job.Status = models.JobStatusAborted
	job.Exception = exc
	job.FinishTime = &now

	if err := tx.UpdateJob(ctx, job, expect); err != nil {
		return err
	}

	c.log.Warn().Int64("job_id", job.ID).Str("previous_status", string(expect)).Str("reason", reason).Msg("job aborted during recovery")

	return nil
}

func (c *Coordinator) releaseOrphanLocks(ctx context.Context, tx store.Store, rearm []*models.Job) error {
	locks, err := tx.ListLocks(ctx)
	if err != nil {
		return err
	}

	rearmed := make(map[int64]struct{}, len(rearm))
	for _, job := range rearm {
		rearmed[job.ID] = struct{}{}
	}

	for _, lock := range locks {
		job, err := tx.GetJob(ctx, lock.JobID)

		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return err
		case !job.Status.IsTerminal():
			continue
		case job.NextJobID != nil:
			// A two-phase sync leaves the lock to its confirm job.
			if _, ok := rearmed[*job.NextJobID]; ok {
				c.log.Info().Str("lock", lock.Name).Int64("job_id", lock.JobID).Int64("next_job_id", *job.NextJobID).
					Msg("lock kept for scheduled follow-up job")

				continue
			}
		}

		if err := tx.DeleteLock(ctx, lock.Name); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}

		c.log.Warn().Str("lock", lock.Name).Int64("job_id", lock.JobID).Msg("released lock held by finished job")
	}

	return nil
}
