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
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v5"

	"github.com/carverauto/netsync/pkg/models"
	"github.com/carverauto/netsync/pkg/store"
)

// AcquireLock tries once to take name for jobID. It reports false when the lock is held.
func (c *Coordinator) AcquireLock(ctx context.Context, name string, jobID int64) (bool, error) {
	ok, err := c.store.AcquireLock(ctx, name, jobID)
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}

	return ok, nil
}

// AcquireLockWithRetry keeps trying for the configured number of attempts and
// returns a *LockError when the lock stays held.
func (c *Coordinator) AcquireLockWithRetry(ctx context.Context, name string, jobID int64) error {
	op := func() (struct{}, error) {
		ok, err := c.store.AcquireLock(ctx, name, jobID)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}

		if !ok {
			c.log.Debug().Str("lock", name).Int64("job_id", jobID).Msg("lock busy, retrying")
			return struct{}{}, errLockHeld
		}

		return struct{}{}, nil
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.lockInterval)),
		backoff.WithMaxTries(uint(c.lockAttempts)))

	switch {
	case err == nil:
		c.log.Info().Str("lock", name).Int64("job_id", jobID).Msg("lock acquired")
		return nil
	case errors.Is(err, errLockHeld):
		return &LockError{Name: name, Attempts: c.lockAttempts}
	default:
		return fmt.Errorf("acquire lock %s: %w", name, err)
	}
}

// ReleaseLock drops name if jobID holds it. A lock that is already gone is logged and
// returned as store.ErrNotFound so callers can ignore it.
func (c *Coordinator) ReleaseLock(ctx context.Context, name string, jobID int64) error {
	err := c.store.ReleaseLock(ctx, name, jobID)
	if errors.Is(err, store.ErrNotFound) {
		c.log.Warn().Str("lock", name).Int64("job_id", jobID).Msg("lock was not held at release")
		return err
	}

	if err != nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}

	c.log.Info().Str("lock", name).Int64("job_id", jobID).Msg("lock released")

	return nil
}

func (c *Coordinator) ListLocks(ctx context.Context) ([]*models.Joblock, error) {
	return c.store.ListLocks(ctx)
}

// ForceReleaseLock removes name regardless of owner. Operators use it to clear a stuck lock.
func (c *Coordinator) ForceReleaseLock(ctx context.Context, name string) error {
	lock, err := c.store.GetLock(ctx, name)
	if err != nil {
		return err
	}

	if err := c.store.DeleteLock(ctx, name); err != nil {
		return err
	}

	c.log.Warn().Str("lock", name).Int64("job_id", lock.JobID).Msg("lock force released")

	return nil
}
