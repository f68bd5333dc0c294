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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/netsync/pkg/events"
	"github.com/carverauto/netsync/pkg/logger"
	"github.com/carverauto/netsync/pkg/models"
	"github.com/carverauto/netsync/pkg/store"
)

const (
	waitFor = 5 * time.Second
	tick    = 10 * time.Millisecond
)

func newTestCoordinator(t *testing.T, s store.Store, opts ...Option) *Coordinator {
	t.Helper()

	opts = append([]Option{WithWorkers(2), WithLockRetry(3, 10*time.Millisecond)}, opts...)

	return New(s, logger.NewTestLogger(), opts...)
}

func startCoordinator(t *testing.T, c *Coordinator) {
	t.Helper()

	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Stop(context.Background()) })
}

func waitStatus(t *testing.T, s store.Store, jobID int64, want models.JobStatus) *models.Job {
	t.Helper()

	var job *models.Job

	require.Eventually(t, func() bool {
		var err error

		job, err = s.GetJob(context.Background(), jobID)

		return err == nil && job.Status == want
	}, waitFor, tick, "job %d never reached %s", jobID, want)

	return job
}

func register(t *testing.T, c *Coordinator, name string, fn TaskFunc) {
	t.Helper()

	require.NoError(t, c.Register(name, func(json.RawMessage) (Task, error) { return fn, nil }))
}

type echoArgs struct {
	Hostnames []string `json:"hostnames"`
}

func TestEnqueueRunsTaskToCompletion(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	es := events.NewMemoryStore()
	c := newTestCoordinator(t, s, WithEventStore(es))

	score := 3.0

	require.NoError(t, c.Register("echo", func(raw json.RawMessage) (Task, error) {
		args, err := DecodeArgs[echoArgs](raw)
		if err != nil {
			return nil, err
		}

		return TaskFunc(func(_ context.Context, exec *Execution) (Result, error) {
			for _, h := range args.Hostnames {
				exec.ReportFinished(h)
			}

			return Result{Payload: map[string]any{"actor": exec.Actor}, ChangeScore: &score}, nil
		}), nil
	}))

	startCoordinator(t, c)

	id, err := c.Enqueue(context.Background(), "echo", echoArgs{Hostnames: []string{"eosaccess", "eosdist1"}}, 0, "admin",
		WithComment("nightly"), WithTicketRef("CHG-1"))
	require.NoError(t, err)

	job := waitStatus(t, s, id, models.JobStatusFinished)
	assert.JSONEq(t, `{"actor":"admin"}`, string(job.Result))
	assert.Equal(t, []string{"eosaccess", "eosdist1"}, job.FinishedDevices)
	assert.Equal(t, "nightly", job.Comment)
	assert.Equal(t, "CHG-1", job.TicketRef)
	require.NotNil(t, job.ChangeScore)
	assert.InDelta(t, 3.0, *job.ChangeScore, 0.001)
	require.NotNil(t, job.StartTime)
	require.NotNil(t, job.FinishTime)

	progress, err := es.GetProgress(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []string{"eosaccess", "eosdist1"}, progress.FinishedDevices)
}

func TestJobOutcomes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		task       TaskFunc
		wantStatus models.JobStatus
		check      func(t *testing.T, job *models.Job)
	}{
		{
			name: "unserializable result",
			task: func(context.Context, *Execution) (Result, error) {
				return Result{Payload: make(chan int)}, nil
			},
			wantStatus: models.JobStatusFinished,
			check: func(t *testing.T, job *models.Job) {
				assert.JSONEq(t, unserializableResultMsg, string(job.Result))
			},
		},
		{
			name: "typed error",
			task: func(context.Context, *Execution) (Result, error) {
				return Result{}, fmt.Errorf("sync failed: %w", &LockError{Name: "devices", Attempts: 5})
			},
			wantStatus: models.JobStatusException,
			check: func(t *testing.T, job *models.Job) {
				var exc models.JobException
				require.NoError(t, json.Unmarshal(job.Exception, &exc))
				assert.Equal(t, "LockError", exc.Type)
				assert.Contains(t, exc.Message, `lock "devices"`)
			},
		},
		{
			name: "panic",
			task: func(context.Context, *Execution) (Result, error) {
				panic("boom")
			},
			wantStatus: models.JobStatusException,
			check: func(t *testing.T, job *models.Job) {
				var exc models.JobException
				require.NoError(t, json.Unmarshal(job.Exception, &exc))
				assert.Equal(t, "panicError", exc.Type)
				assert.Contains(t, exc.Message, "boom")
			},
		},
		{
			name: "task reports abort",
			task: func(context.Context, *Execution) (Result, error) {
				return Result{}, ErrAborted
			},
			wantStatus: models.JobStatusAborted,
			check: func(t *testing.T, job *models.Job) {
				assert.Empty(t, job.Result)
			},
		},
		{
			name: "abort keeps partial result",
			task: func(context.Context, *Execution) (Result, error) {
				score := 12.5

				return Result{Payload: map[string][]string{"changed": {"eosdist1"}}, ChangeScore: &score}, ErrAborted
			},
			wantStatus: models.JobStatusAborted,
			check: func(t *testing.T, job *models.Job) {
				assert.JSONEq(t, `{"changed":["eosdist1"]}`, string(job.Result))
				require.NotNil(t, job.ChangeScore)
				assert.InDelta(t, 12.5, *job.ChangeScore, 0)
			},
		},
		{
			name: "failure keeps partial result",
			task: func(context.Context, *Execution) (Result, error) {
				return Result{Payload: map[string][]string{"failed": {"eosdist2"}}}, errors.New("confirm failed")
			},
			wantStatus: models.JobStatusException,
			check: func(t *testing.T, job *models.Job) {
				assert.JSONEq(t, `{"failed":["eosdist2"]}`, string(job.Result))
				assert.Nil(t, job.ChangeScore)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := store.NewMemoryStore()
			c := newTestCoordinator(t, s)
			register(t, c, "task", tt.task)
			startCoordinator(t, c)

			id, err := c.Enqueue(context.Background(), "task", nil, 0, "admin")
			require.NoError(t, err)

			job := waitStatus(t, s, id, tt.wantStatus)
			if tt.check != nil {
				tt.check(t, job)
			}
		})
	}
}

func TestEnqueueUnknownTask(t *testing.T) {
	t.Parallel()

	c := newTestCoordinator(t, store.NewMemoryStore())

	_, err := c.Enqueue(context.Background(), "missing", nil, 0, "admin")
	require.ErrorIs(t, err, ErrUnknownTask)

	register(t, c, "dup", func(context.Context, *Execution) (Result, error) { return Result{}, nil })
	require.ErrorIs(t, c.Register("dup", nil), ErrDuplicateTask)
}

func TestEnqueueQueueFull(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	c := newTestCoordinator(t, s, WithQueueSize(1))
	register(t, c, "noop", func(context.Context, *Execution) (Result, error) { return Result{}, nil })

	// Workers are not started, so the first job occupies the only slot.
	_, err := c.Enqueue(context.Background(), "noop", nil, 0, "admin")
	require.NoError(t, err)

	id, err := c.Enqueue(context.Background(), "noop", nil, 0, "admin")
	require.ErrorIs(t, err, ErrQueueFull)

	job, err := s.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusAborted, job.Status)
}

func TestAbortScheduledJob(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	c := newTestCoordinator(t, s)

	ran := make(chan struct{}, 1)
	register(t, c, "later", func(context.Context, *Execution) (Result, error) {
		ran <- struct{}{}
		return Result{}, nil
	})
	startCoordinator(t, c)

	id, err := c.Enqueue(context.Background(), "later", nil, 50*time.Millisecond, "admin")
	require.NoError(t, err)

	job, err := c.Abort(context.Background(), id, "maintenance window moved", "operator")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusAborted, job.Status)

	select {
	case <-ran:
		t.Fatal("aborted job ran")
	case <-time.After(150 * time.Millisecond):
	}

	_, err = c.Abort(context.Background(), id, "again", "operator")
	require.ErrorIs(t, err, ErrJobNotAbortable)
}

func TestAbortRunningJob(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	c := newTestCoordinator(t, s)

	started := make(chan struct{})

	register(t, c, "long", func(ctx context.Context, exec *Execution) (Result, error) {
		close(started)
		<-ctx.Done()

		assert.True(t, exec.Aborted(context.Background()))

		return Result{}, ctx.Err()
	})
	startCoordinator(t, c)

	id, err := c.Enqueue(context.Background(), "long", nil, 0, "admin")
	require.NoError(t, err)

	<-started

	job, err := c.Abort(context.Background(), id, "stop", "operator")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusAborting, job.Status)

	waitStatus(t, s, id, models.JobStatusAborted)
}

func TestAbortedFlagFromStore(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	ctx := context.Background()

	job, err := s.CreateJob(ctx, &models.Job{Status: models.JobStatusRunning, FunctionName: "sync_devices"})
	require.NoError(t, err)

	exec := &Execution{JobID: job.ID, Logger: logger.NewTestLogger(), jobs: s}
	assert.False(t, exec.Aborted(ctx))

	job.Status = models.JobStatusAborting
	require.NoError(t, s.UpdateJob(ctx, job, models.JobStatusRunning))
	assert.True(t, exec.Aborted(ctx))

	detached := NewExecution(0, "cli", logger.NewTestLogger())
	assert.False(t, detached.Aborted(ctx))
	detached.ReportFinished("eosaccess")
}

func TestLockRetry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestCoordinator(t, store.NewMemoryStore())

	require.NoError(t, c.AcquireLockWithRetry(ctx, models.FleetLockName, 1))

	err := c.AcquireLockWithRetry(ctx, models.FleetLockName, 2)

	var lockErr *LockError
	require.ErrorAs(t, err, &lockErr)
	assert.Equal(t, 3, lockErr.Attempts)
	assert.Equal(t, models.FleetLockName, lockErr.Name)

	require.ErrorIs(t, c.ReleaseLock(ctx, models.FleetLockName, 2), store.ErrNotFound)
	require.NoError(t, c.ReleaseLock(ctx, models.FleetLockName, 1))

	ok, err := c.AcquireLock(ctx, models.FleetLockName, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	locks, err := c.ListLocks(ctx)
	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.Equal(t, int64(2), locks[0].JobID)

	require.NoError(t, c.ForceReleaseLock(ctx, models.FleetLockName))
	require.ErrorIs(t, c.ForceReleaseLock(ctx, models.FleetLockName), store.ErrNotFound)
}

func TestLockRetrySucceedsWhenReleased(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestCoordinator(t, store.NewMemoryStore(), WithLockRetry(20, 10*time.Millisecond))

	require.NoError(t, c.AcquireLockWithRetry(ctx, models.FleetLockName, 1))

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = c.ReleaseLock(ctx, models.FleetLockName, 1)
	}()

	require.NoError(t, c.AcquireLockWithRetry(ctx, models.FleetLockName, 2))
}

func TestRecoverAfterRestart(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := store.NewMemoryStore()
	now := time.Now().UTC()

	running, err := s.CreateJob(ctx, &models.Job{Status: models.JobStatusRunning, FunctionName: "sync_devices"})
	require.NoError(t, err)

	ok, err := s.AcquireLock(ctx, models.FleetLockName, running.ID)
	require.NoError(t, err)
	require.True(t, ok)

	overdue, err := s.CreateJob(ctx, &models.Job{
		Status: models.JobStatusScheduled, FunctionName: "sync_devices", ScheduledTime: now.Add(-time.Minute),
	})
	require.NoError(t, err)

	future, err := s.CreateJob(ctx, &models.Job{
		Status: models.JobStatusScheduled, FunctionName: "sync_devices", ScheduledTime: now.Add(100 * time.Millisecond),
	})
	require.NoError(t, err)

	orphan, err := s.CreateJob(ctx, &models.Job{
		Status: models.JobStatusScheduled, FunctionName: "retired_task", ScheduledTime: now.Add(time.Hour),
	})
	require.NoError(t, err)

	c := newTestCoordinator(t, s)
	register(t, c, "sync_devices", func(context.Context, *Execution) (Result, error) {
		return Result{Payload: "ok"}, nil
	})
	startCoordinator(t, c)

	for _, id := range []int64{running.ID, overdue.ID, orphan.ID} {
		job, err := s.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusAborted, job.Status, "job %d", id)
		assert.NotEmpty(t, job.Exception)
	}

	locks, err := s.ListLocks(ctx)
	require.NoError(t, err)
	assert.Empty(t, locks)

	waitStatus(t, s, future.ID, models.JobStatusFinished)

	ok, err = c.AcquireLock(ctx, models.FleetLockName, future.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRecoverKeepsLockForFollowUp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		confirmAt    time.Duration
		wantConfirm  models.JobStatus
		wantLockHeld bool
	}{
		{name: "confirm re-armed", confirmAt: time.Hour, wantConfirm: models.JobStatusScheduled, wantLockHeld: true},
		{name: "confirm overdue", confirmAt: -time.Minute, wantConfirm: models.JobStatusAborted, wantLockHeld: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			s := store.NewMemoryStore()

			confirm, err := s.CreateJob(ctx, &models.Job{
				Status:        models.JobStatusScheduled,
				FunctionName:  "confirm_devices",
				ScheduledTime: time.Now().UTC().Add(tt.confirmAt),
			})
			require.NoError(t, err)

			owner, err := s.CreateJob(ctx, &models.Job{
				Status: models.JobStatusFinished, FunctionName: "sync_devices", NextJobID: &confirm.ID,
			})
			require.NoError(t, err)

			ok, err := s.AcquireLock(ctx, models.FleetLockName, owner.ID)
			require.NoError(t, err)
			require.True(t, ok)

			c := newTestCoordinator(t, s)
			register(t, c, "confirm_devices", func(context.Context, *Execution) (Result, error) {
				return Result{}, nil
			})
			startCoordinator(t, c)

			job, err := s.GetJob(ctx, confirm.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantConfirm, job.Status)

			lock, err := s.GetLock(ctx, models.FleetLockName)
			if tt.wantLockHeld {
				require.NoError(t, err)
				assert.Equal(t, owner.ID, lock.JobID)

				return
			}

			require.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}

func TestErrorType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "LockError", errorType(fmt.Errorf("a: %w", fmt.Errorf("b: %w", &LockError{}))))
	assert.Equal(t, "Error", errorType(errors.New("plain")))
	assert.Equal(t, "Error", errorType(fmt.Errorf("wrapped: %w", ErrQueueFull)))
}

func TestDecodeArgs(t *testing.T) {
	t.Parallel()

	args, err := DecodeArgs[echoArgs](json.RawMessage(`{"hostnames":["eosaccess"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"eosaccess"}, args.Hostnames)

	empty, err := DecodeArgs[echoArgs](nil)
	require.NoError(t, err)
	assert.Nil(t, empty.Hostnames)

	_, err = DecodeArgs[echoArgs](json.RawMessage(`[`))
	require.Error(t, err)
}
