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

package sync

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/netsync/pkg/commit"
	"github.com/carverauto/netsync/pkg/jobs"
	"github.com/carverauto/netsync/pkg/logger"
	"github.com/carverauto/netsync/pkg/models"
	"github.com/carverauto/netsync/pkg/neighbors"
	"github.com/carverauto/netsync/pkg/settings"
	"github.com/carverauto/netsync/pkg/topology"
	"github.com/carverauto/netsync/pkg/transport/transporttest"
)

func waitJob(t *testing.T, h *harness, jobID int64, want models.JobStatus) *models.Job {
	t.Helper()

	var job *models.Job

	require.Eventually(t, func() bool {
		var err error

		job, err = h.store.GetJob(context.Background(), jobID)

		return err == nil && job.Status == want
	}, 5*time.Second, 10*time.Millisecond, "job %d never reached %s", jobID, want)

	return job
}

func TestTwoPhaseSyncThroughCoordinator(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []string{"eosdist1"})
	ctx := context.Background()

	coord := jobs.New(h.store, logger.NewTestLogger(), jobs.WithWorkers(2), jobs.WithLockRetry(3, 10*time.Millisecond))

	syncer, err := New(Deps{
		Store:       h.store,
		Settings:    h.syncer.settings,
		Renderer:    renderTarget,
		Transport:   h.fleet,
		Events:      h.events,
		Coordinator: coord,
	}, Options{CommitMode: commit.ModeTwoPhase, RevertIn: time.Minute, AutoPushMaxScore: 10}, logger.NewTestLogger())
	require.NoError(t, err)

	require.NoError(t, RegisterTasks(coord, syncer))
	require.NoError(t, coord.Start(ctx))
	t.Cleanup(func() { _ = coord.Stop(context.Background()) })

	jobID, err := coord.Enqueue(ctx, SyncTaskName, Request{Selector: Selector{Hostname: "eosdist1"}}, 0, "operator")
	require.NoError(t, err)

	job := waitJob(t, h, jobID, models.JobStatusFinished)
	require.NotNil(t, job.NextJobID)
	require.NotNil(t, job.ChangeScore)
	assert.Equal(t, []string{"eosdist1"}, job.FinishedDevices)

	var report Report
	require.NoError(t, json.Unmarshal(job.Result, &report))
	assert.Equal(t, []string{"eosdist1"}, report.Changed)

	confirm := waitJob(t, h, *job.NextJobID, models.JobStatusFinished)
	assert.Equal(t, ConfirmTaskName, confirm.FunctionName)
	assert.Equal(t, "operator", confirm.ScheduledBy)

	assert.Zero(t, h.lockHolder(t))
	assert.False(t, h.fleet.Device("eosdist1").Pending())
	assert.True(t, h.device(t, "eosdist1").Synchronized)
}

func TestRegisterTasksRejectsBadArguments(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []string{"eosdist1"})
	coord := jobs.New(h.store, logger.NewTestLogger())
	require.NoError(t, RegisterTasks(coord, h.syncer))

	// Registering twice is an error from the coordinator.
	require.ErrorIs(t, RegisterTasks(coord, h.syncer), jobs.ErrDuplicateTask)

	reg := &recordingRegistry{factories: map[string]jobs.TaskFactory{}}
	require.NoError(t, RegisterTasks(reg, h.syncer))

	_, err := reg.factories[SyncTaskName](json.RawMessage(`{"hostname":"a","all":true}`))
	require.ErrorIs(t, err, ErrInvalidSelector)

	_, err = reg.factories[SyncTaskName](json.RawMessage(`{"hostname":`))
	require.Error(t, err)

	task, err := reg.factories[ConfirmTaskName](json.RawMessage(`{"prev_job_id":3,"hostnames":["eosdist1"]}`))
	require.NoError(t, err)
	assert.Equal(t, ConfirmArgs{PrevJobID: 3, Hostnames: []string{"eosdist1"}}, task.(*ConfirmTask).args)
}

type recordingRegistry struct {
	factories map[string]jobs.TaskFactory
}

func (r *recordingRegistry) Register(name string, f jobs.TaskFactory) error {
	r.factories[name] = f
	return nil
}

func TestUpdateLinknets(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []string{"eosdist1", "eoscore1"})
	ctx := context.Background()

	sp, err := settings.NewProvider(strings.NewReader(testSettings), logger.NewTestLogger())
	require.NoError(t, err)

	resolver, err := topology.NewResolver(h.store, sp, nil, "10.198.0.0/16", logger.NewTestLogger())
	require.NoError(t, err)

	src := neighbors.NewStaticSource()
	src.Set("eosdist1", neighbors.Data{"Ethernet1": {{Hostname: "eoscore1", Port: "Ethernet1"}}})

	syncer, err := New(Deps{
		Store:       h.store,
		Settings:    sp,
		Renderer:    renderTarget,
		Transport:   h.fleet,
		Events:      h.events,
		Coordinator: h.coord,
		Neighbors:   src,
		Resolver:    resolver,
	}, Options{}, logger.NewTestLogger())
	require.NoError(t, err)

	require.NoError(t, h.store.SetSyncStatus(ctx, "eosdist1", true))
	require.NoError(t, h.store.SetSyncStatus(ctx, "eoscore1", true))

	records, err := syncer.UpdateLinknets(ctx, "eosdist1", true)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, h.device(t, "eosdist1").Synchronized)

	records, err = syncer.UpdateLinknets(ctx, "eosdist1", false)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "10.198.0.0/31", records[0].IPv4Network)

	for _, host := range []string{"eosdist1", "eoscore1"} {
		assert.False(t, h.device(t, host).Synchronized, host)

		evs, err := h.events.ListSyncEvents(ctx, host)
		require.NoError(t, err)
		require.Len(t, evs, 1)
		assert.Equal(t, models.SyncCauseLinknetUpdate, evs[0].Cause)
	}

	// Rendering now sees the link.
	links, err := syncer.linkRecords(ctx, h.device(t, "eoscore1"))
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "eosdist1", links[0].DeviceAHostname)

	_, err = syncer.UpdateLinknets(ctx, "ghost", false)
	require.ErrorIs(t, err, ErrDeviceNotFound)

	_, err = h.syncer.UpdateLinknets(ctx, "eosdist1", false)
	require.ErrorIs(t, err, errMissingDeps)
}

// gatedFleet holds Commit on one host until released. A canceled ctx ends the wait early
// and fails the commit, as a real transport would.
type gatedFleet struct {
	*transporttest.Fleet

	host    string
	entered chan struct{}
	release chan struct{}
}

func (g *gatedFleet) Commit(ctx context.Context, dev *models.Device, revertIn time.Duration, message string) error {
	if dev.Hostname == g.host {
		close(g.entered)

		select {
		case <-g.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return g.Fleet.Commit(ctx, dev, revertIn, message)
}

func TestAbortDuringCommitThroughCoordinator(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []string{"eosdist1", "eosdist2"})
	ctx := context.Background()

	gate := &gatedFleet{
		Fleet:   h.fleet,
		host:    "eosdist1",
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}

	coord := jobs.New(h.store, logger.NewTestLogger(), jobs.WithWorkers(2), jobs.WithLockRetry(3, 10*time.Millisecond))

	syncer, err := New(Deps{
		Store:       h.store,
		Settings:    h.syncer.settings,
		Renderer:    renderTarget,
		Transport:   gate,
		Events:      h.events,
		Coordinator: coord,
	}, Options{CommitMode: commit.ModeAutoConfirm, RevertIn: time.Minute, PushConcurrency: 1}, logger.NewTestLogger())
	require.NoError(t, err)

	require.NoError(t, RegisterTasks(coord, syncer))
	require.NoError(t, coord.Start(ctx))
	t.Cleanup(func() { _ = coord.Stop(context.Background()) })

	jobID, err := coord.Enqueue(ctx, SyncTaskName, Request{Selector: Selector{Group: "DIST"}}, 0, "operator")
	require.NoError(t, err)

	select {
	case <-gate.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("commit never started")
	}

	_, err = coord.Abort(ctx, jobID, "operator request", "operator")
	require.NoError(t, err)
	close(gate.release)

	job := waitJob(t, h, jobID, models.JobStatusAborted)

	var report Report
	require.NoError(t, json.Unmarshal(job.Result, &report))
	assert.Equal(t, []string{"eosdist1"}, report.Changed)
	assert.Equal(t, []string{"eosdist2"}, report.Skipped)
	assert.Equal(t, commit.StateCommitted, report.Hosts["eosdist1"].State)
	assert.Empty(t, report.Hosts["eosdist1"].Error)

	assert.Equal(t, targetConfig("eosdist1"), h.fleet.Device("eosdist1").Running())
	assert.False(t, h.fleet.Device("eosdist1").Pending())
	assert.Equal(t, baseConfig("eosdist2"), h.fleet.Device("eosdist2").Running())

	assert.True(t, h.device(t, "eosdist1").Synchronized)
	assert.Zero(t, h.lockHolder(t))
}
