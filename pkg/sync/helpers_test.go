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
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/carverauto/netsync/pkg/commit"
	"github.com/carverauto/netsync/pkg/events"
	"github.com/carverauto/netsync/pkg/jobs"
	"github.com/carverauto/netsync/pkg/logger"
	"github.com/carverauto/netsync/pkg/models"
	"github.com/carverauto/netsync/pkg/settings"
	"github.com/carverauto/netsync/pkg/store"
	"github.com/carverauto/netsync/pkg/transport/transporttest"
)

const testSettings = `
roles:
  dist:
    interfaces:
      - name: Ethernet1
        ifclass: fabric
      - name: Ethernet2
        ifclass: downlink
  core:
    interfaces:
      - name: Ethernet1
        ifclass: fabric
groups:
  - name: DIST
    regex: "^eosdist"
`

var errBoom = errors.New("boom")

// renderFunc renders from the template variables alone.
type renderFunc func(vars map[string]any) (string, error)

func (f renderFunc) Render(_ context.Context, _ string, _ models.DeviceType, vars map[string]any) (string, error) {
	return f(vars)
}

func targetConfig(hostname string) string {
	return "hostname " + hostname + "\ninterface Ethernet1\n description fabric\n"
}

func baseConfig(hostname string) string {
	return "hostname " + hostname + "\ninterface Ethernet1\n"
}

var renderTarget = renderFunc(func(vars map[string]any) (string, error) {
	return targetConfig(vars["hostname"].(string)), nil
})

type enqueued struct {
	name string
	args any
}

// fakeCoordinator takes locks once, without retries, and records enqueued jobs.
type fakeCoordinator struct {
	store store.Store

	mu     sync.Mutex
	jobs   []enqueued
	nextID int64
}

func (f *fakeCoordinator) AcquireLockWithRetry(ctx context.Context, name string, jobID int64) error {
	ok, err := f.store.AcquireLock(ctx, name, jobID)
	if err != nil {
		return err
	}

	if !ok {
		return &jobs.LockError{Name: name, Attempts: 1}
	}

	return nil
}

func (f *fakeCoordinator) ReleaseLock(ctx context.Context, name string, jobID int64) error {
	return f.store.ReleaseLock(ctx, name, jobID)
}

func (f *fakeCoordinator) Enqueue(_ context.Context, name string, args any, _ time.Duration, _ string, _ ...jobs.EnqueueOption) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	f.jobs = append(f.jobs, enqueued{name: name, args: args})

	return 1000 + f.nextID, nil
}

func (f *fakeCoordinator) enqueued() []enqueued {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]enqueued(nil), f.jobs...)
}

type harness struct {
	store  *store.MemoryStore
	fleet  *transporttest.Fleet
	events *events.MemoryStore
	coord  *fakeCoordinator
	syncer *Syncer
}

type harnessOption func(*Options, *Deps)

func withMode(m commit.Mode) harnessOption {
	return func(o *Options, _ *Deps) { o.CommitMode = m }
}

func withRevertIn(d time.Duration) harnessOption {
	return func(o *Options, _ *Deps) { o.RevertIn = d }
}

func withRenderer(r renderFunc) harnessOption {
	return func(_ *Options, d *Deps) { d.Renderer = r }
}

func withAutoPushMax(score float64) harnessOption {
	return func(o *Options, _ *Deps) { o.AutoPushMaxScore = score }
}

func newHarness(t *testing.T, hosts []string, opts ...harnessOption) *harness {
	t.Helper()

	sp, err := settings.NewProvider(strings.NewReader(testSettings), logger.NewTestLogger())
	require.NoError(t, err)

	h := &harness{
		store:  store.NewMemoryStore(),
		fleet:  transporttest.NewFleet(),
		events: events.NewMemoryStore(),
	}
	h.coord = &fakeCoordinator{store: h.store}

	for _, host := range hosts {
		typ := models.DeviceTypeDist
		if strings.HasPrefix(host, "eoscore") {
			typ = models.DeviceTypeCore
		}

		_, err := h.store.CreateDevice(context.Background(), &models.Device{
			Hostname:     host,
			DeviceType:   typ,
			State:        models.DeviceStateManaged,
			Platform:     "eos",
			ManagementIP: "10.100.2.1",
		})
		require.NoError(t, err)

		h.fleet.Add(host, baseConfig(host))
	}

	o := Options{CommitMode: commit.ModeAutoConfirm, RevertIn: time.Minute, AutoPushMaxScore: 10}
	d := Deps{
		Store:       h.store,
		Settings:    sp,
		Renderer:    renderTarget,
		Transport:   h.fleet,
		Events:      h.events,
		Coordinator: h.coord,
	}

	for _, opt := range opts {
		opt(&o, &d)
	}

	h.syncer, err = New(d, o, logger.NewTestLogger())
	require.NoError(t, err)

	return h
}

func (h *harness) exec(jobID int64) *jobs.Execution {
	return jobs.NewExecution(jobID, "test", logger.NewTestLogger())
}

func (h *harness) device(t *testing.T, hostname string) *models.Device {
	t.Helper()

	dev, err := h.store.GetDevice(context.Background(), hostname)
	require.NoError(t, err)

	return dev
}

func (h *harness) lockHolder(t *testing.T) int64 {
	t.Helper()

	lock, err := h.store.GetLock(context.Background(), models.FleetLockName)
	if errors.Is(err, store.ErrNotFound) {
		return 0
	}

	require.NoError(t, err)

	return lock.JobID
}

func intPtr(v int) *int { return &v }
