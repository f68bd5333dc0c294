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

// Package storetest is a conformance suite run against every store backend.
package storetest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/netsync/pkg/models"
	"github.com/carverauto/netsync/pkg/store"
)

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run exercises the store.Store contract.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("devices", func(t *testing.T) { testDevices(t, newStore(t)) })
	t.Run("interfaces", func(t *testing.T) { testInterfaces(t, newStore(t)) })
	t.Run("linknets", func(t *testing.T) { testLinknets(t, newStore(t)) })
	t.Run("mgmtdomains", func(t *testing.T) { testMgmtDomains(t, newStore(t)) })
	t.Run("jobs", func(t *testing.T) { testJobs(t, newStore(t)) })
	t.Run("locks", func(t *testing.T) { testLocks(t, newStore(t)) })
	t.Run("concurrent lock acquire", func(t *testing.T) { testConcurrentLocks(t, newStore(t)) })
	t.Run("transaction", func(t *testing.T) { testTx(t, newStore(t)) })
}

// SeedDevice creates a device or fails the test.
func SeedDevice(t *testing.T, s store.Store, hostname string, typ models.DeviceType, state models.DeviceState) *models.Device {
	t.Helper()

	dev, err := s.CreateDevice(context.Background(), &models.Device{
		Hostname:     hostname,
		DeviceType:   typ,
		State:        state,
		Platform:     "eos",
		ManagementIP: "10.100.2.1",
	})
	require.NoError(t, err)

	return dev
}

func testDevices(t *testing.T, s store.Store) {
	defer s.Close()

	ctx := context.Background()
	access := SeedDevice(t, s, "eosaccess", models.DeviceTypeAccess, models.DeviceStateManaged)
	SeedDevice(t, s, "eosdist1", models.DeviceTypeDist, models.DeviceStateManaged)
	SeedDevice(t, s, "eosdist2", models.DeviceTypeDist, models.DeviceStateUnmanaged)

	require.NotZero(t, access.ID)

	_, err := s.CreateDevice(ctx, &models.Device{Hostname: "eosaccess"})
	require.ErrorIs(t, err, store.ErrAlreadyExists)

	got, err := s.GetDevice(ctx, "eosaccess")
	require.NoError(t, err)
	assert.Equal(t, access.ID, got.ID)
	assert.Equal(t, models.DeviceTypeAccess, got.DeviceType)

	byID, err := s.GetDeviceByID(ctx, access.ID)
	require.NoError(t, err)
	assert.Equal(t, "eosaccess", byID.Hostname)

	_, err = s.GetDevice(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	managed := models.DeviceStateManaged
	dist := models.DeviceTypeDist

	devs, err := s.ListDevices(ctx, store.DeviceFilter{State: &managed})
	require.NoError(t, err)
	assert.Equal(t, []string{"eosaccess", "eosdist1"}, models.Hostnames(devs))

	devs, err = s.ListDevices(ctx, store.DeviceFilter{DeviceType: &dist})
	require.NoError(t, err)
	assert.Equal(t, []string{"eosdist1", "eosdist2"}, models.Hostnames(devs))

	require.NoError(t, s.SetSyncStatus(ctx, "eosaccess", true))
	require.NoError(t, s.SetConfHash(ctx, "eosaccess", "abc123"))
	require.NoError(t, s.TouchLastSeen(ctx, "eosaccess"))

	got, err = s.GetDevice(ctx, "eosaccess")
	require.NoError(t, err)
	assert.True(t, got.Synchronized)
	assert.Equal(t, "abc123", got.ConfHash)
	assert.False(t, got.LastSeen.IsZero())

	unsynced := false

	devs, err = s.ListDevices(ctx, store.DeviceFilter{State: &managed, Synchronized: &unsynced})
	require.NoError(t, err)
	assert.Equal(t, []string{"eosdist1"}, models.Hostnames(devs))

	require.NoError(t, s.SetDeviceState(ctx, "eosdist2", models.DeviceStateManaged, models.DeviceTypeCore))
	got, err = s.GetDevice(ctx, "eosdist2")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStateManaged, got.State)
	assert.Equal(t, models.DeviceTypeCore, got.DeviceType)

	require.ErrorIs(t, s.SetSyncStatus(ctx, "missing", true), store.ErrNotFound)
}

func testInterfaces(t *testing.T, s store.Store) {
	defer s.Close()

	ctx := context.Background()
	dev := SeedDevice(t, s, "eosaccess", models.DeviceTypeAccess, models.DeviceStateManaged)

	iface := &models.Interface{
		DeviceID:   dev.ID,
		Name:       "Ethernet3",
		ConfigType: models.IfConfigMLAGPeer,
		Data:       map[string]any{models.IfDataRedundantLink: false},
	}
	require.NoError(t, s.UpsertInterface(ctx, iface))

	got, err := s.GetInterface(ctx, dev.ID, "Ethernet3")
	require.NoError(t, err)
	assert.Equal(t, models.IfConfigMLAGPeer, got.ConfigType)
	assert.True(t, got.RedundantLinkDisabled())

	iface.ConfigType = models.IfConfigAccessDownlink
	require.NoError(t, s.UpsertInterface(ctx, iface))

	list, err := s.ListInterfaces(ctx, dev.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.IfConfigAccessDownlink, list[0].ConfigType)

	_, err = s.GetInterface(ctx, dev.ID, "Ethernet9")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testLinknets(t *testing.T, s store.Store) {
	defer s.Close()

	ctx := context.Background()
	a := SeedDevice(t, s, "eosdist1", models.DeviceTypeDist, models.DeviceStateManaged)
	b := SeedDevice(t, s, "eoscore1", models.DeviceTypeCore, models.DeviceStateManaged)

	created, err := s.CreateLinknet(ctx, &models.Linknet{
		DeviceAID: a.ID, DeviceAPort: "Ethernet1",
		DeviceBID: b.ID, DeviceBPort: "Ethernet2",
		IPv4Network: "10.198.0.0/31", DeviceAIP: "10.198.0.0", DeviceBIP: "10.198.0.1",
		RedundantLink: true,
	})
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	found, err := s.FindLinknetByPort(ctx, b.ID, "Ethernet2")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, "10.198.0.0/31", found.IPv4Network)
	assert.True(t, found.RedundantLink)

	_, err = s.FindLinknetByPort(ctx, b.ID, "Ethernet1")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.CreateLinknet(ctx, &models.Linknet{
		DeviceAID: a.ID, DeviceAPort: "Ethernet1",
		DeviceBID: b.ID, DeviceBPort: "Ethernet7",
	})
	require.Error(t, err)

	all, err := s.ListLinknets(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)

	mine, err := s.ListLinknets(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)

	require.NoError(t, s.DeleteLinknet(ctx, created.ID))
	require.ErrorIs(t, s.DeleteLinknet(ctx, created.ID), store.ErrNotFound)
}

func testMgmtDomains(t *testing.T, s store.Store) {
	defer s.Close()

	ctx := context.Background()
	d1 := SeedDevice(t, s, "eosdist1", models.DeviceTypeDist, models.DeviceStateManaged)
	d2 := SeedDevice(t, s, "eosdist2", models.DeviceTypeDist, models.DeviceStateManaged)
	d3 := SeedDevice(t, s, "eosdist3", models.DeviceTypeDist, models.DeviceStateManaged)

	md, err := s.CreateMgmtDomain(ctx, &models.MgmtDomain{
		DeviceAID: d1.ID, DeviceBID: d2.ID, IPv4Gateway: "10.0.6.1/24", VLAN: 600,
	})
	require.NoError(t, err)

	got, err := s.FindMgmtDomain(ctx, []int64{d2.ID, d1.ID})
	require.NoError(t, err)
	assert.Equal(t, md.ID, got.ID)
	assert.Equal(t, 600, got.VLAN)

	got, err = s.FindMgmtDomain(ctx, []int64{d1.ID})
	require.NoError(t, err)
	assert.Equal(t, md.ID, got.ID)

	_, err = s.FindMgmtDomain(ctx, []int64{d1.ID, d3.ID})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testJobs(t *testing.T, s store.Store) {
	defer s.Close()

	ctx := context.Background()

	job, err := s.CreateJob(ctx, &models.Job{
		Status:         models.JobStatusScheduled,
		FunctionName:   "sync_devices",
		ScheduledBy:    "admin",
		StartArguments: json.RawMessage(`{"dry_run":true}`),
	})
	require.NoError(t, err)
	require.NotZero(t, job.ID)

	second, err := s.CreateJob(ctx, &models.Job{Status: models.JobStatusScheduled, FunctionName: "confirm_devices"})
	require.NoError(t, err)
	assert.Greater(t, second.ID, job.ID)

	job.Status = models.JobStatusRunning
	require.NoError(t, s.UpdateJob(ctx, job, models.JobStatusScheduled))

	require.ErrorIs(t, s.UpdateJob(ctx, job, models.JobStatusScheduled), store.ErrConflict)

	score := 8.0
	next := second.ID
	job.Status = models.JobStatusFinished
	job.Result = json.RawMessage(`{"devices":{}}`)
	job.ChangeScore = &score
	job.NextJobID = &next
	require.NoError(t, s.UpdateJob(ctx, job, models.JobStatusRunning))

	require.NoError(t, s.SetFinishedDevices(ctx, job.ID, []string{"eosaccess"}))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFinished, got.Status)
	assert.JSONEq(t, `{"dry_run":true}`, string(got.StartArguments))
	assert.JSONEq(t, `{"devices":{}}`, string(got.Result))
	require.NotNil(t, got.ChangeScore)
	assert.InDelta(t, 8.0, *got.ChangeScore, 0.0001)
	require.NotNil(t, got.NextJobID)
	assert.Equal(t, second.ID, *got.NextJobID)
	assert.Equal(t, []string{"eosaccess"}, got.FinishedDevices)

	scheduled, err := s.ListJobs(ctx, models.JobStatusScheduled)
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	assert.Equal(t, second.ID, scheduled[0].ID)

	_, err = s.GetJob(ctx, 999999)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testLocks(t *testing.T, s store.Store) {
	defer s.Close()

	ctx := context.Background()

	ok, err := s.AcquireLock(ctx, models.FleetLockName, 1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.AcquireLock(ctx, models.FleetLockName, 2)
	require.NoError(t, err)
	assert.False(t, ok, "second job must not get the lock")

	ok, err = s.AcquireLock(ctx, "other", 1)
	require.NoError(t, err)
	assert.False(t, ok, "a job holds at most one lock")

	lock, err := s.GetLock(ctx, models.FleetLockName)
	require.NoError(t, err)
	assert.Equal(t, int64(1), lock.JobID)

	require.ErrorIs(t, s.ReleaseLock(ctx, models.FleetLockName, 2), store.ErrNotFound)
	require.NoError(t, s.ReleaseLock(ctx, models.FleetLockName, 1))
	require.ErrorIs(t, s.ReleaseLock(ctx, models.FleetLockName, 1), store.ErrNotFound)

	ok, err = s.AcquireLock(ctx, models.FleetLockName, 2)
	require.NoError(t, err)
	require.True(t, ok)

	locks, err := s.ListLocks(ctx)
	require.NoError(t, err)
	require.Len(t, locks, 1)

	require.NoError(t, s.DeleteLock(ctx, models.FleetLockName))
	require.ErrorIs(t, s.DeleteLock(ctx, models.FleetLockName), store.ErrNotFound)
}

func testConcurrentLocks(t *testing.T, s store.Store) {
	defer s.Close()

	const contenders = 16

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []int64
	)

	for i := 1; i <= contenders; i++ {
		wg.Add(1)

		go func(jobID int64) {
			defer wg.Done()

			ok, err := s.AcquireLock(context.Background(), models.FleetLockName, jobID)
			if err == nil && ok {
				mu.Lock()
				winners = append(winners, jobID)
				mu.Unlock()
			}
		}(int64(i))
	}

	wg.Wait()

	require.Len(t, winners, 1)

	lock, err := s.GetLock(context.Background(), models.FleetLockName)
	require.NoError(t, err)
	assert.Equal(t, winners[0], lock.JobID)
}

func testTx(t *testing.T, s store.Store) {
	defer s.Close()

	ctx := context.Background()

	job, err := s.CreateJob(ctx, &models.Job{Status: models.JobStatusRunning, FunctionName: "sync_devices"})
	require.NoError(t, err)

	ok, err := s.AcquireLock(ctx, models.FleetLockName, job.ID)
	require.NoError(t, err)
	require.True(t, ok)

	err = s.RunInTx(ctx, func(tx store.Store) error {
		job.Status = models.JobStatusAborted
		if err := tx.UpdateJob(ctx, job, models.JobStatusRunning); err != nil {
			return err
		}

		return tx.ReleaseLock(ctx, models.FleetLockName, job.ID)
	})
	require.NoError(t, err)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusAborted, got.Status)

	locks, err := s.ListLocks(ctx)
	require.NoError(t, err)
	assert.Empty(t, locks)
}
