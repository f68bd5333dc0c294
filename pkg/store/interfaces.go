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

// Package store defines persistence for devices, topology, jobs and locks.
package store

import (
	"context"

	"github.com/carverauto/netsync/pkg/models"
)

// DeviceFilter narrows ListDevices. Nil fields match everything.
type DeviceFilter struct {
	State        *models.DeviceState
	DeviceType   *models.DeviceType
	Synchronized *bool
	Hostnames    []string
}

// Match reports whether dev passes the filter.
func (f DeviceFilter) Match(dev *models.Device) bool {
	if f.State != nil && dev.State != *f.State {
		return false
	}

	if f.DeviceType != nil && dev.DeviceType != *f.DeviceType {
		return false
	}

	if f.Synchronized != nil && dev.Synchronized != *f.Synchronized {
		return false
	}

	if len(f.Hostnames) == 0 {
		return true
	}

	for _, h := range f.Hostnames {
		if h == dev.Hostname {
			return true
		}
	}

	return false
}

type DeviceStore interface {
	CreateDevice(ctx context.Context, dev *models.Device) (*models.Device, error)
	GetDevice(ctx context.Context, hostname string) (*models.Device, error)
	GetDeviceByID(ctx context.Context, id int64) (*models.Device, error)
	ListDevices(ctx context.Context, filter DeviceFilter) ([]*models.Device, error)
	SetSyncStatus(ctx context.Context, hostname string, synchronized bool) error
	SetConfHash(ctx context.Context, hostname, hash string) error
	SetDeviceState(ctx context.Context, hostname string, state models.DeviceState, devType models.DeviceType) error
	TouchLastSeen(ctx context.Context, hostname string) error
}

type InterfaceStore interface {
	GetInterface(ctx context.Context, deviceID int64, name string) (*models.Interface, error)
	ListInterfaces(ctx context.Context, deviceID int64) ([]*models.Interface, error)
	UpsertInterface(ctx context.Context, iface *models.Interface) error
}

type LinknetStore interface {
	// FindLinknetByPort returns the link touching (deviceID, port) or ErrNotFound.
	FindLinknetByPort(ctx context.Context, deviceID int64, port string) (*models.Linknet, error)
	// ListLinknets returns links touching deviceID, or every link when deviceID is 0.
	ListLinknets(ctx context.Context, deviceID int64) ([]*models.Linknet, error)
	CreateLinknet(ctx context.Context, l *models.Linknet) (*models.Linknet, error)
	DeleteLinknet(ctx context.Context, id int64) error
}

type MgmtDomainStore interface {
	// FindMgmtDomain resolves the domain served by one distribution device or a pair.
	FindMgmtDomain(ctx context.Context, deviceIDs []int64) (*models.MgmtDomain, error)
	CreateMgmtDomain(ctx context.Context, md *models.MgmtDomain) (*models.MgmtDomain, error)
}

type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) (*models.Job, error)
	GetJob(ctx context.Context, id int64) (*models.Job, error)
	// UpdateJob writes job only if the stored status still equals expect, else ErrConflict.
	UpdateJob(ctx context.Context, job *models.Job, expect models.JobStatus) error
	ListJobs(ctx context.Context, statuses ...models.JobStatus) ([]*models.Job, error)
	SetFinishedDevices(ctx context.Context, id int64, hostnames []string) error
}

type LockStore interface {
	// AcquireLock atomically inserts the lock row. It returns false if name or jobID already holds a lock.
	AcquireLock(ctx context.Context, name string, jobID int64) (bool, error)
	// ReleaseLock deletes the lock held by jobID, or ErrNotFound.
	ReleaseLock(ctx context.Context, name string, jobID int64) error
	GetLock(ctx context.Context, name string) (*models.Joblock, error)
	ListLocks(ctx context.Context) ([]*models.Joblock, error)
	// DeleteLock removes a lock regardless of owner.
	DeleteLock(ctx context.Context, name string) error
}

// Store is the full persistence surface.
type Store interface {
	DeviceStore
	InterfaceStore
	LinknetStore
	MgmtDomainStore
	JobStore
	LockStore

	// RunInTx runs fn against a transactional view of the store.
	RunInTx(ctx context.Context, fn func(tx Store) error) error
	Close() error
}
