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

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/carverauto/netsync/pkg/models"
)

// MemoryStore keeps everything in process memory. It backs tests and single-node
// deployments that can afford to lose job history on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	nextID      int64
	devices     map[int64]*models.Device
	interfaces  map[ifaceKey]*models.Interface
	linknets    map[int64]*models.Linknet
	mgmtdomains map[int64]*models.MgmtDomain
	jobs        map[int64]*models.Job
	locks       map[string]*models.Joblock
	now         func() time.Time
}

type ifaceKey struct {
	deviceID int64
	name     string
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices:     make(map[int64]*models.Device),
		interfaces:  make(map[ifaceKey]*models.Interface),
		linknets:    make(map[int64]*models.Linknet),
		mgmtdomains: make(map[int64]*models.MgmtDomain),
		jobs:        make(map[int64]*models.Job),
		locks:       make(map[string]*models.Joblock),
		now:         time.Now,
	}
}

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

// RunInTx serializes fn against other RunInTx callers. Individual operations
// inside fn are still applied immediately.
func (m *MemoryStore) RunInTx(_ context.Context, fn func(tx Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	return fn(m)
}

func (*MemoryStore) Close() error { return nil }

func (m *MemoryStore) CreateDevice(_ context.Context, dev *models.Device) (*models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if dev.Hostname == "" {
		return nil, fmt.Errorf("%w: hostname is required", ErrInvalidInput)
	}

	for _, d := range m.devices {
		if d.Hostname == dev.Hostname {
			return nil, fmt.Errorf("%w: device %s", ErrAlreadyExists, dev.Hostname)
		}
	}

	c := dev.Clone()
	c.ID = m.id()
	m.devices[c.ID] = c

	return c.Clone(), nil
}

func (m *MemoryStore) deviceByName(hostname string) *models.Device {
	for _, d := range m.devices {
		if d.Hostname == hostname {
			return d
		}
	}

	return nil
}

func (m *MemoryStore) GetDevice(_ context.Context, hostname string) (*models.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d := m.deviceByName(hostname)
	if d == nil {
		return nil, fmt.Errorf("%w: device %s", ErrNotFound, hostname)
	}

	return d.Clone(), nil
}

func (m *MemoryStore) GetDeviceByID(_ context.Context, id int64) (*models.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: device id %d", ErrNotFound, id)
	}

	return d.Clone(), nil
}

func (m *MemoryStore) ListDevices(_ context.Context, filter DeviceFilter) ([]*models.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Device, 0, len(m.devices))

	for _, d := range m.devices {
		if filter.Match(d) {
			out = append(out, d.Clone())
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Hostname < out[j].Hostname })

	return out, nil
}

func (m *MemoryStore) updateDevice(hostname string, fn func(d *models.Device)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := m.deviceByName(hostname)
	if d == nil {
		return fmt.Errorf("%w: device %s", ErrNotFound, hostname)
	}

	fn(d)

	return nil
}

func (m *MemoryStore) SetSyncStatus(_ context.Context, hostname string, synchronized bool) error {
	return m.updateDevice(hostname, func(d *models.Device) { d.Synchronized = synchronized })
}

func (m *MemoryStore) SetConfHash(_ context.Context, hostname, hash string) error {
	return m.updateDevice(hostname, func(d *models.Device) { d.ConfHash = hash })
}

func (m *MemoryStore) SetDeviceState(_ context.Context, hostname string, state models.DeviceState, devType models.DeviceType) error {
	return m.updateDevice(hostname, func(d *models.Device) {
		d.State = state
		d.DeviceType = devType
	})
}

func (m *MemoryStore) TouchLastSeen(_ context.Context, hostname string) error {
	now := m.now().UTC()
	return m.updateDevice(hostname, func(d *models.Device) { d.LastSeen = now })
}

func cloneInterface(i *models.Interface) *models.Interface {
	c := *i
	if i.Data != nil {
		c.Data = make(map[string]any, len(i.Data))
		for k, v := range i.Data {
			c.Data[k] = v
		}
	}

	return &c
}

func (m *MemoryStore) GetInterface(_ context.Context, deviceID int64, name string) (*models.Interface, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.interfaces[ifaceKey{deviceID, name}]
	if !ok {
		return nil, fmt.Errorf("%w: interface %d/%s", ErrNotFound, deviceID, name)
	}

	return cloneInterface(i), nil
}

func (m *MemoryStore) ListInterfaces(_ context.Context, deviceID int64) ([]*models.Interface, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Interface

	for k, i := range m.interfaces {
		if k.deviceID == deviceID {
			out = append(out, cloneInterface(i))
		}
	}

	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })

	return out, nil
}

func (m *MemoryStore) UpsertInterface(_ context.Context, iface *models.Interface) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.devices[iface.DeviceID]; !ok {
		return fmt.Errorf("%w: device id %d", ErrNotFound, iface.DeviceID)
	}

	m.interfaces[ifaceKey{iface.DeviceID, iface.Name}] = cloneInterface(iface)

	return nil
}

func (m *MemoryStore) FindLinknetByPort(_ context.Context, deviceID int64, port string) (*models.Linknet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, l := range m.linknets {
		if l.Touches(deviceID, port) {
			c := *l
			return &c, nil
		}
	}

	return nil, fmt.Errorf("%w: linknet on %d/%s", ErrNotFound, deviceID, port)
}

func (m *MemoryStore) ListLinknets(_ context.Context, deviceID int64) ([]*models.Linknet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Linknet

	for _, l := range m.linknets {
		if deviceID == 0 || l.DeviceAID == deviceID || l.DeviceBID == deviceID {
			c := *l
			out = append(out, &c)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (m *MemoryStore) CreateLinknet(_ context.Context, l *models.Linknet) (*models.Linknet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range []int64{l.DeviceAID, l.DeviceBID} {
		if _, ok := m.devices[id]; !ok {
			return nil, fmt.Errorf("%w: device id %d", ErrNotFound, id)
		}
	}

	for _, existing := range m.linknets {
		if existing.Touches(l.DeviceAID, l.DeviceAPort) || existing.Touches(l.DeviceBID, l.DeviceBPort) {
			return nil, fmt.Errorf("%w: linknet port already in use", ErrAlreadyExists)
		}

		if l.IPv4Network != "" && existing.IPv4Network == l.IPv4Network {
			return nil, fmt.Errorf("%w: linknet network %s", ErrAlreadyExists, l.IPv4Network)
		}
	}

	c := *l
	c.ID = m.id()
	m.linknets[c.ID] = &c
	out := c

	return &out, nil
}

func (m *MemoryStore) DeleteLinknet(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.linknets[id]; !ok {
		return fmt.Errorf("%w: linknet %d", ErrNotFound, id)
	}

	delete(m.linknets, id)

	return nil
}

func (m *MemoryStore) FindMgmtDomain(_ context.Context, deviceIDs []int64) (*models.MgmtDomain, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, md := range m.mgmtdomains {
		if MgmtDomainMatches(md, deviceIDs) {
			c := *md
			return &c, nil
		}
	}

	return nil, fmt.Errorf("%w: mgmtdomain for devices %v", ErrNotFound, deviceIDs)
}

// MgmtDomainMatches reports whether md is served by exactly the given device(s).
func MgmtDomainMatches(md *models.MgmtDomain, deviceIDs []int64) bool {
	switch len(deviceIDs) {
	case 1:
		return md.DeviceAID == deviceIDs[0] || md.DeviceBID == deviceIDs[0]
	case 2:
		a, b := deviceIDs[0], deviceIDs[1]
		return (md.DeviceAID == a && md.DeviceBID == b) || (md.DeviceAID == b && md.DeviceBID == a)
	default:
		return false
	}
}

func (m *MemoryStore) CreateMgmtDomain(_ context.Context, md *models.MgmtDomain) (*models.MgmtDomain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *md
	c.ID = m.id()
	m.mgmtdomains[c.ID] = &c
	out := c

	return &out, nil
}

func cloneJob(j *models.Job) *models.Job {
	c := *j
	c.FinishedDevices = append([]string(nil), j.FinishedDevices...)
	c.Result = append([]byte(nil), j.Result...)
	c.Exception = append([]byte(nil), j.Exception...)
	c.StartArguments = append([]byte(nil), j.StartArguments...)

	if j.NextJobID != nil {
		v := *j.NextJobID
		c.NextJobID = &v
	}

	if j.ChangeScore != nil {
		v := *j.ChangeScore
		c.ChangeScore = &v
	}

	return &c
}

func (m *MemoryStore) CreateJob(_ context.Context, job *models.Job) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := cloneJob(job)
	c.ID = m.id()

	if c.Status == "" {
		c.Status = models.JobStatusScheduled
	}

	m.jobs[c.ID] = c

	return cloneJob(c), nil
}

func (m *MemoryStore) GetJob(_ context.Context, id int64) (*models.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: job %d", ErrNotFound, id)
	}

	return cloneJob(j), nil
}

func (m *MemoryStore) UpdateJob(_ context.Context, job *models.Job, expect models.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.jobs[job.ID]
	if !ok {
		return fmt.Errorf("%w: job %d", ErrNotFound, job.ID)
	}

	if cur.Status != expect {
		return fmt.Errorf("%w: job %d is %s, expected %s", ErrConflict, job.ID, cur.Status, expect)
	}

	m.jobs[job.ID] = cloneJob(job)

	return nil
}

func (m *MemoryStore) ListJobs(_ context.Context, statuses ...models.JobStatus) ([]*models.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Job

	for _, j := range m.jobs {
		if len(statuses) == 0 || containsStatus(statuses, j.Status) {
			out = append(out, cloneJob(j))
		}
	}

	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })

	return out, nil
}

func containsStatus(statuses []models.JobStatus, s models.JobStatus) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}

	return false
}

func (m *MemoryStore) SetFinishedDevices(_ context.Context, id int64, hostnames []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("%w: job %d", ErrNotFound, id)
	}

	j.FinishedDevices = append([]string(nil), hostnames...)

	return nil
}

func (m *MemoryStore) AcquireLock(_ context.Context, name string, jobID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.locks[name]; held {
		return false, nil
	}

	for _, l := range m.locks {
		if l.JobID == jobID {
			return false, nil
		}
	}

	m.locks[name] = &models.Joblock{Name: name, JobID: jobID, StartTime: m.now().UTC()}

	return true, nil
}

func (m *MemoryStore) ReleaseLock(_ context.Context, name string, jobID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[name]
	if !ok || l.JobID != jobID {
		return fmt.Errorf("%w: lock %s held by job %d", ErrNotFound, name, jobID)
	}

	delete(m.locks, name)

	return nil
}

func (m *MemoryStore) GetLock(_ context.Context, name string) (*models.Joblock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.locks[name]
	if !ok {
		return nil, fmt.Errorf("%w: lock %s", ErrNotFound, name)
	}

	c := *l

	return &c, nil
}

func (m *MemoryStore) ListLocks(_ context.Context) ([]*models.Joblock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Joblock, 0, len(m.locks))
	for _, l := range m.locks {
		c := *l
		out = append(out, &c)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out, nil
}

func (m *MemoryStore) DeleteLock(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.locks[name]; !ok {
		return fmt.Errorf("%w: lock %s", ErrNotFound, name)
	}

	delete(m.locks, name)

	return nil
}
