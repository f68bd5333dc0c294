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

package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/carverauto/netsync/pkg/models"
)

// MemoryStore keeps events in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	events   map[string][]models.SyncEvent
	progress map[int64]models.JobProgress
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:   make(map[string][]models.SyncEvent),
		progress: make(map[int64]models.JobProgress),
		now:      time.Now,
	}
}

func (m *MemoryStore) AddSyncEvent(_ context.Context, hostname, cause, by string, jobID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events[hostname] = append(m.events[hostname], models.SyncEvent{
		Cause:     cause,
		Timestamp: m.now().UTC(),
		By:        by,
		JobID:     jobID,
	})

	return nil
}

func (m *MemoryStore) ListSyncEvents(_ context.Context, hostname string) ([]models.SyncEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]models.SyncEvent(nil), m.events[hostname]...), nil
}

func (m *MemoryStore) RemoveSyncEvents(_ context.Context, hostname string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.events, hostname)

	return nil
}

func (m *MemoryStore) PublishProgress(_ context.Context, jobID int64, hostnames []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.progress[jobID] = models.JobProgress{
		JobID:           jobID,
		FinishedDevices: append([]string(nil), hostnames...),
		Timestamp:       m.now().UTC(),
	}

	return nil
}

func (m *MemoryStore) GetProgress(_ context.Context, jobID int64) (*models.JobProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.progress[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrProgressNotFound, jobID)
	}

	p.FinishedDevices = append([]string(nil), p.FinishedDevices...)

	return &p, nil
}
