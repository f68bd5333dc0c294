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

// Package neighbors collects link-layer neighbor tables from devices.
package neighbors

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/carverauto/netsync/pkg/models"
)

var (
	ErrNoNeighbors         = errors.New("no neighbor data")
	errUnsupportedVersion  = errors.New("unsupported snmp version")
	errMissingManagementIP = errors.New("device has no management address")
)

// Neighbor is the far end of one local interface.
type Neighbor struct {
	Hostname string `json:"hostname"`
	Port     string `json:"port"`
}

// Data maps local interface names to what was seen on them.
type Data map[string][]Neighbor

// Interfaces returns the local interface names in sorted order.
func (d Data) Interfaces() []string {
	out := make([]string, 0, len(d))
	for ifName := range d {
		out = append(out, ifName)
	}

	sort.Strings(out)

	return out
}

// Source fetches the neighbor table of a device.
type Source interface {
	Neighbors(ctx context.Context, dev *models.Device) (Data, error)
}

// StaticSource serves fixed tables keyed by hostname.
type StaticSource struct {
	mu   sync.RWMutex
	data map[string]Data
}

var _ Source = (*StaticSource)(nil)

func NewStaticSource() *StaticSource {
	return &StaticSource{data: make(map[string]Data)}
}

func (s *StaticSource) Set(hostname string, d Data) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[hostname] = d
}

func (s *StaticSource) Neighbors(_ context.Context, dev *models.Device) (Data, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.data[dev.Hostname]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoNeighbors, dev.Hostname)
	}

	return d, nil
}
