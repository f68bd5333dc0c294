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
	"fmt"

	"github.com/carverauto/netsync/pkg/models"
	"github.com/carverauto/netsync/pkg/store"
)

// Selector picks the devices a sync request targets. Exactly one field must be set.
type Selector struct {
	Hostname   string            `json:"hostname,omitempty"`
	DeviceType models.DeviceType `json:"device_type,omitempty"`
	Group      string            `json:"group,omitempty"`
	All        bool              `json:"all,omitempty"`
}

func (s Selector) Validate() error {
	set := 0

	for _, ok := range []bool{s.Hostname != "", s.DeviceType != "", s.Group != "", s.All} {
		if ok {
			set++
		}
	}

	if set != 1 {
		return ErrInvalidSelector
	}

	if s.DeviceType != "" {
		if _, err := models.ParseDeviceType(string(s.DeviceType)); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSelector, err)
		}
	}

	return nil
}

// Resolve returns the MANAGED devices the selector names. With All, only devices that are
// out of sync are returned unless resync is set.
func (s *Syncer) Resolve(ctx context.Context, sel Selector, resync bool) ([]*models.Device, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}

	managed := models.DeviceStateManaged

	switch {
	case sel.Hostname != "":
		dev, err := s.store.GetDevice(ctx, sel.Hostname)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, sel.Hostname)
		}

		if err != nil {
			return nil, err
		}

		if dev.State != models.DeviceStateManaged {
			return nil, fmt.Errorf("%w: %s is %s", ErrDeviceNotManaged, dev.Hostname, dev.State)
		}

		return []*models.Device{dev}, nil
	case sel.DeviceType != "":
		devType, _ := models.ParseDeviceType(string(sel.DeviceType))

		return s.store.ListDevices(ctx, store.DeviceFilter{State: &managed, DeviceType: &devType})
	case sel.Group != "":
		devs, err := s.store.ListDevices(ctx, store.DeviceFilter{State: &managed})
		if err != nil {
			return nil, err
		}

		members, err := s.settings.GroupMembers(ctx, sel.Group, models.Hostnames(devs))
		if err != nil {
			return nil, err
		}

		in := make(map[string]struct{}, len(members))
		for _, m := range members {
			in[m] = struct{}{}
		}

		out := devs[:0]

		for _, d := range devs {
			if _, ok := in[d.Hostname]; ok {
				out = append(out, d)
			}
		}

		return out, nil
	default:
		filter := store.DeviceFilter{State: &managed}
		if !resync {
			unsynced := false
			filter.Synchronized = &unsynced
		}

		return s.store.ListDevices(ctx, filter)
	}
}
