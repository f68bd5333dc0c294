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
	"fmt"

	"github.com/carverauto/netsync/pkg/models"
)

// renderDevice builds the template variables for dev and renders its configuration.
func (s *Syncer) renderDevice(ctx context.Context, dev *models.Device) (string, error) {
	ds, err := s.settings.GetSettings(ctx, dev.Hostname, dev.DeviceType, dev.Model)
	if err != nil {
		return "", fmt.Errorf("settings: %w", err)
	}

	links, err := s.linkRecords(ctx, dev)
	if err != nil {
		return "", err
	}

	ifaces, err := s.store.ListInterfaces(ctx, dev.ID)
	if err != nil {
		return "", fmt.Errorf("interfaces: %w", err)
	}

	vars := ds.TemplateVars()
	vars["hostname"] = dev.Hostname
	vars["device_type"] = string(dev.DeviceType)
	vars["mgmt_ip"] = dev.ManagementIP
	vars["platform"] = dev.Platform
	vars["model"] = dev.Model
	vars["links"] = links
	vars["device_interfaces"] = ifaces

	return s.renderer.Render(ctx, dev.Platform, dev.DeviceType, vars)
}

func (s *Syncer) linkRecords(ctx context.Context, dev *models.Device) ([]models.LinkRecord, error) {
	links, err := s.store.ListLinknets(ctx, dev.ID)
	if err != nil {
		return nil, fmt.Errorf("linknets: %w", err)
	}

	names := map[int64]string{dev.ID: dev.Hostname}
	lookup := func(id int64) (string, error) {
		if n, ok := names[id]; ok {
			return n, nil
		}

		d, err := s.store.GetDeviceByID(ctx, id)
		if err != nil {
			return "", fmt.Errorf("linknet peer %d: %w", id, err)
		}

		names[id] = d.Hostname

		return d.Hostname, nil
	}

	records := make([]models.LinkRecord, 0, len(links))

	for _, l := range links {
		a, err := lookup(l.DeviceAID)
		if err != nil {
			return nil, err
		}

		b, err := lookup(l.DeviceBID)
		if err != nil {
			return nil, err
		}

		records = append(records, l.Record(a, b))
	}

	return records, nil
}
