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

// Package drift compares stored configuration fingerprints with what devices actually run.
package drift

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/carverauto/netsync/pkg/events"
	"github.com/carverauto/netsync/pkg/hashutil"
	"github.com/carverauto/netsync/pkg/logger"
	"github.com/carverauto/netsync/pkg/models"
	"github.com/carverauto/netsync/pkg/store"
	"github.com/carverauto/netsync/pkg/transport"
)

// Detector checks devices for out-of-band changes before they are overwritten.
type Detector struct {
	devices   store.DeviceStore
	transport transport.Transport
	events    events.Store
	log       logger.Logger
}

func NewDetector(devices store.DeviceStore, t transport.Transport, es events.Store, log logger.Logger) *Detector {
	return &Detector{
		devices:   devices,
		transport: t,
		events:    es,
		log:       logger.Wrap(log.WithComponent("drift")),
	}
}

// CheckDrift returns a *DriftError when dev runs something other than its stored fingerprint.
// The device is marked unsynchronized before the error is returned. force skips the check,
// as does a device that was never fingerprinted.
func (d *Detector) CheckDrift(ctx context.Context, dev *models.Device, force bool) error {
	if force || dev.ConfHash == "" {
		return nil
	}

	running, err := d.transport.GetRunningConfig(ctx, dev)
	if err != nil {
		return fmt.Errorf("fetch running config of %s: %w", dev.Hostname, err)
	}

	if hashutil.MatchesFingerprint(dev.ConfHash, running) {
		return nil
	}

	d.log.Warn().
		Str("hostname", dev.Hostname).
		Str("stored_hash", dev.ConfHash).
		Str("running_hash", hashutil.ConfigFingerprint(running)).
		Msg("configuration drift detected")

	if err := d.devices.SetSyncStatus(ctx, dev.Hostname, false); err != nil {
		return fmt.Errorf("mark %s unsynchronized: %w", dev.Hostname, err)
	}

	if d.events != nil {
		if err := d.events.AddSyncEvent(ctx, dev.Hostname, models.SyncCauseDrift, "drift", 0); err != nil {
			d.log.Warn().Err(err).Str("hostname", dev.Hostname).Msg("unable to record drift event")
		}
	}

	return &DriftError{Hostnames: []string{dev.Hostname}}
}

// CheckDriftAll checks every device. If any drifted, the result is one *DriftError naming
// all of them, joined with any fetch errors.
func (d *Detector) CheckDriftAll(ctx context.Context, devs []*models.Device, force bool) error {
	var (
		drifted []string
		errs    []error
	)

	for _, dev := range devs {
		err := d.CheckDrift(ctx, dev, force)

		var de *DriftError

		switch {
		case err == nil:
		case errors.As(err, &de):
			drifted = append(drifted, de.Hostnames...)
		default:
			errs = append(errs, err)
		}
	}

	if len(drifted) > 0 {
		sort.Strings(drifted)
		errs = append([]error{&DriftError{Hostnames: drifted}}, errs...)
	}

	return errors.Join(errs...)
}

// UpdateFingerprint re-reads dev's running configuration and stores its hash.
func (d *Detector) UpdateFingerprint(ctx context.Context, dev *models.Device) (string, error) {
	running, err := d.transport.GetRunningConfig(ctx, dev)
	if err != nil {
		return "", fmt.Errorf("fetch running config of %s: %w", dev.Hostname, err)
	}

	hash := hashutil.ConfigFingerprint(running)

	if err := d.devices.SetConfHash(ctx, dev.Hostname, hash); err != nil {
		return "", fmt.Errorf("store fingerprint of %s: %w", dev.Hostname, err)
	}

	d.log.Debug().Str("hostname", dev.Hostname).Str("hash", hash).Msg("fingerprint updated")

	return hash, nil
}
