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

// Package notify fans out lifecycle notifications to registered listeners.
package notify

//go:generate mockgen -destination=mock_notify.go -package=notify github.com/carverauto/netsync/pkg/notify Notifier

import (
	"context"
	"net/netip"
	"sync"

	"github.com/carverauto/netsync/pkg/logger"
	"github.com/carverauto/netsync/pkg/models"
)

// Notifier receives lifecycle notifications.
type Notifier interface {
	OnIPAllocated(ctx context.Context, hostname string, network netip.Prefix) error
	OnDeviceManaged(ctx context.Context, dev *models.Device) error
}

// Registry is itself a Notifier that forwards to every registered one.
// Listener failures are logged and never reach the caller.
type Registry struct {
	mu        sync.RWMutex
	notifiers []Notifier
	log       logger.Logger
}

var _ Notifier = (*Registry)(nil)

func NewRegistry(log logger.Logger, notifiers ...Notifier) *Registry {
	return &Registry{notifiers: notifiers, log: log}
}

func (r *Registry) Register(n Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.notifiers = append(r.notifiers, n)
}

func (r *Registry) snapshot() []Notifier {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]Notifier(nil), r.notifiers...)
}

func (r *Registry) OnIPAllocated(ctx context.Context, hostname string, network netip.Prefix) error {
	for _, n := range r.snapshot() {
		if err := n.OnIPAllocated(ctx, hostname, network); err != nil {
			r.log.Warn().Err(err).
				Str("hostname", hostname).
				Str("network", network.String()).
				Msg("ip allocation notifier failed")
		}
	}

	return nil
}

func (r *Registry) OnDeviceManaged(ctx context.Context, dev *models.Device) error {
	for _, n := range r.snapshot() {
		if err := n.OnDeviceManaged(ctx, dev); err != nil {
			r.log.Warn().Err(err).Str("hostname", dev.Hostname).Msg("device managed notifier failed")
		}
	}

	return nil
}
