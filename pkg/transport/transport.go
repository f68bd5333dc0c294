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

// Package transport defines how netsync talks to devices. Vendor command sets live in
// drivers; the rest of the system only sees the Transport interface.
package transport

//go:generate mockgen -destination=mock_transport.go -package=transport github.com/carverauto/netsync/pkg/transport Transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/carverauto/netsync/pkg/models"
)

// Transport is a device session capable of commit-confirm configuration changes.
type Transport interface {
	GetRunningConfig(ctx context.Context, dev *models.Device) (string, error)
	// LoadCandidate stages config and returns the diff against the running configuration.
	// An empty diff means the device already runs config.
	LoadCandidate(ctx context.Context, dev *models.Device, config string, replace bool) (string, error)
	// Commit activates the candidate. A positive revertIn asks the device to roll back
	// unless ConfirmCommit arrives first.
	Commit(ctx context.Context, dev *models.Device, revertIn time.Duration, message string) error
	ConfirmCommit(ctx context.Context, dev *models.Device) error
	Discard(ctx context.Context, dev *models.Device) error
}

// Registry picks a Transport by device platform. It is itself a Transport.
type Registry struct {
	mu         sync.RWMutex
	byPlatform map[string]Transport
	fallback   Transport
}

var _ Transport = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{byPlatform: make(map[string]Transport)}
}

func (r *Registry) Register(platform string, t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byPlatform[platform] = t
}

// SetDefault sets the transport used for platforms without a registration.
func (r *Registry) SetDefault(t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.fallback = t
}

// For returns the transport serving dev.
func (r *Registry) For(dev *models.Device) (Transport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if t, ok := r.byPlatform[dev.Platform]; ok {
		return t, nil
	}

	if r.fallback != nil {
		return r.fallback, nil
	}

	return nil, fmt.Errorf("%w: %q (device %s)", ErrUnsupportedPlatform, dev.Platform, dev.Hostname)
}

func (r *Registry) GetRunningConfig(ctx context.Context, dev *models.Device) (string, error) {
	t, err := r.For(dev)
	if err != nil {
		return "", err
	}

	return t.GetRunningConfig(ctx, dev)
}

func (r *Registry) LoadCandidate(ctx context.Context, dev *models.Device, config string, replace bool) (string, error) {
	t, err := r.For(dev)
	if err != nil {
		return "", err
	}

	return t.LoadCandidate(ctx, dev, config, replace)
}

func (r *Registry) Commit(ctx context.Context, dev *models.Device, revertIn time.Duration, message string) error {
	t, err := r.For(dev)
	if err != nil {
		return err
	}

	return t.Commit(ctx, dev, revertIn, message)
}

func (r *Registry) ConfirmCommit(ctx context.Context, dev *models.Device) error {
	t, err := r.For(dev)
	if err != nil {
		return err
	}

	return t.ConfirmCommit(ctx, dev)
}

func (r *Registry) Discard(ctx context.Context, dev *models.Device) error {
	t, err := r.For(dev)
	if err != nil {
		return err
	}

	return t.Discard(ctx, dev)
}
