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

// Package provision runs the checks a device must pass before it is taken under management.
package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/carverauto/netsync/pkg/logger"
	"github.com/carverauto/netsync/pkg/models"
	"github.com/carverauto/netsync/pkg/neighbors"
	"github.com/carverauto/netsync/pkg/notify"
	"github.com/carverauto/netsync/pkg/store"
	"github.com/carverauto/netsync/pkg/topology"
)

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrInvalidState   = errors.New("device is not being provisioned")
	ErrInvalidRole    = errors.New("target role must be ACCESS, DIST or CORE")
)

// CheckOptions tune PreInitCheck.
type CheckOptions struct {
	ExpectedNeighbors []string `json:"neighbors,omitempty"`
	MLAGPeer          string   `json:"mlag_peer_hostname,omitempty"`
}

// Checker verifies cabling for devices under zero-touch provisioning.
type Checker struct {
	store     store.Store
	neighbors neighbors.Source
	resolver  *topology.Resolver
	notifier  notify.Notifier
	log       logger.Logger
}

// NewChecker builds a Checker. notifier may be nil.
func NewChecker(s store.Store, src neighbors.Source, resolver *topology.Resolver, notifier notify.Notifier, log logger.Logger) *Checker {
	return &Checker{
		store:     s,
		neighbors: src,
		resolver:  resolver,
		notifier:  notifier,
		log:       logger.Wrap(log.WithComponent("provision")),
	}
}

// PreInitCheck verifies that hostname is cabled the way targetRole requires and returns
// its neighbor hostnames. Nothing is written; a failing device keeps its state.
func (c *Checker) PreInitCheck(ctx context.Context, hostname string, targetRole models.DeviceType, opts CheckOptions) ([]string, error) {
	if targetRole != models.DeviceTypeAccess && !targetRole.IsFabric() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRole, targetRole)
	}

	dev, err := c.device(ctx, hostname)
	if err != nil {
		return nil, err
	}

	if !dev.State.IsProvisioning() {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidState, hostname, dev.State)
	}

	data, err := c.neighbors.Neighbors(ctx, dev)
	if err != nil {
		return nil, fmt.Errorf("neighbors of %s: %w", hostname, err)
	}

	links, err := c.resolver.ResolveLinks(ctx, dev, targetRole, data, topology.ResolveOptions{DryRun: true})
	if err != nil {
		return nil, err
	}

	verified, err := topology.VerifyUplinks(ctx, c.store, dev, targetRole, links, topology.UplinkOptions{
		ExpectedNeighbors: opts.ExpectedNeighbors,
		MLAGPeer:          opts.MLAGPeer,
	})
	if err != nil {
		c.log.Warn().Err(err).Str("hostname", hostname).Str("role", string(targetRole)).Msg("pre-init check failed")
		return nil, err
	}

	c.log.Info().Str("hostname", hostname).Strs("neighbors", verified).Msg("pre-init check passed")

	return verified, nil
}

// MarkManaged moves hostname to MANAGED with the given role.
func (c *Checker) MarkManaged(ctx context.Context, hostname string, role models.DeviceType) (*models.Device, error) {
	if role != models.DeviceTypeAccess && !role.IsFabric() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRole, role)
	}

	dev, err := c.device(ctx, hostname)
	if err != nil {
		return nil, err
	}

	if _, err := dev.State.Transition(models.DeviceStateManaged); err != nil {
		return nil, err
	}

	if err := c.store.SetDeviceState(ctx, hostname, models.DeviceStateManaged, role); err != nil {
		return nil, fmt.Errorf("set state of %s: %w", hostname, err)
	}

	dev, err = c.device(ctx, hostname)
	if err != nil {
		return nil, err
	}

	if c.notifier != nil {
		if err := c.notifier.OnDeviceManaged(ctx, dev); err != nil {
			c.log.Warn().Err(err).Str("hostname", hostname).Msg("device managed notification failed")
		}
	}

	c.log.Info().Str("hostname", hostname).Str("role", string(role)).Msg("device managed")

	return dev, nil
}

func (c *Checker) device(ctx context.Context, hostname string) (*models.Device, error) {
	dev, err := c.store.GetDevice(ctx, hostname)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, hostname)
	}

	return dev, err
}
