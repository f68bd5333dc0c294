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

// Package topology turns neighbor tables into stored links and checks that devices are
// cabled the way their roles and interface classifications say they should be.
package topology

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/carverauto/netsync/pkg/logger"
	"github.com/carverauto/netsync/pkg/models"
	"github.com/carverauto/netsync/pkg/neighbors"
	"github.com/carverauto/netsync/pkg/notify"
	"github.com/carverauto/netsync/pkg/settings"
	"github.com/carverauto/netsync/pkg/store"
)

// ResolveOptions tune ResolveLinks.
type ResolveOptions struct {
	// DryRun computes link records without writing or notifying.
	DryRun bool
}

// Resolver owns the Linknet table.
type Resolver struct {
	store     store.Store
	settings  settings.Provider
	notifier  notify.Notifier
	allocator *SubnetAllocator
	log       logger.Logger
}

// NewResolver builds a resolver carving fabric /31s out of infraLinknet. notifier may be nil.
func NewResolver(s store.Store, sp settings.Provider, notifier notify.Notifier, infraLinknet string, log logger.Logger) (*Resolver, error) {
	alloc, err := NewSubnetAllocator(infraLinknet)
	if err != nil {
		return nil, err
	}

	return &Resolver{
		store:     s,
		settings:  sp,
		notifier:  notifier,
		allocator: alloc,
		log:       logger.Wrap(log.WithComponent("topology")),
	}, nil
}

// ResolveLinks validates the neighbors of local, reconciles them with stored links and
// returns the resulting link records. declaredRole is the role local has or is about to get.
// An *InterfaceError stops the resolution; unknown neighbors are skipped.
func (r *Resolver) ResolveLinks(
	ctx context.Context, local *models.Device, declaredRole models.DeviceType, nbrs neighbors.Data, opts ResolveOptions,
) ([]models.LinkRecord, error) {
	log := logger.Wrap(r.log.With().Str("hostname", local.Hostname).Bool("dry_run", opts.DryRun).Logger())

	localSettings, err := r.getSettings(ctx, local.Hostname, declaredRole, local.Model)
	if err != nil {
		return nil, err
	}

	var records []models.LinkRecord

	// Prefixes handed out by this call. A dry run stores nothing, so they are not in the store.
	pending := make(map[string]struct{})

	for _, localIf := range nbrs.Interfaces() {
		seen := nbrs[localIf]
		if len(seen) == 0 {
			continue
		}

		if len(seen) > 1 {
			log.Debug().Str("interface", localIf).Int("neighbors", len(seen)).Msg("several neighbors on one port, using the first")
		}

		peer := seen[0]

		remote, err := r.store.GetDevice(ctx, peer.Hostname)
		if errors.Is(err, store.ErrNotFound) {
			log.Debug().Str("interface", localIf).Str("neighbor", peer.Hostname).Msg("unknown neighbor device, ignoring")
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("load neighbor %s: %w", peer.Hostname, err)
		}

		var remoteRole models.DeviceType

		switch {
		case remote.State.IsProvisioning():
			// An MLAG peer being provisioned has no stored role yet.
			remoteRole = declaredRole
		case remote.State.IsSteady():
			remoteRole = remote.DeviceType
		default:
			log.Debug().Str("neighbor", remote.Hostname).Str("state", string(remote.State)).Msg("neighbor in invalid state, ignoring")
			continue
		}

		remoteSettings, err := r.getSettings(ctx, remote.Hostname, remoteRole, remote.Model)
		if err != nil {
			return nil, err
		}

		redundant, err := VerifyPeerIfType(ctx, r.store,
			PeerEnd{Device: local, Role: declaredRole, Settings: localSettings, IfName: localIf},
			PeerEnd{Device: remote, Role: remoteRole, Settings: remoteSettings, IfName: peer.Port},
		)
		if err != nil {
			return nil, err
		}

		fabric := declaredRole.IsFabric() && remoteRole.IsFabric()

		link, err := r.reconcile(ctx, local, localIf, remote, peer.Port, fabric, redundant, pending, opts)
		if err != nil {
			return nil, err
		}

		hostA, hostB := local.Hostname, remote.Hostname
		if link.DeviceAID != local.ID {
			hostA, hostB = hostB, hostA
		}

		rec := link.Record(hostA, hostB)
		rec.RedundantLink = redundant
		records = append(records, rec)
	}

	return records, nil
}

func (r *Resolver) getSettings(ctx context.Context, hostname string, role models.DeviceType, model string) (*settings.DeviceSettings, error) {
	s, err := r.settings.GetSettings(ctx, hostname, role, model)
	if err != nil {
		return nil, fmt.Errorf("settings for %s: %w", hostname, err)
	}

	if s == nil {
		return nil, fmt.Errorf("%w: %s", errMissingSettings, hostname)
	}

	return s, nil
}

// reconcile returns the stored link for the cable, replacing any link that touches
// either port with different endpoints.
func (r *Resolver) reconcile(
	ctx context.Context, local *models.Device, localIf string, remote *models.Device, remoteIf string,
	fabric, redundant bool, pending map[string]struct{}, opts ResolveOptions,
) (*models.Linknet, error) {
	var (
		result    *models.Linknet
		allocated netip.Prefix
	)

	err := r.store.RunInTx(ctx, func(tx store.Store) error {
		stale, err := r.linksTouching(ctx, tx, local.ID, localIf, remote.ID, remoteIf)
		if err != nil {
			return err
		}

		if len(stale) == 1 && stale[0].Matches(local.ID, localIf, remote.ID, remoteIf) {
			result = stale[0]
			return nil
		}

		for _, l := range stale {
			r.log.Info().
				Int64("linknet_id", l.ID).
				Str("hostname", local.Hostname).
				Str("interface", localIf).
				Msg("neighbor changed, replacing linknet")

			if opts.DryRun {
				continue
			}

			if err := tx.DeleteLinknet(ctx, l.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("delete linknet %d: %w", l.ID, err)
			}
		}

		link := &models.Linknet{
			DeviceAID:     local.ID,
			DeviceAPort:   localIf,
			DeviceBID:     remote.ID,
			DeviceBPort:   remoteIf,
			RedundantLink: redundant,
		}

		if fabric {
			prefix, err := r.nextFreeSubnet(ctx, tx, pending)
			if err != nil {
				return err
			}

			a, b := Endpoints(prefix)
			link.IPv4Network = prefix.String()
			link.DeviceAIP = a.String()
			link.DeviceBIP = b.String()
			allocated = prefix
			pending[prefix.String()] = struct{}{}
		}

		if opts.DryRun {
			result = link
			return nil
		}

		created, err := tx.CreateLinknet(ctx, link)
		if err != nil {
			return fmt.Errorf("create linknet %s:%s - %s:%s: %w", local.Hostname, localIf, remote.Hostname, remoteIf, err)
		}

		result = created

		return nil
	})
	if err != nil {
		return nil, err
	}

	if allocated.IsValid() && !opts.DryRun && r.notifier != nil {
		_ = r.notifier.OnIPAllocated(ctx, local.Hostname, allocated)
	}

	return result, nil
}

func (*Resolver) linksTouching(
	ctx context.Context, tx store.Store, localID int64, localIf string, remoteID int64, remoteIf string,
) ([]*models.Linknet, error) {
	var out []*models.Linknet

	for _, end := range []struct {
		id   int64
		port string
	}{{localID, localIf}, {remoteID, remoteIf}} {
		l, err := tx.FindLinknetByPort(ctx, end.id, end.port)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("find linknet: %w", err)
		}

		if len(out) == 1 && out[0].ID == l.ID {
			continue
		}

		out = append(out, l)
	}

	return out, nil
}

func (r *Resolver) nextFreeSubnet(ctx context.Context, tx store.Store, pending map[string]struct{}) (netip.Prefix, error) {
	links, err := tx.ListLinknets(ctx, 0)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("list linknets: %w", err)
	}

	used := make(map[string]struct{}, len(links)+len(pending))
	for p := range pending {
		used[p] = struct{}{}
	}

	for _, l := range links {
		if l.IPv4Network == "" {
			continue
		}

		if p, err := netip.ParsePrefix(l.IPv4Network); err == nil {
			used[p.Masked().String()] = struct{}{}
		}
	}

	return r.allocator.Next(used)
}
