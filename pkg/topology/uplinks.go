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

package topology

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/carverauto/netsync/pkg/models"
	"github.com/carverauto/netsync/pkg/store"
)

// UplinkOptions tune VerifyUplinks.
type UplinkOptions struct {
	// ExpectedNeighbors, when set, must equal the verified neighbor set exactly and
	// replaces the uplink redundancy check.
	ExpectedNeighbors []string
	// MLAGPeer is the hostname of the device's MLAG partner; links to it are not uplinks.
	MLAGPeer string
}

// VerifyUplinks checks the links of a device being provisioned and returns its neighbor
// hostnames. An access switch must reach a distribution pair sharing a management domain
// over exactly 2 redundant or exactly 1 non-redundant uplink.
func VerifyUplinks(
	ctx context.Context, s store.Store, dev *models.Device, role models.DeviceType, links []models.LinkRecord, opts UplinkOptions,
) ([]string, error) {
	var (
		verified     []string
		distIDs      []int64
		redundant    int
		nonRedundant int
	)

	for _, link := range links {
		if link.DeviceAHostname == link.DeviceBHostname {
			return nil, &InitVerificationError{Hostname: dev.Hostname, Reason: "device is connected to itself on " + link.DeviceAPort}
		}

		neighbor, ok := link.Peer(dev.Hostname)
		if !ok {
			return nil, fmt.Errorf("%w: %s not in %s-%s", errNotOnLink, dev.Hostname, link.DeviceAHostname, link.DeviceBHostname)
		}

		if opts.MLAGPeer != "" && neighbor == opts.MLAGPeer {
			continue
		}

		nd, err := s.GetDevice(ctx, neighbor)
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NeighborError{Hostname: dev.Hostname, Reason: fmt.Sprintf("neighbor device %s not found in database", neighbor)}
		}

		if err != nil {
			return nil, fmt.Errorf("load neighbor %s: %w", neighbor, err)
		}

		if role == models.DeviceTypeAccess && nd.DeviceType == models.DeviceTypeDist {
			if !slices.Contains(distIDs, nd.ID) {
				distIDs = append(distIDs, nd.ID)
			}

			if link.RedundantLink {
				redundant++
			} else {
				nonRedundant++
			}
		}

		verified = append(verified, neighbor)
	}

	if len(opts.ExpectedNeighbors) > 0 {
		want := slices.Clone(opts.ExpectedNeighbors)
		got := slices.Clone(verified)

		sort.Strings(want)
		sort.Strings(got)

		if !slices.Equal(want, got) {
			return nil, &InitVerificationError{
				Hostname: dev.Hostname,
				Reason:   fmt.Sprintf("expected neighbors [%s], found [%s]", strings.Join(want, ", "), strings.Join(got, ", ")),
			}
		}

		return verified, nil
	}

	if role != models.DeviceTypeAccess {
		return verified, nil
	}

	switch {
	case redundant == 0 && nonRedundant == 0:
		return nil, &InitVerificationError{Hostname: dev.Hostname, Reason: "no uplinks to a distribution device"}
	case redundant == 2 && nonRedundant == 0, redundant == 0 && nonRedundant == 1:
	default:
		return nil, &InitVerificationError{
			Hostname: dev.Hostname,
			Reason:   fmt.Sprintf("incompatible uplink redundancy: %d redundant, %d non-redundant", redundant, nonRedundant),
		}
	}

	if _, err := s.FindMgmtDomain(ctx, distIDs); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &InitVerificationError{Hostname: dev.Hostname, Reason: "uplink devices share no management domain"}
		}

		return nil, fmt.Errorf("find mgmtdomain: %w", err)
	}

	return verified, nil
}
