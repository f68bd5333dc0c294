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

	"github.com/carverauto/netsync/pkg/models"
	"github.com/carverauto/netsync/pkg/settings"
	"github.com/carverauto/netsync/pkg/store"
)

// PeerEnd is one side of a cable as seen by VerifyPeerIfType.
type PeerEnd struct {
	Device   *models.Device
	Role     models.DeviceType
	Settings *settings.DeviceSettings
	IfName   string
}

func (p PeerEnd) ifErr(reason string, args ...any) error {
	return &InterfaceError{Hostname: p.Device.Hostname, Interface: p.IfName, Reason: fmt.Sprintf(reason, args...)}
}

// VerifyPeerIfType checks that the interfaces on both ends are classified in a way that
// fits the roles of the two devices, and reports whether the link must be redundant.
// Violations are *InterfaceError.
func VerifyPeerIfType(ctx context.Context, ifaces store.InterfaceStore, local, remote PeerEnd) (bool, error) {
	// Fabric devices must declare every cabled port.
	for _, end := range []PeerEnd{remote, local} {
		if end.Role.IsFabric() && !end.Settings.HasInterface(end.IfName) {
			return false, end.ifErr("not declared in %s settings", end.Role)
		}
	}

	if local.Role.IsFabric() && remote.Role.IsFabric() {
		for _, end := range []PeerEnd{local, remote} {
			if !end.Settings.HasInterface(end.IfName, settings.IfClassFabric) {
				return false, end.ifErr("link between %s and %s must use ifclass %s",
					local.Device.Hostname, remote.Device.Hostname, settings.IfClassFabric)
			}
		}
	}

	switch {
	case local.Role == models.DeviceTypeAccess && remote.Role == models.DeviceTypeDist:
		ifc, _ := remote.Settings.Interface(remote.IfName)
		if ifc == nil || ifc.IfClass != settings.IfClassDownlink {
			return false, remote.ifErr("access device %s is connected but the port is not a %s",
				local.Device.Hostname, settings.IfClassDownlink)
		}

		if ifc.RedundancyDisabled() {
			return false, nil
		}
	case local.Role == models.DeviceTypeAccess && remote.Role == models.DeviceTypeAccess:
		stored, err := ifaces.GetInterface(ctx, remote.Device.ID, remote.IfName)
		if errors.Is(err, store.ErrNotFound) {
			return false, remote.ifErr("peer interface not found in database")
		}

		if err != nil {
			return false, fmt.Errorf("load interface %s on %s: %w", remote.IfName, remote.Device.Hostname, err)
		}

		if stored.ConfigType != models.IfConfigMLAGPeer && stored.ConfigType != models.IfConfigAccessDownlink {
			return false, remote.ifErr("configured as %s, expected %s or %s",
				stored.ConfigType, models.IfConfigMLAGPeer, models.IfConfigAccessDownlink)
		}

		if stored.RedundantLinkDisabled() {
			return false, nil
		}
	}

	return true, nil
}
