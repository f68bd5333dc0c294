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
	"fmt"
	"net/netip"
)

// SubnetAllocator walks the /31 subnets of a pool in address order.
type SubnetAllocator struct {
	pool netip.Prefix
}

func NewSubnetAllocator(pool string) (*SubnetAllocator, error) {
	p, err := netip.ParsePrefix(pool)
	if err != nil || !p.Addr().Is4() || p.Bits() > 31 {
		return nil, fmt.Errorf("%w: %q", errInvalidPool, pool)
	}

	return &SubnetAllocator{pool: p.Masked()}, nil
}

func (a *SubnetAllocator) Pool() netip.Prefix { return a.pool }

// Next returns the first /31 in the pool whose CIDR string is not in used.
func (a *SubnetAllocator) Next(used map[string]struct{}) (netip.Prefix, error) {
	for addr := a.pool.Addr(); a.pool.Contains(addr); {
		candidate := netip.PrefixFrom(addr, 31)
		if _, taken := used[candidate.String()]; !taken {
			return candidate, nil
		}

		second := addr.Next()

		addr = second.Next()
		if !addr.IsValid() {
			break
		}
	}

	return netip.Prefix{}, fmt.Errorf("%w: %s", ErrNoFreeLinknet, a.pool)
}

// Endpoints returns the two addresses of a /31.
func Endpoints(p netip.Prefix) (netip.Addr, netip.Addr) {
	first := p.Masked().Addr()

	return first, first.Next()
}
