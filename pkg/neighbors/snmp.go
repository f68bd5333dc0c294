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

package neighbors

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/gosnmp/gosnmp"

	"github.com/carverauto/netsync/pkg/logger"
	"github.com/carverauto/netsync/pkg/models"
)

const (
	// LLDP-MIB lldpLocPortEntry and lldpRemEntry.
	oidLLDPLocPortEntry = ".1.0.8802.1.1.2.1.3.7.1"
	oidLLDPRemEntry     = ".1.0.8802.1.1.2.1.4.1.1"

	locPortIDColumn   = "3"
	locPortDescColumn = "4"
	remPortIDColumn   = "7"
	remPortDescColumn = "8"
	remSysNameColumn  = "9"

	defaultSNMPPort    = 161
	defaultSNMPTimeout = 5 * time.Second
	defaultSNMPRetries = 2
	defaultCommunity   = "public"
)

// walker is the slice of *gosnmp.GoSNMP used here.
type walker interface {
	BulkWalk(rootOid string, walkFn gosnmp.WalkFunc) error
}

type dialFunc func(ctx context.Context, target string) (walker, func() error, error)

// SNMPSource reads LLDP neighbors over SNMP v1/v2c.
type SNMPSource struct {
	cfg  models.SNMPConfig
	log  logger.Logger
	dial dialFunc
}

var _ Source = (*SNMPSource)(nil)

func NewSNMPSource(cfg models.SNMPConfig, log logger.Logger) (*SNMPSource, error) {
	version, err := parseVersion(cfg.Version)
	if err != nil {
		return nil, err
	}

	s := &SNMPSource{cfg: cfg, log: logger.Wrap(log.WithComponent("lldp"))}
	s.dial = func(ctx context.Context, target string) (walker, func() error, error) {
		client := &gosnmp.GoSNMP{
			Target:    target,
			Port:      valueOr(cfg.Port, defaultSNMPPort),
			Community: valueOr(cfg.Community, defaultCommunity),
			Version:   version,
			Timeout:   valueOr(time.Duration(cfg.Timeout), defaultSNMPTimeout),
			Retries:   valueOr(cfg.Retries, defaultSNMPRetries),
			Context:   ctx,
			MaxOids:   gosnmp.MaxOids,
		}

		if err := client.Connect(); err != nil {
			return nil, nil, fmt.Errorf("snmp connect %s: %w", target, err)
		}

		return client, client.Conn.Close, nil
	}

	return s, nil
}

func parseVersion(v string) (gosnmp.SnmpVersion, error) {
	switch strings.ToLower(v) {
	case "", "2c", "v2c", "2":
		return gosnmp.Version2c, nil
	case "1", "v1":
		return gosnmp.Version1, nil
	default:
		return 0, fmt.Errorf("%w: %q", errUnsupportedVersion, v)
	}
}

func valueOr[T comparable](v, fallback T) T {
	var zero T
	if v == zero {
		return fallback
	}

	return v
}

func (s *SNMPSource) Neighbors(ctx context.Context, dev *models.Device) (Data, error) {
	if dev.ManagementIP == "" {
		return nil, fmt.Errorf("%w: %s", errMissingManagementIP, dev.Hostname)
	}

	client, closeFn, err := s.dial(ctx, dev.ManagementIP)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := closeFn(); err != nil {
			s.log.Debug().Err(err).Str("hostname", dev.Hostname).Msg("failed to close snmp connection")
		}
	}()

	localPorts, err := walkLocalPorts(client)
	if err != nil {
		return nil, err
	}

	data, err := walkRemotes(client, localPorts)
	if err != nil {
		return nil, err
	}

	s.log.Debug().Str("hostname", dev.Hostname).Int("interfaces", len(data)).Msg("lldp neighbors collected")

	return data, nil
}

type portNames struct {
	id   string
	desc string
}

// name prefers a printable port id and falls back to the description.
func (p portNames) name() string {
	if p.id != "" && printable(p.id) {
		return p.id
	}

	return p.desc
}

func walkLocalPorts(client walker) (map[string]*portNames, error) {
	ports := make(map[string]*portNames)

	err := client.BulkWalk(oidLLDPLocPortEntry, func(pdu gosnmp.SnmpPDU) error {
		column, index, ok := splitOID(pdu.Name, oidLLDPLocPortEntry, 1)
		if !ok || pdu.Type != gosnmp.OctetString {
			return nil
		}

		p := ports[index[0]]
		if p == nil {
			p = &portNames{}
			ports[index[0]] = p
		}

		switch column {
		case locPortIDColumn:
			p.id = octets(pdu)
		case locPortDescColumn:
			p.desc = octets(pdu)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk lldpLocPortTable: %w", err)
	}

	return ports, nil
}

type remoteRow struct {
	localPort string
	sysName   string
	port      portNames
}

func walkRemotes(client walker, localPorts map[string]*portNames) (Data, error) {
	rows := make(map[string]*remoteRow)

	var order []string

	err := client.BulkWalk(oidLLDPRemEntry, func(pdu gosnmp.SnmpPDU) error {
		// Index is timeMark.localPortNum.remIndex.
		column, index, ok := splitOID(pdu.Name, oidLLDPRemEntry, 3)
		if !ok || pdu.Type != gosnmp.OctetString {
			return nil
		}

		key := strings.Join(index, ".")

		row := rows[key]
		if row == nil {
			row = &remoteRow{localPort: index[1]}
			rows[key] = row
			order = append(order, key)
		}

		switch column {
		case remSysNameColumn:
			row.sysName = octets(pdu)
		case remPortIDColumn:
			row.port.id = octets(pdu)
		case remPortDescColumn:
			row.port.desc = octets(pdu)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk lldpRemTable: %w", err)
	}

	data := make(Data)

	for _, key := range order {
		row := rows[key]
		if row.sysName == "" {
			continue
		}

		local := row.localPort
		if p, ok := localPorts[row.localPort]; ok && p.name() != "" {
			local = p.name()
		}

		data[local] = append(data[local], Neighbor{
			Hostname: shortHostname(row.sysName),
			Port:     row.port.name(),
		})
	}

	return data, nil
}

// splitOID splits name below a table entry into its column and index parts.
func splitOID(name, entry string, indexLen int) (string, []string, bool) {
	rest, found := strings.CutPrefix(name, entry+".")
	if !found {
		return "", nil, false
	}

	parts := strings.Split(rest, ".")
	if len(parts) != 1+indexLen {
		return "", nil, false
	}

	return parts[0], parts[1:], true
}

func octets(pdu gosnmp.SnmpPDU) string {
	b, ok := pdu.Value.([]byte)
	if !ok {
		return ""
	}

	return strings.TrimRight(string(b), "\x00")
}

func printable(s string) bool {
	for _, r := range s {
		if !unicode.IsPrint(r) {
			return false
		}
	}

	return true
}

// shortHostname drops the domain part of an LLDP system name.
func shortHostname(sysName string) string {
	host, _, _ := strings.Cut(strings.TrimSpace(sysName), ".")

	return host
}
