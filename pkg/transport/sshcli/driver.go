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

// Package sshcli is a transport driver that runs per-platform CLI command templates
// over SSH. Each call opens its own connection; the commit session name is the only
// state kept between calls.
package sshcli

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carverauto/netsync/pkg/logger"
	"github.com/carverauto/netsync/pkg/models"
	"github.com/carverauto/netsync/pkg/transport"
)

// Driver implements transport.Transport for one platform.
type Driver struct {
	platform string
	cmds     *commandSet
	run      runner
	log      logger.Logger

	mu       sync.Mutex
	sessions map[string]string
}

var _ transport.Transport = (*Driver)(nil)

// New builds a driver for platform. Commands come from cfg.Platforms, falling back to DefaultCommands.
func New(cfg *models.SSHConfig, platform string, log logger.Logger) (*Driver, error) {
	raw, ok := cfg.Platforms[platform]
	if !ok {
		raw, ok = DefaultCommands[platform]
	}

	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownPlatform, platform)
	}

	r, err := newSSHRunner(cfg)
	if err != nil {
		return nil, err
	}

	return newDriver(platform, raw, r, log)
}

// Platforms lists every platform New can build a driver for.
func Platforms(cfg *models.SSHConfig) []string {
	seen := make(map[string]struct{})

	var out []string

	for _, m := range []map[string]models.SSHPlatformCommands{cfg.Platforms, DefaultCommands} {
		for p := range m {
			if _, dup := seen[p]; !dup {
				seen[p] = struct{}{}
				out = append(out, p)
			}
		}
	}

	return out
}

func newDriver(platform string, raw models.SSHPlatformCommands, r runner, log logger.Logger) (*Driver, error) {
	cmds, err := compileCommands(platform, raw)
	if err != nil {
		return nil, err
	}

	return &Driver{
		platform: platform,
		cmds:     cmds,
		run:      r,
		log:      logger.Wrap(log.WithComponent("sshcli").With().Str("platform", platform).Logger()),
		sessions: make(map[string]string),
	}, nil
}

func (d *Driver) session(hostname string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.sessions[hostname]

	return s, ok
}

func (d *Driver) setSession(hostname, session string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if session == "" {
		delete(d.sessions, hostname)
		return
	}

	d.sessions[hostname] = session
}

func (d *Driver) GetRunningConfig(ctx context.Context, dev *models.Device) (string, error) {
	cmd, err := execute(d.cmds.showRunning, newCommandData(dev, ""))
	if err != nil {
		return "", err
	}

	return d.run.Run(ctx, dev, cmd, "")
}

func (d *Driver) LoadCandidate(ctx context.Context, dev *models.Device, config string, replace bool) (string, error) {
	session := "netsync-" + uuid.NewString()
	data := newCommandData(dev, session)
	data.Replace = replace

	cmd, err := execute(d.cmds.loadCandidate, data)
	if err != nil {
		return "", err
	}

	var running string

	if d.cmds.showDiff == nil {
		running, err = d.GetRunningConfig(ctx, dev)
		if err != nil {
			return "", err
		}
	}

	if _, err := d.run.Run(ctx, dev, cmd, config); err != nil {
		return "", err
	}

	d.setSession(dev.Hostname, session)
	d.log.Debug().Str("hostname", dev.Hostname).Str("session", session).Msg("candidate loaded")

	if d.cmds.showDiff == nil {
		return transport.LineDiff(running, config), nil
	}

	cmd, err = execute(d.cmds.showDiff, data)
	if err != nil {
		return "", err
	}

	return d.run.Run(ctx, dev, cmd, "")
}

func (d *Driver) Commit(ctx context.Context, dev *models.Device, revertIn time.Duration, message string) error {
	session, ok := d.session(dev.Hostname)
	if !ok {
		return fmt.Errorf("%w: %s", transport.ErrNoCandidate, dev.Hostname)
	}

	data := newCommandData(dev, session)
	data.Message = message

	tmpl := d.cmds.commit
	if revertIn > 0 && d.cmds.commitTimer != nil {
		tmpl = d.cmds.commitTimer
		data = data.withRevert(revertIn)
	}

	cmd, err := execute(tmpl, data)
	if err != nil {
		return err
	}

	if _, err := d.run.Run(ctx, dev, cmd, ""); err != nil {
		return err
	}

	if revertIn <= 0 || d.cmds.commitTimer == nil {
		d.setSession(dev.Hostname, "")
	}

	d.log.Info().Str("hostname", dev.Hostname).Dur("revert_in", revertIn).Msg("configuration committed")

	return nil
}

func (d *Driver) ConfirmCommit(ctx context.Context, dev *models.Device) error {
	session, ok := d.session(dev.Hostname)
	if !ok || d.cmds.confirm == nil {
		return fmt.Errorf("%w: %s", transport.ErrNothingToConfirm, dev.Hostname)
	}

	cmd, err := execute(d.cmds.confirm, newCommandData(dev, session))
	if err != nil {
		return err
	}

	if _, err := d.run.Run(ctx, dev, cmd, ""); err != nil {
		return err
	}

	d.setSession(dev.Hostname, "")

	return nil
}

func (d *Driver) Discard(ctx context.Context, dev *models.Device) error {
	session, ok := d.session(dev.Hostname)
	if !ok {
		return nil
	}

	defer d.setSession(dev.Hostname, "")

	if d.cmds.discard == nil {
		return nil
	}

	cmd, err := execute(d.cmds.discard, newCommandData(dev, session))
	if err != nil {
		return err
	}

	_, err = d.run.Run(ctx, dev, cmd, "")

	return err
}
