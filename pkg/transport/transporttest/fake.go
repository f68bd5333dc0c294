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

// Package transporttest provides an in-memory fleet of commit-confirm devices.
package transporttest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/carverauto/netsync/pkg/models"
	"github.com/carverauto/netsync/pkg/transport"
)

// Op names a Transport call for failure injection and call logs.
type Op string

const (
	OpGetRunning Op = "get_running"
	OpLoad       Op = "load"
	OpCommit     Op = "commit"
	OpConfirm    Op = "confirm"
	OpDiscard    Op = "discard"
)

// FakeDevice emulates a device with a candidate datastore and an on-device revert timer.
type FakeDevice struct {
	mu        sync.Mutex
	running   string
	candidate *string
	previous  string
	pending   bool
	timer     *time.Timer
	failures  map[Op]error
	calls     []Op
	reverts   int
}

func (d *FakeDevice) Running() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.running
}

// SetRunning changes the configuration behind the system's back.
func (d *FakeDevice) SetRunning(config string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.running = config
}

// Pending reports whether a timed commit awaits confirmation.
func (d *FakeDevice) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.pending
}

// Reverts counts rollbacks triggered by an expired commit timer.
func (d *FakeDevice) Reverts() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.reverts
}

// FailOn makes every later op call return err. A nil err clears the failure.
func (d *FakeDevice) FailOn(op Op, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err == nil {
		delete(d.failures, op)
		return
	}

	d.failures[op] = err
}

func (d *FakeDevice) Calls() []Op {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]Op(nil), d.calls...)
}

// CallCount counts calls of op.
func (d *FakeDevice) CallCount(op Op) int {
	n := 0

	for _, c := range d.Calls() {
		if c == op {
			n++
		}
	}

	return n
}

func (d *FakeDevice) enter(op Op) error {
	d.calls = append(d.calls, op)

	return d.failures[op]
}

func (d *FakeDevice) revert() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.pending {
		return
	}

	d.running = d.previous
	d.pending = false
	d.timer = nil
	d.reverts++
}

// Fleet is a transport.Transport backed by FakeDevices keyed by hostname.
type Fleet struct {
	mu      sync.Mutex
	devices map[string]*FakeDevice
}

var _ transport.Transport = (*Fleet)(nil)

func NewFleet() *Fleet {
	return &Fleet{devices: make(map[string]*FakeDevice)}
}

// Add registers hostname running config and returns its device.
func (f *Fleet) Add(hostname, config string) *FakeDevice {
	f.mu.Lock()
	defer f.mu.Unlock()

	d := &FakeDevice{running: config, failures: make(map[Op]error)}
	f.devices[hostname] = d

	return d
}

// Device returns the fake behind hostname, or nil.
func (f *Fleet) Device(hostname string) *FakeDevice {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.devices[hostname]
}

func (f *Fleet) lookup(dev *models.Device) (*FakeDevice, error) {
	d := f.Device(dev.Hostname)
	if d == nil {
		return nil, fmt.Errorf("%w: %s", transport.ErrUnreachable, dev.Hostname)
	}

	return d, nil
}

func (f *Fleet) GetRunningConfig(_ context.Context, dev *models.Device) (string, error) {
	d, err := f.lookup(dev)
	if err != nil {
		return "", err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.enter(OpGetRunning); err != nil {
		return "", err
	}

	return d.running, nil
}

func (f *Fleet) LoadCandidate(_ context.Context, dev *models.Device, config string, replace bool) (string, error) {
	d, err := f.lookup(dev)
	if err != nil {
		return "", err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.enter(OpLoad); err != nil {
		return "", err
	}

	candidate := config
	if !replace {
		candidate = merge(d.running, config)
	}

	d.candidate = &candidate

	return transport.LineDiff(d.running, candidate), nil
}

func (f *Fleet) Commit(_ context.Context, dev *models.Device, revertIn time.Duration, _ string) error {
	d, err := f.lookup(dev)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.enter(OpCommit); err != nil {
		return err
	}

	if d.candidate == nil {
		return transport.ErrNoCandidate
	}

	d.previous = d.running
	d.running = *d.candidate
	d.candidate = nil

	if revertIn > 0 {
		d.pending = true
		d.timer = time.AfterFunc(revertIn, d.revert)
	}

	return nil
}

func (f *Fleet) ConfirmCommit(_ context.Context, dev *models.Device) error {
	d, err := f.lookup(dev)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.enter(OpConfirm); err != nil {
		return err
	}

	if !d.pending {
		return transport.ErrNothingToConfirm
	}

	d.timer.Stop()
	d.timer = nil
	d.pending = false

	return nil
}

func (f *Fleet) Discard(_ context.Context, dev *models.Device) error {
	d, err := f.lookup(dev)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.enter(OpDiscard); err != nil {
		return err
	}

	d.candidate = nil

	return nil
}

// merge appends lines of config missing from running.
func merge(running, config string) string {
	lines := splitLines(running)

	have := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		have[l] = struct{}{}
	}

	for _, l := range splitLines(config) {
		if _, ok := have[l]; ok || l == "" {
			continue
		}

		lines = append(lines, l)
	}

	if len(lines) == 0 {
		return ""
	}

	return strings.Join(lines, "\n") + "\n"
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}

	return strings.Split(s, "\n")
}
