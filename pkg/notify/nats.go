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

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/netsync/pkg/logger"
	"github.com/carverauto/netsync/pkg/models"
	"github.com/carverauto/netsync/pkg/natsutil"
)

const (
	eventSource = "netsync/jobs"

	TypeIPAllocated   = "com.carverauto.netsync.ip.allocated"
	TypeDeviceManaged = "com.carverauto.netsync.device.managed"

	SubjectIPAllocated   = "netsync.events.ip.allocated"
	SubjectDeviceManaged = "netsync.events.device.managed"
)

var errMissingStream = errors.New("nats stream is required")

// IPAllocatedData is the payload of an ip.allocated event.
type IPAllocatedData struct {
	Hostname  string    `json:"hostname"`
	Network   string    `json:"network"`
	Timestamp time.Time `json:"timestamp"`
}

// DeviceManagedData is the payload of a device.managed event.
type DeviceManagedData struct {
	Hostname   string    `json:"hostname"`
	DeviceType string    `json:"device_type"`
	DeviceID   int64     `json:"device_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// NatsNotifier publishes CloudEvents to a JetStream stream.
type NatsNotifier struct {
	js  jetstream.JetStream
	nc  *nats.Conn
	log logger.Logger
}

var _ Notifier = (*NatsNotifier)(nil)

// NewNatsNotifier publishes through an existing JetStream context.
func NewNatsNotifier(js jetstream.JetStream, log logger.Logger) *NatsNotifier {
	return &NatsNotifier{js: js, log: log}
}

// ConnectNatsNotifier dials cfg.URL and makes sure the stream exists.
func ConnectNatsNotifier(ctx context.Context, cfg *models.NATSConfig, log logger.Logger, opts ...nats.Option) (*NatsNotifier, error) {
	if cfg == nil || cfg.Stream == "" {
		return nil, errMissingStream
	}

	opts, err := natsutil.ConnectOptions(cfg, opts...)
	if err != nil {
		return nil, err
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.Stream,
		Subjects: []string{"netsync.events.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create or get stream %s: %w", cfg.Stream, err)
	}

	n := NewNatsNotifier(js, log)
	n.nc = nc

	return n, nil
}

func (n *NatsNotifier) publish(ctx context.Context, eventType, subject string, ts time.Time, data interface{}) error {
	event := models.CloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.New().String(),
		Source:          eventSource,
		Type:            eventType,
		DataContentType: "application/json",
		Subject:         subject,
		Time:            &ts,
		Data:            data,
	}

	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	ack, err := n.js.Publish(ctx, subject, eventBytes)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}

	n.log.Debug().
		Str("event_id", event.ID).
		Str("subject", subject).
		Uint64("seq", ack.Sequence).
		Msg("published event")

	return nil
}

func (n *NatsNotifier) OnIPAllocated(ctx context.Context, hostname string, network netip.Prefix) error {
	now := time.Now().UTC()

	return n.publish(ctx, TypeIPAllocated, SubjectIPAllocated, now, IPAllocatedData{
		Hostname:  hostname,
		Network:   network.String(),
		Timestamp: now,
	})
}

func (n *NatsNotifier) OnDeviceManaged(ctx context.Context, dev *models.Device) error {
	now := time.Now().UTC()

	return n.publish(ctx, TypeDeviceManaged, SubjectDeviceManaged, now, DeviceManagedData{
		Hostname:   dev.Hostname,
		DeviceType: string(dev.DeviceType),
		DeviceID:   dev.ID,
		Timestamp:  now,
	})
}

// Close drops the connection when the notifier owns one.
func (n *NatsNotifier) Close() error {
	if n.nc != nil {
		n.nc.Close()
	}

	return nil
}
