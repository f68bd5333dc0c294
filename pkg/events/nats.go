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

package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/netsync/pkg/logger"
	"github.com/carverauto/netsync/pkg/models"
	"github.com/carverauto/netsync/pkg/natsutil"
)

const (
	syncKeyPrefix     = "sync."
	progressKeyPrefix = "progress."
	casAttempts       = 5
	casRetryInterval  = 20 * time.Millisecond
)

// NatsStore keeps one JSON list of events per hostname in a JetStream KV bucket.
type NatsStore struct {
	nc  *nats.Conn
	kv  jetstream.KeyValue
	log logger.Logger
	now func() time.Time
}

var _ Store = (*NatsStore)(nil)

// NewNatsStore connects to cfg.URL and creates the bucket if needed.
func NewNatsStore(ctx context.Context, cfg *models.NATSConfig, log logger.Logger, opts ...nats.Option) (*NatsStore, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errMissingURL
	}

	if cfg.Bucket == "" {
		return nil, errMissingBucket
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

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "netsync device sync events and job progress",
		History:     1,
	})
	if err != nil {
		nc.Close()

		return nil, fmt.Errorf("failed to create KV bucket %s: %w", cfg.Bucket, err)
	}

	return &NatsStore{nc: nc, kv: kv, log: log, now: time.Now}, nil
}

func syncKey(hostname string) string { return syncKeyPrefix + hostname }

func progressKey(jobID int64) string { return progressKeyPrefix + strconv.FormatInt(jobID, 10) }

func (n *NatsStore) AddSyncEvent(ctx context.Context, hostname, cause, by string, jobID int64) error {
	event := models.SyncEvent{Cause: cause, Timestamp: n.now().UTC(), By: by, JobID: jobID}
	key := syncKey(hostname)

	op := func() (struct{}, error) {
		var (
			list     []models.SyncEvent
			revision uint64
		)

		entry, err := n.kv.Get(ctx, key)
		switch {
		case errors.Is(err, jetstream.ErrKeyNotFound):
		case err != nil:
			return struct{}{}, backoff.Permanent(fmt.Errorf("failed to get key %s: %w", key, err))
		default:
			revision = entry.Revision()
			if err := json.Unmarshal(entry.Value(), &list); err != nil {
				n.log.Warn().Err(err).Str("hostname", hostname).Msg("discarding unreadable sync events")
				list = nil
			}
		}

		data, err := json.Marshal(append(list, event))
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}

		if revision == 0 {
			_, err = n.kv.Create(ctx, key, data)
		} else {
			_, err = n.kv.Update(ctx, key, data, revision)
		}

		if errors.Is(err, jetstream.ErrKeyExists) {
			// Lost the race with another writer; reread and retry.
			return struct{}{}, err
		}

		if err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("failed to put key %s: %w", key, err))
		}

		return struct{}{}, nil
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(casRetryInterval)),
		backoff.WithMaxTries(casAttempts))

	return err
}

func (n *NatsStore) ListSyncEvents(ctx context.Context, hostname string) ([]models.SyncEvent, error) {
	entry, err := n.kv.Get(ctx, syncKey(hostname))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get sync events for %s: %w", hostname, err)
	}

	var list []models.SyncEvent
	if err := json.Unmarshal(entry.Value(), &list); err != nil {
		return nil, fmt.Errorf("decode sync events for %s: %w", hostname, err)
	}

	return list, nil
}

func (n *NatsStore) RemoveSyncEvents(ctx context.Context, hostname string) error {
	err := n.kv.Delete(ctx, syncKey(hostname))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete sync events for %s: %w", hostname, err)
	}

	return nil
}

func (n *NatsStore) PublishProgress(ctx context.Context, jobID int64, hostnames []string) error {
	data, err := json.Marshal(models.JobProgress{
		JobID:           jobID,
		FinishedDevices: hostnames,
		Timestamp:       n.now().UTC(),
	})
	if err != nil {
		return err
	}

	if _, err := n.kv.Put(ctx, progressKey(jobID), data); err != nil {
		return fmt.Errorf("failed to publish progress for job %d: %w", jobID, err)
	}

	return nil
}

func (n *NatsStore) GetProgress(ctx context.Context, jobID int64) (*models.JobProgress, error) {
	entry, err := n.kv.Get(ctx, progressKey(jobID))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrProgressNotFound, jobID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get progress for job %d: %w", jobID, err)
	}

	var p models.JobProgress
	if err := json.Unmarshal(entry.Value(), &p); err != nil {
		return nil, fmt.Errorf("decode progress for job %d: %w", jobID, err)
	}

	return &p, nil
}

func (n *NatsStore) Close() error {
	n.nc.Close()

	return nil
}
