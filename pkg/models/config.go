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

package models

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"time"

	"github.com/carverauto/netsync/pkg/logger"
)

// Duration is a time.Duration that unmarshals from "30s" style strings or nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: %w", errInvalidDuration, err)
		}

		*d = Duration(dur)

		return nil
	default:
		return errInvalidDuration
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

const (
	StoreDriverMemory   = "memory"
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"

	defaultListenAddr             = ":5000"
	defaultWorkers                = 4
	defaultQueueSize              = 64
	defaultCommitConfirmedMode    = 1
	defaultCommitConfirmedTimeout = 300 * time.Second
	defaultLockRetryAttempts      = 5
	defaultLockRetryInterval      = 2 * time.Second
	defaultAutoPushMaxScore       = 10
	defaultPushConcurrency        = 50
	defaultInfraLinknet           = "10.198.0.0/16"
	defaultNATSBucket             = "netsync-sync-events"
	defaultNATSStream             = "netsync-events"
)

// Config is the netsync service configuration.
type Config struct {
	ListenAddr string `json:"listen_addr"`
	// APIKey, when set, is required in the X-API-Key header of every API request.
	APIKey                 string   `json:"api_key,omitempty"`
	Workers                int      `json:"workers"`
	QueueSize              int      `json:"queue_size"`
	CommitConfirmedMode    int      `json:"commit_confirmed_mode"`
	CommitConfirmedTimeout Duration `json:"commit_confirmed_timeout"`
	LockRetryAttempts      int      `json:"lock_retry_attempts"`
	LockRetryInterval      Duration `json:"lock_retry_interval"`
	AutoPushMaxScore       float64  `json:"autopush_max_score"`
	PushConcurrency        int      `json:"push_concurrency"`
	// InfraLinknet is the pool /31 fabric links are carved from.
	InfraLinknet string         `json:"infra_linknet"`
	SettingsFile string         `json:"settings_file"`
	TemplatesDir string         `json:"templates_dir"`
	Store        StoreConfig    `json:"store"`
	NATS         *NATSConfig    `json:"nats,omitempty"`
	SNMP         SNMPConfig     `json:"snmp"`
	SSH          SSHConfig      `json:"ssh"`
	Logging      *logger.Config `json:"logging,omitempty"`
}

type StoreConfig struct {
	Driver     string          `json:"driver"`
	Postgres   *PostgresConfig `json:"postgres,omitempty"`
	SQLitePath string          `json:"sqlite_path,omitempty"`
}

type PostgresConfig struct {
	Host               string            `json:"host"`
	Port               int               `json:"port"`
	Database           string            `json:"database"`
	Username           string            `json:"username"`
	Password           string            `json:"password"`
	SSLMode            string            `json:"ssl_mode"`
	ApplicationName    string            `json:"application_name"`
	MaxConnections     int32             `json:"max_connections"`
	MinConnections     int32             `json:"min_connections"`
	MaxConnLifetime    Duration          `json:"max_conn_lifetime"`
	HealthCheckPeriod  Duration          `json:"health_check_period"`
	StatementTimeout   Duration          `json:"statement_timeout"`
	ExtraRuntimeParams map[string]string `json:"extra_runtime_params,omitempty"`
}

type NATSConfig struct {
	URL          string         `json:"url"`
	Bucket       string         `json:"bucket"`
	Stream       string         `json:"stream"`
	CredsFile    string         `json:"creds_file,omitempty"`
	NKeySeedFile string         `json:"nkey_seed_file,omitempty"`
	TLS          *NATSTLSConfig `json:"tls,omitempty"`
}

// NATSTLSConfig enables mTLS to the NATS server.
type NATSTLSConfig struct {
	CertFile   string `json:"cert_file"`
	KeyFile    string `json:"key_file"`
	CAFile     string `json:"ca_file"`
	ServerName string `json:"server_name,omitempty"`
}

type SNMPConfig struct {
	Community string   `json:"community"`
	Version   string   `json:"version"`
	Port      uint16   `json:"port"`
	Timeout   Duration `json:"timeout"`
	Retries   int      `json:"retries"`
}

type SSHConfig struct {
	Username       string `json:"username"`
	Password       string `json:"password,omitempty"`
	KeyFile        string `json:"key_file,omitempty"`
	KnownHostsFile string `json:"known_hosts_file,omitempty"`
	// InsecureSkipHostKeyCheck accepts any host key when no known_hosts file is set. Lab use only.
	InsecureSkipHostKeyCheck bool `json:"insecure_skip_host_key_check,omitempty"`
	Port                     int  `json:"port"`
	// Timeout bounds dialing and each command round trip.
	Timeout   Duration                       `json:"timeout"`
	Platforms map[string]SSHPlatformCommands `json:"platforms,omitempty"`
}

// SSHPlatformCommands are text/template command strings executed by the CLI transport.
type SSHPlatformCommands struct {
	ShowRunning   string `json:"show_running"`
	LoadCandidate string `json:"load_candidate"`
	ShowDiff      string `json:"show_diff"`
	Commit        string `json:"commit"`
	CommitTimer   string `json:"commit_timer"`
	Confirm       string `json:"confirm"`
	Discard       string `json:"discard"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}

	if c.Workers == 0 {
		c.Workers = defaultWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}

	if c.CommitConfirmedTimeout == 0 {
		c.CommitConfirmedTimeout = Duration(defaultCommitConfirmedTimeout)
	}

	if c.LockRetryAttempts == 0 {
		c.LockRetryAttempts = defaultLockRetryAttempts
	}

	if c.LockRetryInterval == 0 {
		c.LockRetryInterval = Duration(defaultLockRetryInterval)
	}

	if c.AutoPushMaxScore == 0 {
		c.AutoPushMaxScore = defaultAutoPushMaxScore
	}

	if c.PushConcurrency == 0 {
		c.PushConcurrency = defaultPushConcurrency
	}

	if c.InfraLinknet == "" {
		c.InfraLinknet = defaultInfraLinknet
	}

	if c.Store.Driver == "" {
		c.Store.Driver = StoreDriverMemory
	}

	if c.NATS != nil {
		if c.NATS.Bucket == "" {
			c.NATS.Bucket = defaultNATSBucket
		}

		if c.NATS.Stream == "" {
			c.NATS.Stream = defaultNATSStream
		}
	}
}

// DefaultConfig returns a configuration with every default applied and mode 1 commits.
func DefaultConfig() *Config {
	c := &Config{CommitConfirmedMode: defaultCommitConfirmedMode}
	c.ApplyDefaults()

	return c
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	c.ApplyDefaults()

	if c.ListenAddr == "" {
		return errMissingListenAddr
	}

	if c.Workers < 0 {
		return errInvalidWorkers
	}

	if c.CommitConfirmedMode < 0 || c.CommitConfirmedMode > 2 {
		return fmt.Errorf("%w: got %d", errInvalidCommitMode, c.CommitConfirmedMode)
	}

	prefix, err := netip.ParsePrefix(c.InfraLinknet)
	if err != nil || !prefix.Addr().Is4() || prefix.Bits() > 31 {
		return fmt.Errorf("%w: %q", errInvalidInfraLinknet, c.InfraLinknet)
	}

	switch c.Store.Driver {
	case StoreDriverMemory:
	case StoreDriverPostgres:
		if c.Store.Postgres == nil {
			return errMissingPostgres
		}
	case StoreDriverSQLite:
		if c.Store.SQLitePath == "" {
			return errMissingSQLitePath
		}
	default:
		return fmt.Errorf("%w: %q", errInvalidStoreDriver, c.Store.Driver)
	}

	return nil
}
