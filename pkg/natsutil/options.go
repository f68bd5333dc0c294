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

// Package natsutil builds NATS connection options shared by the event store and the notifier.
package natsutil

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nkeys"

	"github.com/carverauto/netsync/pkg/models"
)

const clientName = "netsync"

var (
	// ErrCAParsingFailed is returned when CA certificate cannot be parsed
	ErrCAParsingFailed = errors.New("failed to parse CA certificate")
	// ErrConflictingAuth is returned when both a creds file and an nkey seed are configured.
	ErrConflictingAuth = errors.New("creds_file and nkey_seed_file are mutually exclusive")
	errIncompleteTLS   = errors.New("tls needs cert_file, key_file and ca_file")
)

// ConnectOptions translates cfg into nats.Options. extra is appended last.
func ConnectOptions(cfg *models.NATSConfig, extra ...nats.Option) ([]nats.Option, error) {
	opts := []nats.Option{nats.Name(clientName)}

	if cfg.CredsFile != "" && cfg.NKeySeedFile != "" {
		return nil, ErrConflictingAuth
	}

	if cfg.CredsFile != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFile))
	}

	if cfg.NKeySeedFile != "" {
		opt, err := nkeyOption(cfg.NKeySeedFile)
		if err != nil {
			return nil, err
		}

		opts = append(opts, opt)
	}

	if cfg.TLS != nil {
		tc, err := TLSConfig(cfg.TLS)
		if err != nil {
			return nil, err
		}

		opts = append(opts, nats.Secure(tc))
	}

	return append(opts, extra...), nil
}

func nkeyOption(path string) (nats.Option, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read nkey seed: %w", err)
	}

	kp, err := nkeys.FromSeed([]byte(strings.TrimSpace(string(raw))))
	if err != nil {
		return nil, fmt.Errorf("invalid nkey seed: %w", err)
	}

	pub, err := kp.PublicKey()
	if err != nil {
		return nil, err
	}

	return nats.Nkey(pub, kp.Sign), nil
}

// TLSConfig builds a tls.Config for connecting to NATS using mTLS.
func TLSConfig(cfg *models.NATSTLSConfig) (*tls.Config, error) {
	if cfg.CertFile == "" || cfg.KeyFile == "" || cfg.CAFile == "" {
		return nil, errIncompleteTLS
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	caCert, err := os.ReadFile(cfg.CAFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caCert) {
		return nil, ErrCAParsingFailed
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caPool,
		ServerName:   cfg.ServerName,
		MinVersion:   tls.VersionTLS13,
	}, nil
}
