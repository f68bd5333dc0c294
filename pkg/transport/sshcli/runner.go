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

package sshcli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/carverauto/netsync/pkg/models"
)

const (
	defaultPort    = 22
	defaultTimeout = 30 * time.Second
)

// runner executes one command on a device and returns its combined output.
type runner interface {
	Run(ctx context.Context, dev *models.Device, command, stdin string) (string, error)
}

type sshRunner struct {
	config  *ssh.ClientConfig
	port    int
	timeout time.Duration
}

func newSSHRunner(cfg *models.SSHConfig) (*sshRunner, error) {
	var auth []ssh.AuthMethod

	if cfg.KeyFile != "" {
		pemBytes, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}

		signer, err := ssh.ParsePrivateKey(pemBytes)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key: %w", err)
		}

		auth = append(auth, ssh.PublicKeys(signer))
	}

	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}

	if len(auth) == 0 {
		return nil, errNoAuth
	}

	var hostKey ssh.HostKeyCallback

	switch {
	case cfg.KnownHostsFile != "":
		cb, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}

		hostKey = cb
	case cfg.InsecureSkipHostKeyCheck:
		hostKey = ssh.InsecureIgnoreHostKey() //nolint:gosec // explicitly requested in config
	default:
		return nil, errNoHostKeyPolicy
	}

	timeout := time.Duration(cfg.Timeout)
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}

	return &sshRunner{
		config: &ssh.ClientConfig{
			User:            cfg.Username,
			Auth:            auth,
			HostKeyCallback: hostKey,
			Timeout:         timeout,
		},
		port:    port,
		timeout: timeout,
	}, nil
}

func (r *sshRunner) address(dev *models.Device) string {
	host := dev.ManagementIP
	if host == "" {
		host = dev.Hostname
	}

	return net.JoinHostPort(host, strconv.Itoa(r.port))
}

type runResult struct {
	out string
	err error
}

func (r *sshRunner) Run(ctx context.Context, dev *models.Device, command, stdin string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	addr := r.address(dev)
	dialer := net.Dialer{Timeout: r.timeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", addr, err)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, r.config)
	if err != nil {
		_ = conn.Close()
		return "", fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}

	client := ssh.NewClient(c, chans, reqs)
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("open ssh session: %w", err)
	}
	defer func() { _ = session.Close() }()

	if stdin != "" {
		session.Stdin = strings.NewReader(stdin)
	}

	done := make(chan runResult, 1)

	go func() {
		out, err := session.CombinedOutput(command)
		done <- runResult{out: string(out), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		var exitErr *ssh.ExitError
		if errors.As(res.err, &exitErr) {
			return res.out, fmt.Errorf("%w: %q exited %d: %s", errCommandExitError, command, exitErr.ExitStatus(),
				strings.TrimSpace(res.out))
		}

		if res.err != nil {
			return res.out, fmt.Errorf("run %q: %w", command, res.err)
		}

		return res.out, nil
	}
}
