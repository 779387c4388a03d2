package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/noah-network/noah/pkg/util"
)

// TunnelConfig describes the SSH bastion in front of the inventory API
type TunnelConfig struct {
	Host       string // host[:port], port 22 when omitted
	User       string
	Password   string
	KnownHosts string // known_hosts file; empty skips host key verification
}

// SSHTunnel dials API connections through an SSH connection. Used when the
// API host (10.0.0.0/8 management network) is only reachable from a bastion.
type SSHTunnel struct {
	sshClient *ssh.Client
}

// NewSSHTunnel dials the bastion with password authentication
func NewSSHTunnel(cfg TunnelConfig) (*SSHTunnel, error) {
	hostKey := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHosts != "" {
		cb, err := knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("loading known_hosts %s: %w", cfg.KnownHosts, err)
		}
		hostKey = cb
	} else {
		util.WithField("host", cfg.Host).Warn("ssh tunnel: host key verification disabled")
	}

	config := &ssh.ClientConfig{
		User: cfg.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(cfg.Password),
		},
		HostKeyCallback: hostKey,
		Timeout:         10 * time.Second,
	}

	addr := cfg.Host
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "22")
	}

	sshClient, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("SSH dial %s: %w", addr, err)
	}
	return &SSHTunnel{sshClient: sshClient}, nil
}

// DialContext opens a TCP connection from the bastion to addr
func (t *SSHTunnel) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return t.sshClient.DialContext(ctx, network, addr)
}

// Transport returns an HTTP transport that dials through the tunnel
func (t *SSHTunnel) Transport() *http.Transport {
	return &http.Transport{
		DialContext:         t.DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

// Close closes the SSH connection
func (t *SSHTunnel) Close() error {
	return t.sshClient.Close()
}
