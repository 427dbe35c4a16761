package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/TheGojiOG/tw404-manager/internal/logging"
	"github.com/TheGojiOG/tw404-manager/internal/remote"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/sync/singleflight"
)

// defaultCommandTimeout applies when a command carries no timeout of its own
const defaultCommandTimeout = 10 * time.Second

// Client is the native SSH executor. It keeps one connection to the remote
// host and redials when a keepalive shows the connection is gone.
type Client struct {
	config ClientConfig
	dials  singleflight.Group

	mu          sync.Mutex
	client      *ssh.Client
	connectedAt time.Time
}

// ClientConfig holds SSH connection configuration
type ClientConfig struct {
	Host            string
	Port            int
	Username        string
	KeyPath         string
	Passphrase      string
	UseAgent        bool
	ConnectTimeout  time.Duration
	KnownHostsPath  string
	TrustOnFirstUse bool
}

// NewClient creates a client. No connection is made until the first command.
func NewClient(config ClientConfig) *Client {
	if config.Port == 0 {
		config.Port = 22
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 5 * time.Second
	}
	return &Client{config: config}
}

func (c *Client) address() string {
	return net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))
}

// Execute runs cmd on the remote host. Every failure is reported in the Result.
func (c *Client) Execute(ctx context.Context, cmd remote.Command) remote.Result {
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := c.connection(ctx)
	if err != nil {
		return failure(ctx, fmt.Sprintf("ssh connection to %s failed: %v", c.address(), err))
	}

	session, err := client.NewSession()
	if err != nil {
		c.invalidate(client)
		return failure(ctx, fmt.Sprintf("failed to create session: %v", err))
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if cmd.Stdin != "" {
		session.Stdin = strings.NewReader(cmd.Stdin)
	}

	if err := session.Start(cmd.Line); err != nil {
		return failure(ctx, fmt.Sprintf("failed to start command: %v", err))
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		// abandon the session; the remote side is not signalled
		session.Close()
		return failure(ctx, fmt.Sprintf("command timed out after %v", timeout))
	case err = <-done:
	}

	if err == nil {
		return remote.Result{Succeeded: true, Stdout: stdout.String(), Stderr: stderr.String()}
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return remote.Result{
			ExitCode: exitErr.ExitStatus(),
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
		}
	}

	c.invalidate(client)
	return remote.Failure(fmt.Sprintf("command failed: %v", err))
}

// Open streams a remote file over SFTP. The caller closes the reader.
func (c *Client) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	client, err := c.connection(ctx)
	if err != nil {
		return nil, fmt.Errorf("ssh connection to %s failed: %w", c.address(), err)
	}

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return nil, fmt.Errorf("failed to start sftp: %w", err)
	}

	file, err := sftpClient.Open(path)
	if err != nil {
		sftpClient.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	return &sftpReader{File: file, client: sftpClient}, nil
}

type sftpReader struct {
	*sftp.File
	client *sftp.Client
}

func (r *sftpReader) Close() error {
	fileErr := r.File.Close()
	clientErr := r.client.Close()
	if fileErr != nil {
		return fileErr
	}
	return clientErr
}

// Close closes the SSH connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// GetUptime returns how long the current connection has been active
func (c *Client) GetUptime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return 0
	}
	return time.Since(c.connectedAt)
}

// connection returns the shared connection, dialing when there is none.
// c.mu only guards the fields; the keepalive and the dial run unlocked, and
// concurrent callers that find no connection wait on a single dial.
func (c *Client) connection(ctx context.Context) (*ssh.Client, error) {
	c.mu.Lock()
	current := c.client
	c.mu.Unlock()

	if current != nil {
		if c.alive(current) {
			return current, nil
		}
		log.Printf("[SSH] Connection to %s is dead, reconnecting", c.address())
		c.invalidate(current)
	}

	// shared by every waiting caller
	dialCtx := context.WithoutCancel(ctx)
	result := c.dials.DoChan("connect", func() (interface{}, error) {
		c.mu.Lock()
		existing := c.client
		c.mu.Unlock()
		if existing != nil {
			return existing, nil
		}

		client, err := c.dial(dialCtx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.client = client
		c.connectedAt = time.Now()
		c.mu.Unlock()
		logging.Component("ssh").Info("ssh_connected", "address", c.address(), "user", c.config.Username)
		return client, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-result:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*ssh.Client), nil
	}
}

// alive sends a keepalive bounded by the connect timeout
func (c *Client) alive(client *ssh.Client) bool {
	reply := make(chan error, 1)
	go func() {
		_, _, err := client.SendRequest("keepalive@openssh.com", true, nil)
		reply <- err
	}()

	select {
	case err := <-reply:
		return err == nil
	case <-time.After(c.config.ConnectTimeout):
		return false
	}
}

func (c *Client) invalidate(client *ssh.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == client {
		c.client.Close()
		c.client = nil
	}
}

func (c *Client) dial(ctx context.Context) (*ssh.Client, error) {
	auth, err := c.authMethods()
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := NewHostKeyCallback(c.config.KnownHostsPath, c.config.TrustOnFirstUse)
	if err != nil {
		return nil, fmt.Errorf("failed to configure host key verification: %w", err)
	}

	sshConfig := &ssh.ClientConfig{
		User:            c.config.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.config.ConnectTimeout,
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	address := c.address()
	conn, err := (&net.Dialer{}).DialContext(dialCtx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	// the handshake shares the connect bound
	deadline := time.Now().Add(c.config.ConnectTimeout)
	if ctxDeadline, ok := dialCtx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetDeadline(deadline)

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, sshConfig)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake failed: %w", err)
	}
	conn.SetDeadline(time.Time{})

	return ssh.NewClient(sshConn, chans, reqs), nil
}

func (c *Client) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if c.config.KeyPath != "" {
		signer, err := LoadSigner(c.config.KeyPath, c.config.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to load private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if c.config.UseAgent {
		if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
			conn, err := net.Dial("unix", sock)
			if err != nil {
				return nil, fmt.Errorf("failed to reach ssh agent: %w", err)
			}
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("no ssh authentication method configured (key_path or agent)")
	}
	return methods, nil
}

func failure(ctx context.Context, diagnostic string) remote.Result {
	res := remote.Failure(diagnostic)
	res.TimedOut = errors.Is(ctx.Err(), context.DeadlineExceeded)
	return res
}
