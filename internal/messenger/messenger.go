// Package messenger is the client side of the marking protocol: one
// Messenger per session, version negotiation up front, and a mutex held
// across each round trip so callers can share a session safely.
package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/scanmark/scanmark/internal/proto"
)

const defaultTimeout = 30 * time.Second

// Messenger talks to one Scanmark server. All methods are safe for
// concurrent use; calls serialize on an internal mutex so at most one
// round trip is in flight per session.
type Messenger struct {
	base   string
	client *http.Client

	mu      sync.Mutex
	token   string
	version int
}

// Opts holds parameters for creating a Messenger.
type Opts struct {
	BaseURL string
	Timeout time.Duration // per round trip, defaults to 30s
	// For testing: inject a transport (httptest servers work through
	// BaseURL alone, so this is rarely needed).
	Transport http.RoundTripper
}

// New creates a Messenger. No network traffic happens until Negotiate.
func New(opts Opts) (*Messenger, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("messenger: base url is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Messenger{
		base: opts.BaseURL,
		client: &http.Client{
			Timeout:   timeout,
			Transport: opts.Transport,
		},
	}, nil
}

// Negotiate fetches the server's API version and freezes it for the
// session. Servers outside the supported window fail with
// UnsupportedVersion before any authenticated call is attempted.
func (m *Messenger) Negotiate(ctx context.Context) error {
	var info proto.InfoReply
	if err := m.do(ctx, http.MethodGet, "/info/apiversion", nil, &info); err != nil {
		return err
	}
	if err := proto.CheckVersion(info.APIVersion); err != nil {
		return err
	}
	m.mu.Lock()
	m.version = info.APIVersion
	m.mu.Unlock()
	return nil
}

// Version returns the negotiated protocol version, 0 before Negotiate.
func (m *Messenger) Version() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

// Login authenticates and stores the session token. Exclusive mode
// refuses when the user already holds a session (ExistingSession).
func (m *Messenger) Login(ctx context.Context, username, password string, exclusive bool) error {
	req := proto.LoginRequest{
		Username:     username,
		Password:     password,
		Exclusive:    exclusive,
		ClientMinAPI: proto.SupportedVersions[0],
		ClientMaxAPI: proto.SupportedVersions[len(proto.SupportedVersions)-1],
	}
	var reply proto.LoginReply
	if err := m.do(ctx, http.MethodPost, "/auth/login", req, &reply); err != nil {
		return err
	}
	m.mu.Lock()
	m.token = reply.Token
	m.mu.Unlock()
	return nil
}

// Logout ends the session. With revokeToken the server drops the token,
// killing clone sessions too; a second logout fails with
// AuthenticationFailed.
func (m *Messenger) Logout(ctx context.Context, revokeToken bool) error {
	err := m.do(ctx, http.MethodDelete, "/auth/logout", proto.LogoutRequest{RevokeToken: revokeToken}, nil)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
	return nil
}

// ForceClear removes every outstanding token for the user, using
// credentials instead of a token. For crash recovery.
func (m *Messenger) ForceClear(ctx context.Context, username, password string) error {
	return m.do(ctx, http.MethodPost, "/auth/clear", proto.ClearRequest{Username: username, Password: password}, nil)
}

// Clone returns a second session sharing the server address, token and
// negotiated version, with its own HTTP client and mutex. Round trips
// on the clone do not serialize with the original.
func (m *Messenger) Clone() *Messenger {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &Messenger{
		base: m.base,
		client: &http.Client{
			Timeout:   m.client.Timeout,
			Transport: m.client.Transport,
		},
		token:   m.token,
		version: m.version,
	}
}

// do performs one round trip: marshal body, send, decode errors, decode
// out. The session mutex is held for the duration.
func (m *Messenger) do(ctx context.Context, method, path string, body, out interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doLocked(ctx, method, path, body, out)
}

func (m *Messenger) doLocked(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("messenger: marshal %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, m.base+path, reader)
	if err != nil {
		return fmt.Errorf("messenger: build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	m.setHeaders(req)

	resp, err := m.client.Do(req)
	if err != nil {
		return classifyTransportErr(err)
	}
	defer resp.Body.Close()

	if err := decodeError(resp); err != nil {
		return err
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("messenger: decode %s %s reply: %w", method, path, err)
		}
	}
	return nil
}

// setHeaders attaches the session token and negotiated version. Callers
// must hold m.mu.
func (m *Messenger) setHeaders(req *http.Request) {
	if m.token != "" {
		req.Header.Set("Authorization", "Token "+m.token)
	}
	if m.version != 0 {
		req.Header.Set("X-API-Version", strconv.Itoa(m.version))
	}
}
