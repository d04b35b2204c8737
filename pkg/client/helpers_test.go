package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jmerrifield20/menderapi/pkg/client"
	"github.com/stretchr/testify/require"
)

// ── Stub server ─────────────────────────────────────────────────────────

const (
	stubUser     = "user@example.com"
	stubPassword = "s3cret"
	stubToken    = "stub-jwt-token"
)

type stubServer struct {
	*httptest.Server

	mu          sync.Mutex
	devices     []client.Device
	lastAuth    string
	lastAccept  string
	lastReqID   string
	basicSeen   bool
	logins      atomic.Int64
	inventories atomic.Int64
	failLogin   bool
	failDevices int           // HTTP status to answer the inventory with, 0 = OK
	hold        chan struct{} // when set, inventory responses wait until it is closed
}

func newStubServer(t *testing.T, devices ...client.Device) *stubServer {
	t.Helper()
	s := &stubServer{devices: devices}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/management/v1/useradm/auth/login", func(w http.ResponseWriter, r *http.Request) {
		s.logins.Add(1)
		s.record(r)
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		user, pass, ok := r.BasicAuth()
		if s.failLogin || !ok || user != stubUser || pass != stubPassword {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/jwt")
		w.Write([]byte(stubToken + "\n")) //nolint:errcheck
	})

	mux.HandleFunc("/api/management/v1/inventory/devices", func(w http.ResponseWriter, r *http.Request) {
		s.inventories.Add(1)
		s.record(r)
		if s.hold != nil {
			<-s.hold
		}
		if s.failDevices != 0 {
			http.Error(w, `{"error":"boom"}`, s.failDevices)
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.devices) //nolint:errcheck
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *stubServer) record(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAuth = r.Header.Get("Authorization")
	s.lastAccept = r.Header.Get("Accept")
	s.lastReqID = r.Header.Get(client.RequestIDHeader)
	if _, _, ok := r.BasicAuth(); ok {
		s.basicSeen = true
	}
}

func (s *stubServer) setDevices(devices ...client.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = devices
}

func (s *stubServer) authHeader() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAuth
}

// newTokenClient returns a client that skips login.
func newTokenClient(t *testing.T, s *stubServer, opts ...client.Option) *client.Client {
	t.Helper()
	opts = append([]client.Option{client.WithCredentials(client.StaticToken(stubToken, ""))}, opts...)
	c, err := client.New(context.Background(), s.URL, stubUser, opts...)
	require.NoError(t, err)
	return c
}

func device(id string, attrs ...client.Attribute) client.Device {
	return client.Device{ID: id, Attributes: attrs}
}

func hostname(name string) client.Attribute {
	return client.NewAttribute("hostname", name, client.ScopeInventory)
}
