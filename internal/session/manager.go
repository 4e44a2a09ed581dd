package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cmas-go/cmas/internal/common/httpclient"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// siteCodePath is the lightweight identity call used to validate a connection.
const siteCodePath = "wmi/SMS_Identification.GetSiteCode"

// Manager holds the active Session. It is safe for concurrent use, though a
// process normally has a single caller.
type Manager struct {
	mu      sync.RWMutex
	active  *Session
	options httpclient.ClientOptions
}

// NewManager returns a Manager whose sessions use the given gateway options.
func NewManager(opts ...httpclient.ClientOptions) *Manager {
	m := &Manager{}
	if len(opts) > 0 {
		m.options = opts[0]
	}
	return m
}

// Connect validates host by fetching its site code and, on success, makes the
// resulting Session the active one, replacing any previous session. On failure
// the previous session stays active.
func (m *Manager) Connect(ctx context.Context, host string, cred *Credential, skipCertificateCheck bool) (*Session, error) {
	host = httpclient.NormalizeHost(host)
	if host == "" {
		return nil, ErrMissingSiteHost
	}

	s := &Session{
		SiteServer:           host,
		Credential:           cred,
		SkipCertificateCheck: skipCertificateCheck,
	}
	s.client = httpclient.NewClient(s, m.options)

	body, err := s.client.Invoke(ctx, http.MethodGet, siteCodePath, nil, nil)
	if err != nil {
		log.Debug().Err(err).Str("site_server", host).Msg("connect failed")
		return nil, ErrConnectFailed.Err(err).Suffix(host + ": " + err.Error())
	}
	siteCode := gjson.GetBytes(body, "SiteCode").String()
	if siteCode == "" {
		siteCode = gjson.GetBytes(body, "value").String()
	}
	if siteCode == "" {
		return nil, ErrInvalidSiteCode.Suffix(host)
	}
	s.SiteCode = siteCode
	s.ConnectedAt = time.Now()

	m.mu.Lock()
	m.active = s
	m.mu.Unlock()

	log.Info().Str("site_server", host).Str("site_code", siteCode).Msg("connected")
	return s, nil
}

// Current returns the active session or ErrNotConnected.
func (m *Manager) Current() (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return nil, ErrNotConnected
	}
	return m.active, nil
}

// Disconnect forgets the active session. No request is sent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.active = nil
	m.mu.Unlock()
}
