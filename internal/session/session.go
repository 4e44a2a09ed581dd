// Package session owns the connection to a site server. A Manager holds at
// most one active Session; every resource operation is handed that Session
// explicitly rather than reading ambient state.
package session

import (
	"time"

	"github.com/cmas-go/cmas/internal/common/httpclient"
)

// Credential is a Windows account used for NTLM/Negotiate authentication.
type Credential struct {
	Username string
	Password string
}

// Session describes an established connection.
type Session struct {
	SiteServer           string
	SiteCode             string
	Credential           *Credential
	SkipCertificateCheck bool
	ConnectedAt          time.Time

	client *httpclient.HTTPClient
}

// GetSiteServer implements httpclient.Configurator.
func (s *Session) GetSiteServer() string {
	return s.SiteServer
}

// GetCredential implements httpclient.Configurator.
func (s *Session) GetCredential() (string, string, bool) {
	if s.Credential == nil || s.Credential.Username == "" {
		return "", "", false
	}
	return s.Credential.Username, s.Credential.Password, true
}

// GetSkipCertificateCheck implements httpclient.Configurator.
func (s *Session) GetSkipCertificateCheck() bool {
	return s.SkipCertificateCheck
}

// Invoker returns the gateway bound to this session, or nil for a Session
// that was not produced by Manager.Connect.
func (s *Session) Invoker() httpclient.Invoker {
	if s.client == nil {
		return nil
	}
	return s.client
}

// BaseURL returns the Admin Service root of the session.
func (s *Session) BaseURL() string {
	return httpclient.BaseURL(s.SiteServer)
}
