// Package sccm implements the resource operations of cmas: collections and
// their membership rules, devices, device and collection variables, and run
// scripts. Every operation validates its input before touching the network,
// resolves references through the resolver package and returns typed values
// with WMI and OData metadata removed.
package sccm

import (
	"github.com/cmas-go/cmas/internal/common/httpclient"
	"github.com/cmas-go/cmas/internal/resolver"
	"github.com/cmas-go/cmas/internal/session"
)

// Client runs operations against the site server of one Session.
type Client struct {
	api      httpclient.Invoker
	resolver *resolver.Resolver
	siteCode string
	confirm  Confirmer
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithInvoker replaces the session's gateway, e.g. to count requests.
func WithInvoker(api httpclient.Invoker) ClientOption {
	return func(c *Client) { c.api = api }
}

// WithConfirmer sets the Confirmer consulted for destructive operations.
func WithConfirmer(confirm Confirmer) ClientOption {
	return func(c *Client) { c.confirm = confirm }
}

// NewClient returns a Client bound to sess.
func NewClient(sess *session.Session, opts ...ClientOption) (*Client, error) {
	if sess == nil {
		return nil, ErrNotConnected
	}
	c := &Client{
		api:      sess.Invoker(),
		siteCode: sess.SiteCode,
		confirm:  denyAll,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.api == nil {
		return nil, ErrNotConnected
	}
	c.resolver = resolver.New(c.api)
	return c, nil
}
