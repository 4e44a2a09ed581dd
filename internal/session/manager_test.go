package session

import (
	"context"
	"testing"

	"github.com/cmas-go/cmas/internal/common/apperrors"
	"github.com/cmas-go/cmas/internal/test/fakesccm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect(t *testing.T) {
	srv := fakesccm.New()
	defer srv.Close()

	m := NewManager()
	_, err := m.Current()
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, err, apperrors.ErrConnection)

	s, err := m.Connect(context.Background(), "https://"+srv.Host()+"/AdminService/", nil, true)
	require.NoError(t, err)
	assert.Equal(t, srv.Host(), s.SiteServer)
	assert.Equal(t, fakesccm.SiteCode, s.SiteCode)
	assert.False(t, s.ConnectedAt.IsZero())
	assert.Equal(t, "https://"+srv.Host()+"/AdminService", s.BaseURL())
	assert.Equal(t, int64(1), srv.Requests())

	current, err := m.Current()
	require.NoError(t, err)
	assert.Same(t, s, current)

	m.Disconnect()
	_, err = m.Current()
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, int64(1), srv.Requests(), "disconnect sends nothing")
}

func TestConnectReplacesSession(t *testing.T) {
	srv := fakesccm.New()
	defer srv.Close()

	m := NewManager()
	first, err := m.Connect(context.Background(), srv.Host(), nil, true)
	require.NoError(t, err)
	second, err := m.Connect(context.Background(), srv.Host(), &Credential{Username: `LAB\admin`, Password: "pw"}, true)
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	current, _ := m.Current()
	assert.Same(t, second, current)
	user, _, ok := current.GetCredential()
	assert.True(t, ok)
	assert.Equal(t, `LAB\admin`, user)
}

func TestConnectFailureKeepsPreviousSession(t *testing.T) {
	srv := fakesccm.New()
	m := NewManager()
	first, err := m.Connect(context.Background(), srv.Host(), nil, true)
	require.NoError(t, err)
	srv.Close()

	_, err = m.Connect(context.Background(), srv.Host(), nil, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConnection)
	assert.Contains(t, err.Error(), "unable to connect to site server")

	current, err := m.Current()
	require.NoError(t, err)
	assert.Same(t, first, current)
}

func TestConnectRejectedByServer(t *testing.T) {
	srv := fakesccm.New()
	defer srv.Close()
	srv.FailNext(1, 401)

	_, err := NewManager().Connect(context.Background(), srv.Host(), nil, true)
	assert.ErrorIs(t, err, apperrors.ErrConnection)
}

func TestConnectRequiresHost(t *testing.T) {
	_, err := NewManager().Connect(context.Background(), "  ", nil, false)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestCredentialAbsent(t *testing.T) {
	s := &Session{Credential: &Credential{}}
	_, _, ok := s.GetCredential()
	assert.False(t, ok)
}
