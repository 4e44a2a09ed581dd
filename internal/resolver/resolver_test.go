package resolver

import (
	"context"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/cmas-go/cmas/internal/common/apperrors"
	"github.com/cmas-go/cmas/internal/common/httpclient"
	"github.com/cmas-go/cmas/internal/session"
	"github.com/cmas-go/cmas/internal/test/fakesccm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingInvoker struct {
	next  httpclient.Invoker
	calls atomic.Int64
}

func (c *countingInvoker) Invoke(ctx context.Context, method, path string, query map[string]string, body any) ([]byte, error) {
	c.calls.Add(1)
	return c.next.Invoke(ctx, method, path, query, body)
}

type collectionObject string

func (c collectionObject) ResourceKind() Kind         { return KindCollection }
func (c collectionObject) ResourceIdentifier() string { return string(c) }

func newResolver(t *testing.T) (*Resolver, *countingInvoker, *fakesccm.Server) {
	t.Helper()
	srv := fakesccm.New()
	t.Cleanup(srv.Close)
	sess, err := session.NewManager().Connect(context.Background(), srv.Host(), nil, true)
	require.NoError(t, err)
	inv := &countingInvoker{next: sess.Invoker()}
	return New(inv), inv, srv
}

func TestOneOf(t *testing.T) {
	tests := []struct {
		name    string
		refs    []Reference
		want    Reference
		wantErr error
	}{
		{"single name", []Reference{ByName("All Systems"), ByID("")}, ByName("All Systems"), nil},
		{"single id", []Reference{ByName(""), ByID(fakesccm.AllSystems)}, ByID(fakesccm.AllSystems), nil},
		{"object", []Reference{FromObject(collectionObject("PS100010")), ByName("")}, FromObject(collectionObject("PS100010")), nil},
		{"none", []Reference{ByName(""), ByID(""), FromObject(nil)}, Reference{}, ErrMissingReference},
		{"two", []Reference{ByName("x"), ByID("PS100010")}, Reference{}, ErrConflictingReferences},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OneOf("collection", tt.refs...)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	ref, err := AtMostOneOf("collection", ByName(""), ByID(""))
	require.NoError(t, err)
	assert.True(t, ref.IsZero())
}

func TestResolveOneWithoutNetwork(t *testing.T) {
	r, inv, _ := newResolver(t)
	ctx := context.Background()

	id, err := r.ResolveOne(ctx, ByID(fakesccm.AllSystems), KindCollection)
	require.NoError(t, err)
	assert.Equal(t, fakesccm.AllSystems, id)

	id, err = r.ResolveOne(ctx, FromObject(collectionObject("PS100010")), KindCollection)
	require.NoError(t, err)
	assert.Equal(t, "PS100010", id)

	_, err = r.ResolveOne(ctx, FromObject(collectionObject("PS100010")), KindDevice)
	assert.ErrorIs(t, err, ErrKindMismatch)

	_, err = r.ResolveOne(ctx, ByName("All*"), KindCollection)
	assert.ErrorIs(t, err, ErrWildcardNotAllowed)

	_, err = r.ResolveOne(ctx, ByID("abc"), KindDevice)
	assert.ErrorIs(t, err, ErrInvalidID)
	_, err = r.ResolveOne(ctx, ByID("not-a-guid"), KindScript)
	assert.ErrorIs(t, err, ErrInvalidID)

	assert.Equal(t, int64(0), inv.calls.Load())
}

func TestResolveOneByName(t *testing.T) {
	r, inv, srv := newResolver(t)
	ctx := context.Background()

	id, err := r.ResolveOne(ctx, ByName("all systems"), KindCollection)
	require.NoError(t, err)
	assert.Equal(t, fakesccm.AllSystems, id)

	id, err = r.ResolveOne(ctx, ByName("WKS002"), KindDevice)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(fakesccm.DeviceWKS002), id)

	id, err = r.ResolveOne(ctx, ByName("Get-Uptime"), KindScript)
	require.NoError(t, err)
	assert.Equal(t, fakesccm.ScriptUptime, id)
	assert.Equal(t, int64(3), inv.calls.Load())

	_, err = r.ResolveOne(ctx, ByName("Nope"), KindCollection)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.EqualError(t, err, "collection not found: Nope")

	srv.AddDevice(16777230, "WKS002")
	_, err = r.ResolveOne(ctx, ByName("WKS002"), KindDevice)
	assert.ErrorIs(t, err, apperrors.ErrAmbiguousResource)
	assert.Contains(t, err.Error(), "16777221, 16777230")
}

func TestResolveOneEscapesQuotes(t *testing.T) {
	r, _, srv := newResolver(t)
	srv.AddCollection("PS100099", "Bob's Devices", 2, "")

	id, err := r.ResolveOne(context.Background(), ByName("Bob's Devices"), KindCollection)
	require.NoError(t, err)
	assert.Equal(t, "PS100099", id)
}

func TestResolveMany(t *testing.T) {
	r, inv, _ := newResolver(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		ref     Reference
		kind    Kind
		want    []string
		network bool
	}{
		{"prefix", ByName("All User*"), KindCollection, []string{fakesccm.AllUsers, fakesccm.AllGroups, fakesccm.AllUsersAll}, true},
		{"single char", ByName("WKS00?"), KindDevice, []string{"16777220", "16777221"}, true},
		{"infix order enforced", ByName("*Users*Groups"), KindCollection, []string{fakesccm.AllUsersAll}, true},
		{"everything", ByName("*"), KindDevice, []string{"16777220", "16777221", "16777222"}, true},
		{"no match", ByName("Z*"), KindCollection, []string{}, true},
		{"id", ByID("16777222"), KindDevice, []string{"16777222"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := inv.calls.Load()
			got, err := r.ResolveMany(ctx, tt.ref, tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.network, inv.calls.Load() > before)
		})
	}
}

func TestLookupAndGet(t *testing.T) {
	r, _, _ := newResolver(t)
	ctx := context.Background()

	rows, err := r.Lookup(ctx, KindCollection, Reference{})
	require.NoError(t, err)
	assert.Len(t, rows, 4)
	assert.NotContains(t, rows[0], "__CLASS")
	assert.NotContains(t, rows[0], "CollectionRules", "lazy properties are not returned by queries")

	rows, err = r.Lookup(ctx, KindDevice, ByID("16777220"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "WKS001", rows[0]["Name"])

	row, err := r.Get(ctx, KindCollection, fakesccm.AllSystems)
	require.NoError(t, err)
	assert.Contains(t, row, "CollectionRules")

	_, err = r.Get(ctx, KindCollection, "PS1FFFFF")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	var apiErr *httpclient.APIError
	assert.ErrorAs(t, err, &apiErr)
}

func TestLookupOne(t *testing.T) {
	r, inv, _ := newResolver(t)
	ctx := context.Background()

	row, err := r.LookupOne(ctx, KindCollection, ByID(fakesccm.AllUsers))
	require.NoError(t, err)
	assert.Equal(t, "All Users", row["Name"])
	assert.Equal(t, int64(1), inv.calls.Load())

	_, err = r.LookupOne(ctx, KindCollection, ByID("PS1FFFFF"))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = r.LookupOne(ctx, KindDevice, ByName("WKS*"))
	assert.ErrorIs(t, err, ErrWildcardNotAllowed)

	_, err = r.LookupOne(ctx, KindDevice, Reference{})
	assert.ErrorIs(t, err, ErrMissingReference)
}
