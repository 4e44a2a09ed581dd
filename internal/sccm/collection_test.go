package sccm

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cmas-go/cmas/internal/common/apperrors"
	"github.com/cmas-go/cmas/internal/resolver"
	"github.com/cmas-go/cmas/internal/test/fakesccm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestGetCollection(t *testing.T) {
	c, inv, _ := newClient(t)
	ctx := context.Background()

	cols, err := c.GetCollection(ctx, CollectionQuery{ID: fakesccm.AllSystems})
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, "All Systems", cols[0].Name)
	assert.Equal(t, CollectionTypeDevice, cols[0].CollectionType)
	assert.Equal(t, 3, cols[0].MemberCount)

	tests := []struct {
		name  string
		query CollectionQuery
		want  int
	}{
		{"all", CollectionQuery{}, 4},
		{"wildcard", CollectionQuery{Name: "All User*"}, 3},
		{"exact name ignores case", CollectionQuery{Name: "all users"}, 1},
		{"missing name", CollectionQuery{Name: "Nothing Here"}, 0},
		{"missing id", CollectionQuery{ID: "PS1FFFFF"}, 0},
		{"object", CollectionQuery{Object: &cols[0]}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.GetCollection(ctx, tt.query)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}

	before := inv.calls.Load()
	_, err = c.GetCollection(ctx, CollectionQuery{Name: "All Systems", ID: fakesccm.AllSystems})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	assert.Equal(t, before, inv.calls.Load())
}

func TestNewCollection(t *testing.T) {
	c, inv, srv := newClient(t)
	ctx := context.Background()

	col, err := c.NewCollection(ctx, NewCollectionInput{
		Name:                   "Test Devices",
		LimitingCollectionName: "All Systems",
		Comment:                "created by test",
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "PS100010", col.CollectionID)
	assert.Equal(t, fakesccm.AllSystems, col.LimitToCollectionID)
	assert.Equal(t, "All Systems", col.LimitToCollectionName)
	assert.Equal(t, RefreshManual, col.RefreshType)
	assert.Equal(t, CollectionTypeDevice, col.CollectionType)

	_, err = c.NewCollection(ctx, NewCollectionInput{Name: "test devices", LimitingCollectionID: fakesccm.AllSystems}, Options{})
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	assert.ErrorIs(t, err, ErrCollectionExists)
	assert.Equal(t, 5, srv.RowCount("SMS_Collection"))

	periodic, err := c.NewCollection(ctx, NewCollectionInput{
		Name:                 "Nightly",
		LimitingCollectionID: col.CollectionID,
		RefreshType:          RefreshPeriodic,
	}, Options{})
	require.NoError(t, err)
	row := srv.Row("SMS_Collection", periodic.CollectionID)
	sched := row["RefreshSchedule"].([]any)
	require.Len(t, sched, 1)
	assert.Equal(t, json.Number("7"), sched[0].(map[string]any)["DaysSpan"])

	t.Run("invalid input sends nothing", func(t *testing.T) {
		before := inv.calls.Load()
		for _, in := range []NewCollectionInput{
			{Name: "", LimitingCollectionID: fakesccm.AllSystems},
			{Name: "X"},
			{Name: "X", LimitingCollectionID: fakesccm.AllSystems, LimitingCollectionName: "All Systems"},
			{Name: "X*", LimitingCollectionID: fakesccm.AllSystems},
			{Name: "X", LimitingCollectionID: fakesccm.AllSystems, RefreshType: 3},
		} {
			_, err := c.NewCollection(ctx, in, Options{})
			assert.ErrorIs(t, err, apperrors.ErrInvalidArgument, "%+v", in)
		}
		assert.Equal(t, before, inv.calls.Load())
	})

	_, err = c.NewCollection(ctx, NewCollectionInput{Name: "X", LimitingCollectionName: "No Such Parent"}, Options{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = c.NewCollection(ctx, NewCollectionInput{Name: "Users X", LimitingCollectionID: fakesccm.AllSystems, CollectionType: CollectionTypeUser}, Options{})
	assert.ErrorIs(t, err, ErrCollectionTypeClash)

	count := srv.RowCount("SMS_Collection")
	skipped, err := c.NewCollection(ctx, NewCollectionInput{Name: "Dry Run", LimitingCollectionID: fakesccm.AllSystems}, Options{WhatIf: true})
	require.NoError(t, err)
	assert.Nil(t, skipped)
	assert.Equal(t, count, srv.RowCount("SMS_Collection"))
}

func TestSetCollection(t *testing.T) {
	c, inv, srv := newClient(t)
	ctx := context.Background()
	srv.AddCollection("PS100020", "Servers", 2, "")
	srv.AddCollection("PS100021", "Workstations", 2, "")

	before := inv.calls.Load()
	_, err := c.SetCollection(ctx, resolver.ByID("PS100020"), CollectionUpdate{}, Options{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	assert.Equal(t, before, inv.calls.Load())

	col, err := c.SetCollection(ctx, resolver.ByName("Servers"), CollectionUpdate{
		Comment:     ptr("all servers"),
		RefreshType: ptr(RefreshBoth),
		RefreshDays: ptr(3),
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "all servers", col.Comment)
	assert.Equal(t, RefreshBoth, col.RefreshType)
	assert.NotEmpty(t, srv.Row("SMS_Collection", "PS100020")["RefreshSchedule"])

	col, err = c.SetCollection(ctx, resolver.ByID("PS100020"), CollectionUpdate{
		NewName:            ptr("Member Servers"),
		LimitingCollection: resolver.ByID("PS100021"),
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Member Servers", col.Name)
	assert.Equal(t, "Workstations", col.LimitToCollectionName)

	_, err = c.SetCollection(ctx, resolver.ByID("PS100020"), CollectionUpdate{NewName: ptr("Workstations")}, Options{})
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)

	_, err = c.SetCollection(ctx, resolver.ByID("PS100020"), CollectionUpdate{LimitingCollection: resolver.ByID("PS100020")}, Options{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	_, err = c.SetCollection(ctx, resolver.ByID(fakesccm.AllSystems), CollectionUpdate{NewName: ptr("Everything")}, force)
	assert.ErrorIs(t, err, apperrors.ErrProtectedResource)

	col, err = c.SetCollection(ctx, resolver.ByID(fakesccm.AllSystems), CollectionUpdate{Comment: ptr("root")}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "root", col.Comment)

	_, err = c.SetCollection(ctx, resolver.ByName("Gone"), CollectionUpdate{Comment: ptr("x")}, Options{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRemoveProtectedCollection(t *testing.T) {
	c, inv, srv := newClient(t)
	ctx := context.Background()

	before := inv.calls.Load()
	_, err := c.RemoveCollection(ctx, resolver.ByID(fakesccm.AllSystems), force)
	assert.ErrorIs(t, err, apperrors.ErrProtectedResource)
	assert.EqualError(t, err, "protected collection: SMS00001")
	assert.Equal(t, before, inv.calls.Load())

	_, err = c.RemoveCollection(ctx, resolver.ByName("All*"), Options{Force: true, WhatIf: true})
	assert.ErrorIs(t, err, apperrors.ErrProtectedResource)
	assert.Zero(t, callsWith(srv, "DELETE"))
	assert.Equal(t, 4, srv.RowCount("SMS_Collection"))
}

func TestRemoveCollection(t *testing.T) {
	ctx := context.Background()

	t.Run("confirmation", func(t *testing.T) {
		c, _, srv := newClient(t)
		srv.AddCollection("PS100020", "Temp", 2, "")

		_, err := c.RemoveCollection(ctx, resolver.ByName("Temp"), Options{})
		assert.ErrorIs(t, err, apperrors.ErrConfirmationRequired)
		assert.NotNil(t, srv.Row("SMS_Collection", "PS100020"))

		var asked []string
		c.confirm = ConfirmFunc(func(_ context.Context, action, target string) (bool, error) {
			asked = append(asked, action+": "+target)
			return true, nil
		})
		removed, err := c.RemoveCollection(ctx, resolver.ByName("Temp"), Options{})
		require.NoError(t, err)
		assert.Empty(t, removed)
		assert.Equal(t, []string{"remove collection: PS100020 (Temp)"}, asked)
		assert.Nil(t, srv.Row("SMS_Collection", "PS100020"))
	})

	t.Run("declined target is skipped", func(t *testing.T) {
		c, _, srv := newClient(t)
		srv.AddCollection("PS100030", "Batch A", 2, "")
		srv.AddCollection("PS100031", "Batch B", 2, "")

		answers := []bool{false, true}
		var asked []string
		c.confirm = ConfirmFunc(func(_ context.Context, _, target string) (bool, error) {
			asked = append(asked, target)
			ok := answers[0]
			answers = answers[1:]
			return ok, nil
		})
		removed, err := c.RemoveCollection(ctx, resolver.ByName("Batch*"), Options{PassThru: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"PS100030 (Batch A)", "PS100031 (Batch B)"}, asked)
		require.Len(t, removed, 1)
		assert.Equal(t, "PS100031", removed[0].CollectionID)
		assert.NotNil(t, srv.Row("SMS_Collection", "PS100030"))
		assert.Nil(t, srv.Row("SMS_Collection", "PS100031"))

		c.confirm = denyAll
		_, err = c.RemoveCollection(ctx, resolver.ByName("Batch*"), Options{})
		assert.ErrorIs(t, err, apperrors.ErrConfirmationRequired)
		assert.NotNil(t, srv.Row("SMS_Collection", "PS100030"))
	})

	t.Run("wildcard with passthru", func(t *testing.T) {
		c, _, srv := newClient(t)
		srv.AddCollection("PS100020", "Test A", 2, "")
		srv.AddCollection("PS100021", "Test B", 2, "")
		srv.AddCollection("PS100022", "Prod", 2, "")

		removed, err := c.RemoveCollection(ctx, resolver.ByName("Test ?"), Options{Force: true, PassThru: true})
		require.NoError(t, err)
		require.Len(t, removed, 2)
		assert.Equal(t, "Test A", removed[0].Name)
		assert.Equal(t, 2, callsWith(srv, "DELETE"))
		assert.Equal(t, 5, srv.RowCount("SMS_Collection"))

		removed, err = c.RemoveCollection(ctx, resolver.ByName("Test*"), force)
		require.NoError(t, err)
		assert.Empty(t, removed)

		_, err = c.RemoveCollection(ctx, resolver.ByName("Test A"), force)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("what if", func(t *testing.T) {
		c, _, srv := newClient(t)
		srv.AddCollection("PS100020", "Temp", 2, "")
		_, err := c.RemoveCollection(ctx, resolver.ByID("PS100020"), Options{WhatIf: true})
		require.NoError(t, err)
		assert.Zero(t, callsWith(srv, "DELETE"))
	})
}

func TestInvokeCollectionUpdate(t *testing.T) {
	c, _, srv := newClient(t)
	ctx := context.Background()

	require.NoError(t, c.InvokeCollectionUpdate(ctx, resolver.ByName("All Systems"), Options{}))
	assert.Equal(t, 1, callsWith(srv, "POST wmi/SMS_Collection('SMS00001')/AdminService.RequestRefresh"))

	err := c.InvokeCollectionUpdate(ctx, resolver.ByID("PS1FFFFF"), Options{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGetCollectionMember(t *testing.T) {
	c, _, _ := newClient(t)
	ctx := context.Background()

	members, err := c.GetCollectionMember(ctx, resolver.ByID(fakesccm.AllSystems), "")
	require.NoError(t, err)
	assert.Len(t, members, 3)

	members, err = c.GetCollectionMember(ctx, resolver.ByName("All Systems"), "wks*")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, int64(fakesccm.DeviceWKS001), members[0].ResourceID)

	_, err = c.GetCollectionMember(ctx, resolver.ByName("Nope"), "")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
