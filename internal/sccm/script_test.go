package sccm

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cmas-go/cmas/internal/common/apperrors"
	"github.com/cmas-go/cmas/internal/resolver"
	"github.com/cmas-go/cmas/internal/test/fakesccm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetScript(t *testing.T) {
	c, inv, _ := newClient(t)
	ctx := context.Background()

	scripts, err := c.GetScript(ctx, ScriptQuery{})
	require.NoError(t, err)
	assert.Len(t, scripts, 2)

	scripts, err = c.GetScript(ctx, ScriptQuery{Name: "Get-*"})
	require.NoError(t, err)
	require.Len(t, scripts, 1)
	assert.Equal(t, fakesccm.ScriptUptime, scripts[0].ScriptGuid)
	assert.True(t, scripts[0].Approved())

	scripts, err = c.GetScript(ctx, ScriptQuery{ID: fakesccm.ScriptUnapproved})
	require.NoError(t, err)
	require.Len(t, scripts, 1)
	assert.Equal(t, ApprovalWaiting, scripts[0].ApprovalState)

	before := inv.calls.Load()
	_, err = c.GetScript(ctx, ScriptQuery{ID: "not-a-guid"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	assert.Equal(t, before, inv.calls.Load())
}

func TestInvokeScriptOnDevices(t *testing.T) {
	c, _, srv := newClient(t)
	ctx := context.Background()

	execs, err := c.InvokeScript(ctx, ScriptInvocation{
		Script:      resolver.ByName("Get-Uptime"),
		ResourceIDs: []int64{fakesccm.DeviceWKS001, fakesccm.DeviceWKS002},
		Parameters:  map[string]string{"Format": "short"},
	}, Options{})
	require.NoError(t, err)
	require.Len(t, execs, 2)
	assert.NotEqual(t, execs[0].OperationID, execs[1].OperationID)
	assert.Equal(t, []int64{fakesccm.DeviceWKS002}, execs[1].ResourceIDs)
	assert.Equal(t, StatusRunning, execs[0].Status)
	assert.Equal(t, "Get-Uptime", execs[0].ScriptName)
	assert.Equal(t, 1, callsWith(srv, "POST v1.0/Device(16777220)/AdminService.RunScript"))
	assert.Equal(t, 1, callsWith(srv, "POST v1.0/Device(16777221)/AdminService.RunScript"))

	status, err := c.GetScriptExecutionStatus(ctx, execs[0].OperationID)
	require.NoError(t, err)
	assert.False(t, status.NotFound())
	assert.Equal(t, StatusCompleted, status.Status())
	found := status.(*ScriptStatusFound)
	require.Len(t, found.Entries, 1)
	assert.Equal(t, "WKS001", found.Entries[0].DeviceName)
	assert.Equal(t, "ok", found.Entries[0].ScriptOutput)
}

func TestInvokeScriptOnCollection(t *testing.T) {
	c, _, srv := newClient(t)
	ctx := context.Background()

	execs, err := c.InvokeScript(ctx, ScriptInvocation{
		Script:     resolver.ByID(fakesccm.ScriptUptime),
		Collection: resolver.ByName("All Systems"),
	}, Options{})
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, fakesccm.AllSystems, execs[0].CollectionID)
	assert.Equal(t, 1, callsWith(srv, "POST v1.0/Collections('SMS00001')/AdminService.RunScript"))

	status, err := c.WaitScriptExecution(ctx, execs[0].OperationID, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Len(t, status.(*ScriptStatusFound).Entries, 3)

	execs, err = c.InvokeScript(ctx, ScriptInvocation{
		Script:     resolver.ByID(fakesccm.ScriptUptime),
		Collection: resolver.ByID(fakesccm.AllSystems),
	}, Options{WhatIf: true})
	require.NoError(t, err)
	assert.Empty(t, execs)
	assert.Equal(t, 1, callsWith(srv, "POST v1.0/"))
}

func TestInvokeScriptRejects(t *testing.T) {
	c, inv, srv := newClient(t)
	ctx := context.Background()

	before := inv.calls.Load()
	for _, in := range []ScriptInvocation{
		{ResourceIDs: []int64{fakesccm.DeviceWKS001}},
		{Script: resolver.ByName("Get-*"), ResourceIDs: []int64{fakesccm.DeviceWKS001}},
		{Script: resolver.ByName("Get-Uptime")},
		{Script: resolver.ByName("Get-Uptime"), ResourceIDs: []int64{1}, Collection: resolver.ByID(fakesccm.AllSystems)},
		{Script: resolver.ByName("Get-Uptime"), ResourceIDs: []int64{-5}},
	} {
		_, err := c.InvokeScript(ctx, in, Options{})
		assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	}
	assert.Equal(t, before, inv.calls.Load())

	_, err := c.InvokeScript(ctx, ScriptInvocation{
		Script:      resolver.ByName("Remove-Everything"),
		ResourceIDs: []int64{fakesccm.DeviceWKS001},
	}, Options{})
	assert.ErrorIs(t, err, ErrScriptNotApproved)
	assert.Zero(t, callsWith(srv, "POST v1.0/"))

	_, err = c.InvokeScript(ctx, ScriptInvocation{
		Script:      resolver.ByName("Nope"),
		ResourceIDs: []int64{fakesccm.DeviceWKS001},
	}, Options{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestScriptStatusNotFound(t *testing.T) {
	c, _, _ := newClient(t)
	ctx := context.Background()

	status, err := c.GetScriptExecutionStatus(ctx, 99999999)
	require.NoError(t, err)
	assert.True(t, status.NotFound())
	assert.Equal(t, StatusError, status.Status())
	assert.Equal(t, "script execution not found: 99999999", status.(*ScriptStatusNotFound).Message())

	out, err := json.Marshal(status)
	require.NoError(t, err)
	assert.JSONEq(t, `{"OperationID":99999999,"Status":"error","Message":"script execution not found: 99999999"}`, string(out))

	_, err = c.GetScriptExecutionStatus(ctx, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestWaitScriptExecution(t *testing.T) {
	c, _, srv := newClient(t)
	srv.AddExecutionStatus(42, fakesccm.DeviceWKS001, 0, "done")
	srv.AddExecutionStatus(42, fakesccm.DeviceWKS002, 2, "")
	srv.AddExecutionStatus(43, fakesccm.DeviceWKS001, 1, "boom")

	status, err := c.GetScriptExecutionStatus(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, status.Status())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	status, err = c.WaitScriptExecution(ctx, 42, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrWaitTimeout)
	require.NotNil(t, status)
	assert.Equal(t, StatusRunning, status.Status())

	status, err = c.WaitScriptExecution(context.Background(), 43, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, StatusError, status.Status())
}
