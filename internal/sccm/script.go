package sccm

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/cmas-go/cmas/internal/common/odata"
	"github.com/cmas-go/cmas/internal/resolver"
	"github.com/cmas-go/cmas/internal/sccm/shape"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DefaultPollInterval is used by WaitScriptExecution when no interval is given.
const DefaultPollInterval = 5 * time.Second

// ScriptQuery selects scripts by at most one of Name (wildcards allowed), ID
// or Object. An empty query selects every script.
type ScriptQuery struct {
	Name   string
	ID     string
	Object resolver.Identified
}

func (q ScriptQuery) ref() (resolver.Reference, error) {
	return resolver.AtMostOneOf("script", resolver.ByName(q.Name), resolver.ByID(q.ID), resolver.FromObject(q.Object))
}

// GetScript returns the matching scripts. Nothing matching is not an error.
func (c *Client) GetScript(ctx context.Context, q ScriptQuery) ([]Script, error) {
	ref, err := q.ref()
	if err != nil {
		return nil, err
	}
	rows, err := c.resolver.Lookup(ctx, resolver.KindScript, ref)
	if err != nil {
		return nil, err
	}
	scripts := make([]Script, 0, len(rows))
	for _, row := range rows {
		var s Script
		if err := shape.Decode(row, &s); err != nil {
			return nil, err
		}
		scripts = append(scripts, s)
	}
	return scripts, nil
}

// ScriptInvocation describes a script run. Script identifies the script;
// exactly one of Collection and ResourceIDs names the targets.
type ScriptInvocation struct {
	Script      resolver.Reference
	Collection  resolver.Reference
	ResourceIDs []int64
	Parameters  map[string]string
}

func (in ScriptInvocation) check() error {
	if in.Script.IsZero() {
		return resolver.ErrMissingReference.Suffix("script")
	}
	if in.Script.HasWildcard() {
		return resolver.ErrWildcardNotAllowed.Suffix(in.Script.Value())
	}
	hasCollection := !in.Collection.IsZero()
	hasDevices := len(in.ResourceIDs) > 0
	if hasCollection == hasDevices {
		return ErrInvalidInput.Suffix("exactly one of a collection or resource ids is required")
	}
	for _, id := range in.ResourceIDs {
		if id <= 0 {
			return ErrInvalidInput.Suffix("invalid resource id " + strconv.FormatInt(id, 10))
		}
	}
	return nil
}

// InvokeScript runs an approved script on a collection or on devices. One
// RunScript request is sent for the collection, or one per device, and the
// call returns as soon as they are dispatched.
func (c *Client) InvokeScript(ctx context.Context, in ScriptInvocation, opts Options) ([]ScriptExecution, error) {
	if err := in.check(); err != nil {
		return nil, err
	}
	row, err := c.resolver.LookupOne(ctx, resolver.KindScript, in.Script)
	if err != nil {
		return nil, err
	}
	var script Script
	if err := shape.Decode(row, &script); err != nil {
		return nil, err
	}
	if !script.Approved() {
		return nil, ErrScriptNotApproved.Suffix(script.ScriptName + " is " + script.ApprovalState.String())
	}

	body, err := runScriptBody(script.ScriptGuid, in.Parameters)
	if err != nil {
		return nil, err
	}

	base := ScriptExecution{
		ScriptGuid:      script.ScriptGuid,
		ScriptName:      script.ScriptName,
		InputParameters: in.Parameters,
		Status:          StatusRunning,
	}
	var executions []ScriptExecution
	if !in.Collection.IsZero() {
		col, err := c.collection(ctx, in.Collection)
		if err != nil {
			return nil, err
		}
		if whatIf(ctx, opts, "run script", script.ScriptName+" on collection "+col.CollectionID) {
			return nil, nil
		}
		op, err := c.runScript(ctx, "v1.0/"+odata.Key("Collections", col.CollectionID, false)+"/AdminService.RunScript", body)
		if err != nil {
			return nil, err
		}
		exec := base
		exec.OperationID = op
		exec.CollectionID = col.CollectionID
		executions = append(executions, exec)
	} else {
		for _, id := range in.ResourceIDs {
			sid := strconv.FormatInt(id, 10)
			if whatIf(ctx, opts, "run script", script.ScriptName+" on device "+sid) {
				continue
			}
			op, err := c.runScript(ctx, "v1.0/"+odata.Key("Device", sid, true)+"/AdminService.RunScript", body)
			if err != nil {
				return executions, err
			}
			exec := base
			exec.OperationID = op
			exec.ResourceIDs = []int64{id}
			executions = append(executions, exec)
		}
	}
	for _, e := range executions {
		log.Ctx(ctx).Info().Int64("operation", e.OperationID).Str("script", script.ScriptName).Msg("script dispatched")
	}
	return executions, nil
}

func runScriptBody(guid string, params map[string]string) ([]byte, error) {
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)
	list := make([]map[string]string, 0, len(names))
	for _, n := range names {
		list = append(list, map[string]string{"ParameterName": n, "ParameterValue": params[n]})
	}
	body, err := sjson.SetBytes([]byte(`{}`), "ScriptGuid", guid)
	if err != nil {
		return nil, ErrInvalidInput.Err(err)
	}
	if len(list) > 0 {
		body, err = sjson.SetBytes(body, "ScriptParameters", list)
		if err != nil {
			return nil, ErrInvalidInput.Err(err)
		}
	}
	return body, nil
}

func (c *Client) runScript(ctx context.Context, path string, body []byte) (int64, error) {
	resp, err := c.api.Invoke(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		return 0, err
	}
	op := gjson.GetBytes(resp, "value")
	if !op.Exists() || op.Int() == 0 {
		return 0, shape.ErrMalformedResponse.Suffix("RunScript returned no operation id")
	}
	return op.Int(), nil
}

// GetScriptExecutionStatus reports the per-device results of an operation.
// An operation the server knows nothing about yields ScriptStatusNotFound,
// not an error.
func (c *Client) GetScriptExecutionStatus(ctx context.Context, operationID int64) (ScriptStatusResult, error) {
	if operationID <= 0 {
		return nil, ErrInvalidInput.Suffix("operation id must be positive")
	}
	q := map[string]string{"$filter": odata.EqInt("ClientOperationId", operationID)}
	body, err := c.api.Invoke(ctx, http.MethodGet, "wmi/SMS_ScriptsExecutionStatus", q, nil)
	if err != nil {
		return nil, err
	}
	rows, err := shape.Records(body)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &ScriptStatusNotFound{Operation: operationID}, nil
	}
	found := &ScriptStatusFound{Operation: operationID}
	for _, row := range rows {
		var e ScriptExecutionStatus
		if err := shape.Decode(row, &e); err != nil {
			return nil, err
		}
		found.Entries = append(found.Entries, e)
	}
	return found, nil
}

var errStillRunning = errors.New("script execution still running")

// WaitScriptExecution polls GetScriptExecutionStatus every interval until
// the operation is no longer running. Rows that have not appeared yet count
// as running. ctx bounds the wait; when it ends first the last result is
// returned with ErrWaitTimeout.
func (c *Client) WaitScriptExecution(ctx context.Context, operationID int64, interval time.Duration) (ScriptStatusResult, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	var last ScriptStatusResult
	var fatal error
	err := retry.Do(
		func() error {
			res, err := c.GetScriptExecutionStatus(ctx, operationID)
			if err != nil {
				fatal = err
				return retry.Unrecoverable(err)
			}
			last = res
			if res.NotFound() || res.Status() == StatusRunning {
				return errStillRunning
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	switch {
	case err == nil:
		return last, nil
	case fatal != nil:
		return last, fatal
	}
	timeout := ErrWaitTimeout.Suffix(strconv.FormatInt(operationID, 10))
	if ctx.Err() != nil {
		timeout = timeout.Err(ctx.Err())
	}
	return last, timeout
}

func marshalStatus(op int64, status, message string, entries []ScriptExecutionStatus) ([]byte, error) {
	body, err := sjson.SetBytes([]byte(`{}`), "OperationID", op)
	if err != nil {
		return nil, err
	}
	body, _ = sjson.SetBytes(body, "Status", status)
	if message != "" {
		body, _ = sjson.SetBytes(body, "Message", message)
	}
	if entries != nil {
		body, err = sjson.SetBytes(body, "Entries", entries)
	}
	return body, err
}
