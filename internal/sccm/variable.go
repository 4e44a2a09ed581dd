package sccm

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/cmas-go/cmas/internal/common/apperrors"
	"github.com/cmas-go/cmas/internal/common/odata"
	"github.com/cmas-go/cmas/internal/resolver"
	"github.com/cmas-go/cmas/internal/sccm/shape"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/sjson"
)

// defaultLocaleID is used when a settings object has to be created.
const defaultLocaleID = 1033

// variableScope describes where the variables of a device or a collection
// live. The settings object is created on first use.
type variableScope struct {
	kind      resolver.Kind
	class     string
	keyField  string
	listField string
	varClass  string
}

var (
	deviceScope = variableScope{
		kind:      resolver.KindDevice,
		class:     "SMS_MachineSettings",
		keyField:  "ResourceID",
		listField: "MachineVariables",
		varClass:  "SMS_MachineVariable",
	}
	collectionScope = variableScope{
		kind:      resolver.KindCollection,
		class:     "SMS_CollectionSettings",
		keyField:  "CollectionID",
		listField: "CollectionVariables",
		varClass:  "SMS_CollectionVariable",
	}
)

type scopeTarget struct {
	id   string
	name string
}

type settings struct {
	exists bool
	vars   []map[string]any
}

func (s *settings) index(name string) int {
	for i, v := range s.vars {
		if n, _ := v["Name"].(string); strings.EqualFold(n, name) {
			return i
		}
	}
	return -1
}

func (c *Client) scopeTarget(ctx context.Context, scope variableScope, ref resolver.Reference) (scopeTarget, error) {
	if scope.kind == resolver.KindDevice {
		d, err := c.device(ctx, ref)
		if err != nil {
			return scopeTarget{}, err
		}
		return scopeTarget{id: strconv.FormatInt(d.ResourceID, 10), name: d.Name}, nil
	}
	col, err := c.collection(ctx, ref)
	if err != nil {
		return scopeTarget{}, err
	}
	return scopeTarget{id: col.CollectionID, name: col.Name}, nil
}

// loadSettings reads the variables of a scope. A missing settings object
// means no variables. Masked values are never returned by the server, so
// their Value key is dropped: a masked entry saved without Value keeps the
// value the server already stores.
func (c *Client) loadSettings(ctx context.Context, scope variableScope, id string) (*settings, error) {
	row, err := resolver.GetKeyed(ctx, c.api, scope.class, id, scope.kind.NumericID(), scope.kind)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return &settings{}, nil
		}
		return nil, err
	}
	s := &settings{exists: true}
	list, _ := row[scope.listField].([]any)
	for _, item := range list {
		v, ok := item.(map[string]any)
		if !ok {
			continue
		}
		shape.StripMetadata(v)
		if masked(v) {
			delete(v, "Value")
		}
		s.vars = append(s.vars, v)
	}
	return s, nil
}

func (c *Client) saveSettings(ctx context.Context, scope variableScope, id string, s *settings) error {
	vars := make([]map[string]any, 0, len(s.vars))
	for _, v := range s.vars {
		out := map[string]any{"@odata.type": odataTypePrefix + scope.varClass}
		for k, val := range v {
			out[k] = val
		}
		vars = append(vars, out)
	}

	var err error
	body := []byte(`{}`)
	if s.exists {
		body, err = sjson.SetBytes(body, scope.listField, vars)
		if err != nil {
			return ErrInvalidInput.Err(err)
		}
		_, err = c.api.Invoke(ctx, http.MethodPatch, "wmi/"+odata.Key(scope.class, id, scope.kind.NumericID()), nil, body)
		return err
	}

	if scope.kind.NumericID() {
		n, _ := strconv.ParseInt(id, 10, 64)
		body, _ = sjson.SetBytes(body, scope.keyField, n)
	} else {
		body, _ = sjson.SetBytes(body, scope.keyField, id)
	}
	body, _ = sjson.SetBytes(body, "SourceSite", c.siteCode)
	body, _ = sjson.SetBytes(body, "LocaleID", defaultLocaleID)
	body, err = sjson.SetBytes(body, scope.listField, vars)
	if err != nil {
		return ErrInvalidInput.Err(err)
	}
	_, err = c.api.Invoke(ctx, http.MethodPost, "wmi/"+scope.class, nil, body)
	return err
}

func masked(v map[string]any) bool {
	switch m := v["IsMasked"].(type) {
	case bool:
		return m
	case string:
		b, _ := strconv.ParseBool(m)
		return b
	}
	return false
}

func decodeVariable(v map[string]any) (Variable, error) {
	var out Variable
	err := shape.Decode(v, &out)
	return out, err
}

func (c *Client) getVariables(ctx context.Context, scope variableScope, ref resolver.Reference, pattern string) ([]Variable, scopeTarget, error) {
	t, err := c.scopeTarget(ctx, scope, ref)
	if err != nil {
		return nil, t, err
	}
	s, err := c.loadSettings(ctx, scope, t.id)
	if err != nil {
		return nil, t, err
	}
	out := []Variable{}
	for _, v := range s.vars {
		variable, err := decodeVariable(v)
		if err != nil {
			return nil, t, err
		}
		if pattern == "" || odata.Match(pattern, variable.Name) {
			out = append(out, variable)
		}
	}
	return out, t, nil
}

func (c *Client) newVariable(ctx context.Context, scope variableScope, ref resolver.Reference, v Variable, opts Options) (Variable, scopeTarget, error) {
	if err := validate(v); err != nil {
		return Variable{}, scopeTarget{}, err
	}
	t, err := c.scopeTarget(ctx, scope, ref)
	if err != nil {
		return Variable{}, t, err
	}
	s, err := c.loadSettings(ctx, scope, t.id)
	if err != nil {
		return Variable{}, t, err
	}
	if s.index(v.Name) >= 0 {
		return Variable{}, t, ErrVariableExists.Suffix(v.Name+" on "+scope.kind.String()+" "+t.id).With("name", v.Name)
	}
	result := v
	if result.IsMasked {
		result.Value = ""
	}
	if whatIf(ctx, opts, "create variable", scope.kind.String()+" "+t.id+" "+v.Name) {
		return result, t, nil
	}
	s.vars = append(s.vars, map[string]any{"Name": v.Name, "Value": v.Value, "IsMasked": v.IsMasked})
	if err := c.saveSettings(ctx, scope, t.id, s); err != nil {
		return Variable{}, t, err
	}
	log.Ctx(ctx).Info().Str("scope", scope.kind.String()).Str("id", t.id).Str("name", v.Name).Bool("masked", v.IsMasked).Msg("variable created")
	return result, t, nil
}

func (c *Client) setVariable(ctx context.Context, scope variableScope, ref resolver.Reference, name string, u VariableUpdate, opts Options) (Variable, scopeTarget, error) {
	if u.empty() {
		return Variable{}, scopeTarget{}, ErrNothingToUpdate.Suffix("variable")
	}
	if err := validate(Variable{Name: name}); err != nil {
		return Variable{}, scopeTarget{}, err
	}
	t, err := c.scopeTarget(ctx, scope, ref)
	if err != nil {
		return Variable{}, t, err
	}
	s, err := c.loadSettings(ctx, scope, t.id)
	if err != nil {
		return Variable{}, t, err
	}
	i := s.index(name)
	if i < 0 {
		return Variable{}, t, ErrVariableNotFound.Suffix(name + " on " + scope.kind.String() + " " + t.id)
	}
	wire := s.vars[i]
	if u.IsMasked != nil && !*u.IsMasked && masked(wire) && u.Value == nil {
		return Variable{}, t, ErrInvalidInput.Suffix("a value is required to unmask " + name)
	}
	if u.Value != nil {
		wire["Value"] = *u.Value
	}
	if u.IsMasked != nil {
		wire["IsMasked"] = *u.IsMasked
	}
	result, err := decodeVariable(wire)
	if err != nil {
		return Variable{}, t, err
	}
	if result.IsMasked {
		result.Value = ""
	}
	if whatIf(ctx, opts, "update variable", scope.kind.String()+" "+t.id+" "+name) {
		return result, t, nil
	}
	if err := c.saveSettings(ctx, scope, t.id, s); err != nil {
		return Variable{}, t, err
	}
	return result, t, nil
}

func (c *Client) removeVariables(ctx context.Context, scope variableScope, ref resolver.Reference, pattern string, opts Options) ([]Variable, scopeTarget, error) {
	if pattern == "" {
		return nil, scopeTarget{}, ErrInvalidInput.Suffix("a variable name is required")
	}
	t, err := c.scopeTarget(ctx, scope, ref)
	if err != nil {
		return nil, t, err
	}
	s, err := c.loadSettings(ctx, scope, t.id)
	if err != nil {
		return nil, t, err
	}

	var removed []Variable
	kept := make([]map[string]any, 0, len(s.vars))
	found := false
	b := c.batch(opts, "remove variable")
	for _, v := range s.vars {
		variable, err := decodeVariable(v)
		if err != nil {
			return nil, t, err
		}
		if !odata.Match(pattern, variable.Name) {
			kept = append(kept, v)
			continue
		}
		found = true
		ok, err := b.proceed(ctx, scope.kind.String()+" "+t.id+" "+variable.Name)
		if err != nil {
			return nil, t, err
		}
		if !ok {
			kept = append(kept, v)
			continue
		}
		removed = append(removed, variable)
	}
	if !found && !odata.HasWildcard(pattern) {
		return nil, t, ErrVariableNotFound.Suffix(pattern + " on " + scope.kind.String() + " " + t.id)
	}
	if len(removed) == 0 {
		return nil, t, b.err()
	}
	s.vars = kept
	if err := c.saveSettings(ctx, scope, t.id, s); err != nil {
		return nil, t, err
	}
	log.Ctx(ctx).Info().Str("scope", scope.kind.String()).Str("id", t.id).Int("removed", len(removed)).Msg("variables removed")
	if !opts.PassThru {
		return nil, t, nil
	}
	return removed, t, nil
}

func deviceVariables(vars []Variable, t scopeTarget) []DeviceVariable {
	id, _ := strconv.ParseInt(t.id, 10, 64)
	out := make([]DeviceVariable, 0, len(vars))
	for _, v := range vars {
		out = append(out, DeviceVariable{Variable: v, ResourceID: id, ResourceName: t.name})
	}
	return out
}

func collectionVariables(vars []Variable, t scopeTarget) []CollectionVariable {
	out := make([]CollectionVariable, 0, len(vars))
	for _, v := range vars {
		out = append(out, CollectionVariable{Variable: v, CollectionID: t.id, CollectionName: t.name})
	}
	return out
}

// GetDeviceVariable returns the variables of a device whose names match
// pattern (all when empty). The device must exist.
func (c *Client) GetDeviceVariable(ctx context.Context, device resolver.Reference, pattern string) ([]DeviceVariable, error) {
	vars, t, err := c.getVariables(ctx, deviceScope, device, pattern)
	if err != nil {
		return nil, err
	}
	return deviceVariables(vars, t), nil
}

// NewDeviceVariable adds a variable to a device.
func (c *Client) NewDeviceVariable(ctx context.Context, device resolver.Reference, v Variable, opts Options) (*DeviceVariable, error) {
	created, t, err := c.newVariable(ctx, deviceScope, device, v, opts)
	if err != nil {
		return nil, err
	}
	return &deviceVariables([]Variable{created}, t)[0], nil
}

// SetDeviceVariable changes the value or masking of a device variable.
func (c *Client) SetDeviceVariable(ctx context.Context, device resolver.Reference, name string, u VariableUpdate, opts Options) (*DeviceVariable, error) {
	updated, t, err := c.setVariable(ctx, deviceScope, device, name, u, opts)
	if err != nil {
		return nil, err
	}
	return &deviceVariables([]Variable{updated}, t)[0], nil
}

// RemoveDeviceVariable removes the variables of a device matching pattern.
func (c *Client) RemoveDeviceVariable(ctx context.Context, device resolver.Reference, pattern string, opts Options) ([]DeviceVariable, error) {
	removed, t, err := c.removeVariables(ctx, deviceScope, device, pattern, opts)
	if err != nil {
		return nil, err
	}
	return deviceVariables(removed, t), nil
}

// GetCollectionVariable returns the variables of a collection whose names
// match pattern (all when empty). The collection must exist.
func (c *Client) GetCollectionVariable(ctx context.Context, collection resolver.Reference, pattern string) ([]CollectionVariable, error) {
	vars, t, err := c.getVariables(ctx, collectionScope, collection, pattern)
	if err != nil {
		return nil, err
	}
	return collectionVariables(vars, t), nil
}

// NewCollectionVariable adds a variable to a collection.
func (c *Client) NewCollectionVariable(ctx context.Context, collection resolver.Reference, v Variable, opts Options) (*CollectionVariable, error) {
	created, t, err := c.newVariable(ctx, collectionScope, collection, v, opts)
	if err != nil {
		return nil, err
	}
	return &collectionVariables([]Variable{created}, t)[0], nil
}

// SetCollectionVariable changes the value or masking of a collection variable.
func (c *Client) SetCollectionVariable(ctx context.Context, collection resolver.Reference, name string, u VariableUpdate, opts Options) (*CollectionVariable, error) {
	updated, t, err := c.setVariable(ctx, collectionScope, collection, name, u, opts)
	if err != nil {
		return nil, err
	}
	return &collectionVariables([]Variable{updated}, t)[0], nil
}

// RemoveCollectionVariable removes the variables of a collection matching
// pattern.
func (c *Client) RemoveCollectionVariable(ctx context.Context, collection resolver.Reference, pattern string, opts Options) ([]CollectionVariable, error) {
	removed, t, err := c.removeVariables(ctx, collectionScope, collection, pattern, opts)
	if err != nil {
		return nil, err
	}
	return collectionVariables(removed, t), nil
}
