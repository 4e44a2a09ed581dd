package sccm

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/cmas-go/cmas/internal/common/odata"
	"github.com/cmas-go/cmas/internal/resolver"
	"github.com/cmas-go/cmas/internal/sccm/shape"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/sjson"
)

// RuleType is the kind of a collection membership rule.
type RuleType string

const (
	RuleDirect  RuleType = "Direct"
	RuleQuery   RuleType = "Query"
	RuleInclude RuleType = "Include"
	RuleExclude RuleType = "Exclude"
)

var ruleClasses = map[RuleType]string{
	RuleDirect:  "SMS_CollectionRuleDirect",
	RuleQuery:   "SMS_CollectionRuleQuery",
	RuleInclude: "SMS_CollectionRuleIncludeCollection",
	RuleExclude: "SMS_CollectionRuleExcludeCollection",
}

const odataTypePrefix = "#AdminService."

// ParseRuleType accepts Direct, Query, Include or Exclude, ignoring case.
func ParseRuleType(s string) (RuleType, error) {
	for t := range ruleClasses {
		if strings.EqualFold(string(t), s) {
			return t, nil
		}
	}
	return "", ErrInvalidInput.Suffix("rule type must be Direct, Query, Include or Exclude: " + s)
}

// MembershipRule is one of DirectRule, QueryRule, IncludeRule or ExcludeRule.
type MembershipRule interface {
	Type() RuleType
	Name() string
	ParentCollectionID() string
	raw() map[string]any
}

type ruleBase struct {
	RuleType     RuleType `json:"RuleType"`
	CollectionID string   `json:"CollectionID"`
	RuleName     string   `json:"RuleName"`

	wire map[string]any
}

func (r *ruleBase) Type() RuleType             { return r.RuleType }
func (r *ruleBase) Name() string               { return r.RuleName }
func (r *ruleBase) ParentCollectionID() string { return r.CollectionID }
func (r *ruleBase) raw() map[string]any        { return r.wire }

// DirectRule adds a single resource.
type DirectRule struct {
	ruleBase
	ResourceID        int64  `json:"ResourceID" mapstructure:"ResourceID"`
	ResourceClassName string `json:"ResourceClassName" mapstructure:"ResourceClassName"`
}

// QueryRule adds the resources a WQL query returns.
type QueryRule struct {
	ruleBase
	QueryExpression string `json:"QueryExpression" mapstructure:"QueryExpression"`
	QueryID         int    `json:"QueryID" mapstructure:"QueryID"`
}

// IncludeRule adds the members of another collection.
type IncludeRule struct {
	ruleBase
	IncludeCollectionID string `json:"IncludeCollectionID" mapstructure:"IncludeCollectionID"`
}

// ExcludeRule removes the members of another collection.
type ExcludeRule struct {
	ruleBase
	ExcludeCollectionID string `json:"ExcludeCollectionID" mapstructure:"ExcludeCollectionID"`
}

// parseRule decodes a CollectionRules entry using its @odata.type.
func parseRule(collectionID string, wire map[string]any) (MembershipRule, error) {
	class := strings.TrimPrefix(fmt.Sprint(wire["@odata.type"]), odataTypePrefix)
	base := ruleBase{CollectionID: collectionID, wire: wire}
	if name, ok := wire["RuleName"].(string); ok {
		base.RuleName = name
	}
	var rule MembershipRule
	var err error
	switch class {
	case ruleClasses[RuleDirect]:
		r := &DirectRule{}
		err = shape.Decode(wire, r)
		r.ruleBase = withType(base, RuleDirect)
		rule = r
	case ruleClasses[RuleQuery]:
		r := &QueryRule{}
		err = shape.Decode(wire, r)
		r.ruleBase = withType(base, RuleQuery)
		rule = r
	case ruleClasses[RuleInclude]:
		r := &IncludeRule{}
		err = shape.Decode(wire, r)
		r.ruleBase = withType(base, RuleInclude)
		rule = r
	case ruleClasses[RuleExclude]:
		r := &ExcludeRule{}
		err = shape.Decode(wire, r)
		r.ruleBase = withType(base, RuleExclude)
		rule = r
	default:
		return nil, shape.ErrMalformedResponse.Suffix("unknown membership rule type " + class)
	}
	if err != nil {
		return nil, err
	}
	return rule, nil
}

func withType(b ruleBase, t RuleType) ruleBase {
	b.RuleType = t
	return b
}

// target identifies what a rule points at, for duplicate detection.
func target(r MembershipRule) string {
	switch v := r.(type) {
	case *DirectRule:
		return strconv.FormatInt(v.ResourceID, 10)
	case *IncludeRule:
		return strings.ToUpper(v.IncludeCollectionID)
	case *ExcludeRule:
		return strings.ToUpper(v.ExcludeCollectionID)
	}
	return strings.ToLower(r.Name())
}

// RuleFilter narrows GetCollectionMembershipRule and selects the rules
// RemoveCollectionMembershipRule deletes. RuleName may contain wildcards.
type RuleFilter struct {
	Type     RuleType
	RuleName string
}

func (f RuleFilter) matches(r MembershipRule) bool {
	if f.Type != "" && f.Type != r.Type() {
		return false
	}
	return f.RuleName == "" || odata.Match(f.RuleName, r.Name())
}

// RuleSpec describes a rule to add. Use DirectRuleSpec, QueryRuleSpec,
// IncludeRuleSpec or ExcludeRuleSpec to build one.
type RuleSpec struct {
	Type            RuleType
	RuleName        string
	Device          resolver.Reference
	Collection      resolver.Reference
	QueryExpression string
}

// DirectRuleSpec adds device; the rule is named after the device.
func DirectRuleSpec(device resolver.Reference) RuleSpec {
	return RuleSpec{Type: RuleDirect, Device: device}
}

// QueryRuleSpec adds the result of a WQL query.
func QueryRuleSpec(name, expression string) RuleSpec {
	return RuleSpec{Type: RuleQuery, RuleName: name, QueryExpression: expression}
}

// IncludeRuleSpec includes the members of another collection.
func IncludeRuleSpec(collection resolver.Reference) RuleSpec {
	return RuleSpec{Type: RuleInclude, Collection: collection}
}

// ExcludeRuleSpec excludes the members of another collection.
func ExcludeRuleSpec(collection resolver.Reference) RuleSpec {
	return RuleSpec{Type: RuleExclude, Collection: collection}
}

func (s RuleSpec) check() error {
	switch s.Type {
	case RuleDirect:
		if s.Device.IsZero() {
			return ErrInvalidInput.Suffix("a direct rule needs a device")
		}
		if s.Device.HasWildcard() {
			return resolver.ErrWildcardNotAllowed.Suffix(s.Device.Value())
		}
	case RuleQuery:
		if s.RuleName == "" || strings.TrimSpace(s.QueryExpression) == "" {
			return ErrInvalidInput.Suffix("a query rule needs a name and a query expression")
		}
	case RuleInclude, RuleExclude:
		if s.Collection.IsZero() {
			return ErrInvalidInput.Suffix("an " + strings.ToLower(string(s.Type)) + " rule needs a collection")
		}
		if s.Collection.HasWildcard() {
			return resolver.ErrWildcardNotAllowed.Suffix(s.Collection.Value())
		}
	default:
		return ErrInvalidInput.Suffix("unknown rule type " + string(s.Type))
	}
	return nil
}

// GetCollectionMembershipRule returns the rules of a collection matching f.
// The collection must exist.
func (c *Client) GetCollectionMembershipRule(ctx context.Context, collectionRef resolver.Reference, f RuleFilter) ([]MembershipRule, error) {
	col, err := c.collection(ctx, collectionRef)
	if err != nil {
		return nil, err
	}
	rules, err := c.rules(ctx, col.CollectionID)
	if err != nil {
		return nil, err
	}
	out := make([]MembershipRule, 0, len(rules))
	for _, r := range rules {
		if f.matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (c *Client) rules(ctx context.Context, collectionID string) ([]MembershipRule, error) {
	row, err := c.resolver.Get(ctx, resolver.KindCollection, collectionID)
	if err != nil {
		return nil, err
	}
	list, _ := row["CollectionRules"].([]any)
	rules := make([]MembershipRule, 0, len(list))
	for _, item := range list {
		wire, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rule, err := parseRule(collectionID, wire)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// AddCollectionMembershipRule adds a rule to a collection. Rules of built-in
// collections can not be changed, and a rule pointing at the same device or
// collection (or a query rule of the same name) must not already exist.
func (c *Client) AddCollectionMembershipRule(ctx context.Context, collectionRef resolver.Reference, spec RuleSpec, opts Options) (MembershipRule, error) {
	if err := spec.check(); err != nil {
		return nil, err
	}
	col, err := c.collection(ctx, collectionRef)
	if err != nil {
		return nil, err
	}
	if IsProtectedCollection(col.CollectionID) {
		return nil, protectedError(col.CollectionID, col.Name)
	}

	wire := map[string]any{"@odata.type": odataTypePrefix + ruleClasses[spec.Type]}
	name := spec.RuleName
	switch spec.Type {
	case RuleDirect:
		row, err := c.resolver.LookupOne(ctx, resolver.KindDevice, spec.Device)
		if err != nil {
			return nil, err
		}
		var dev Device
		if err := shape.Decode(row, &dev); err != nil {
			return nil, err
		}
		if name == "" {
			name = dev.Name
		}
		wire["ResourceClassName"] = "SMS_R_System"
		wire["ResourceID"] = dev.ResourceID
	case RuleQuery:
		wire["QueryExpression"] = spec.QueryExpression
	case RuleInclude, RuleExclude:
		other, err := c.collection(ctx, spec.Collection)
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(other.CollectionID, col.CollectionID) {
			return nil, ErrInvalidInput.Suffix("a collection can not " + strings.ToLower(string(spec.Type)) + " itself")
		}
		if name == "" {
			name = other.Name
		}
		wire[string(spec.Type)+"CollectionID"] = other.CollectionID
	}
	wire["RuleName"] = name

	rule, err := parseRule(col.CollectionID, wire)
	if err != nil {
		return nil, err
	}
	existing, err := c.rules(ctx, col.CollectionID)
	if err != nil {
		return nil, err
	}
	for _, e := range existing {
		if e.Type() == rule.Type() && target(e) == target(rule) {
			return nil, ErrRuleExists.Suffix(fmt.Sprintf("%s rule %q on %s", rule.Type(), e.Name(), col.CollectionID))
		}
	}

	if whatIf(ctx, opts, "add membership rule", col.CollectionID+" "+name) {
		return rule, nil
	}
	if err := c.ruleAction(ctx, col.CollectionID, "AddMembershipRule", wire); err != nil {
		return nil, err
	}
	log.Ctx(ctx).Info().Str("collection", col.CollectionID).Str("rule", name).Str("type", string(spec.Type)).Msg("membership rule added")
	return rule, nil
}

// RemoveCollectionMembershipRule deletes the rules of a collection that
// match f. A filter without wildcards that matches nothing is an error. The
// removed rules are returned when opts.PassThru is set.
func (c *Client) RemoveCollectionMembershipRule(ctx context.Context, collectionRef resolver.Reference, f RuleFilter, opts Options) ([]MembershipRule, error) {
	if f.RuleName == "" && f.Type == "" {
		return nil, ErrInvalidInput.Suffix("a rule name or rule type is required")
	}
	col, err := c.collection(ctx, collectionRef)
	if err != nil {
		return nil, err
	}
	if IsProtectedCollection(col.CollectionID) {
		return nil, protectedError(col.CollectionID, col.Name)
	}
	rules, err := c.rules(ctx, col.CollectionID)
	if err != nil {
		return nil, err
	}
	var matched []MembershipRule
	for _, r := range rules {
		if f.matches(r) {
			matched = append(matched, r)
		}
	}
	if len(matched) == 0 && !odata.HasWildcard(f.RuleName) {
		return nil, ErrRuleNotFound.Suffix(fmt.Sprintf("%q on %s", f.RuleName, col.CollectionID))
	}

	var removed []MembershipRule
	b := c.batch(opts, "remove membership rule")
	for _, r := range matched {
		ok, err := b.proceed(ctx, col.CollectionID+" "+r.Name())
		if err != nil {
			return removed, err
		}
		if !ok {
			continue
		}
		if err := c.ruleAction(ctx, col.CollectionID, "DeleteMembershipRule", r.raw()); err != nil {
			return removed, err
		}
		log.Ctx(ctx).Info().Str("collection", col.CollectionID).Str("rule", r.Name()).Msg("membership rule removed")
		if opts.PassThru {
			removed = append(removed, r)
		}
	}
	return removed, b.err()
}

func (c *Client) ruleAction(ctx context.Context, collectionID, action string, wire map[string]any) error {
	body, err := sjson.SetBytes([]byte(`{}`), "collectionRule", wire)
	if err != nil {
		return ErrInvalidInput.Err(err)
	}
	path := "wmi/" + odata.Key(collectionClass, collectionID, false) + "/AdminService." + action
	_, err = c.api.Invoke(ctx, http.MethodPost, path, nil, body)
	return err
}
