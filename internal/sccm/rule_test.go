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

func TestMembershipRules(t *testing.T) {
	c, inv, srv := newClient(t)
	ctx := context.Background()
	srv.AddCollection("PS100020", "Pilot", 2, "")
	srv.AddCollection("PS100021", "Excluded", 2, "")
	pilot := resolver.ByName("Pilot")

	rule, err := c.AddCollectionMembershipRule(ctx, pilot, DirectRuleSpec(resolver.ByName("WKS001")), Options{})
	require.NoError(t, err)
	direct, ok := rule.(*DirectRule)
	require.True(t, ok)
	assert.Equal(t, "WKS001", direct.Name())
	assert.Equal(t, int64(fakesccm.DeviceWKS001), direct.ResourceID)
	assert.Equal(t, "PS100020", direct.ParentCollectionID())

	_, err = c.AddCollectionMembershipRule(ctx, pilot, DirectRuleSpec(resolver.ByID("16777220")), Options{})
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)

	_, err = c.AddCollectionMembershipRule(ctx, pilot, QueryRuleSpec("Servers", "select * from SMS_R_System where Name like 'SRV%'"), Options{})
	require.NoError(t, err)
	_, err = c.AddCollectionMembershipRule(ctx, pilot, IncludeRuleSpec(resolver.ByID(fakesccm.AllSystems)), Options{})
	require.NoError(t, err)
	_, err = c.AddCollectionMembershipRule(ctx, pilot, ExcludeRuleSpec(resolver.ByName("Excluded")), Options{})
	require.NoError(t, err)

	rules, err := c.GetCollectionMembershipRule(ctx, pilot, RuleFilter{})
	require.NoError(t, err)
	require.Len(t, rules, 4)
	assert.Equal(t, RuleQuery, rules[1].Type())
	assert.Equal(t, "All Systems", rules[2].Name())
	assert.Equal(t, fakesccm.AllSystems, rules[2].(*IncludeRule).IncludeCollectionID)
	assert.Equal(t, "PS100021", rules[3].(*ExcludeRule).ExcludeCollectionID)

	rules, err = c.GetCollectionMembershipRule(ctx, pilot, RuleFilter{Type: RuleDirect})
	require.NoError(t, err)
	require.Len(t, rules, 1)

	members, err := c.GetCollectionMember(ctx, pilot, "")
	require.NoError(t, err)
	assert.Len(t, members, 1)

	out, err := json.Marshal(rules[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"RuleType":"Direct","CollectionID":"PS100020","RuleName":"WKS001","ResourceID":16777220,"ResourceClassName":"SMS_R_System"}`, string(out))

	removed, err := c.RemoveCollectionMembershipRule(ctx, pilot, RuleFilter{RuleName: "wks001"}, Options{Force: true, PassThru: true})
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, RuleDirect, removed[0].Type())

	rules, err = c.GetCollectionMembershipRule(ctx, pilot, RuleFilter{})
	require.NoError(t, err)
	assert.Len(t, rules, 3)

	_, err = c.RemoveCollectionMembershipRule(ctx, pilot, RuleFilter{RuleName: "WKS001"}, force)
	assert.ErrorIs(t, err, ErrRuleNotFound)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	removed, err = c.RemoveCollectionMembershipRule(ctx, pilot, RuleFilter{Type: RuleExclude}, Options{WhatIf: true, PassThru: true})
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.Equal(t, 1, callsWith(srv, "POST wmi/SMS_Collection('PS100020')/AdminService.DeleteMembershipRule"))

	before := inv.calls.Load()
	_, err = c.RemoveCollectionMembershipRule(ctx, pilot, RuleFilter{}, force)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	_, err = c.AddCollectionMembershipRule(ctx, pilot, RuleSpec{Type: RuleQuery, RuleName: "no query"}, Options{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	_, err = c.AddCollectionMembershipRule(ctx, pilot, DirectRuleSpec(resolver.ByName("WKS*")), Options{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	assert.Equal(t, before, inv.calls.Load())
}

func TestMembershipRuleErrors(t *testing.T) {
	c, _, srv := newClient(t)
	ctx := context.Background()
	srv.AddCollection("PS100020", "Pilot", 2, "")

	_, err := c.AddCollectionMembershipRule(ctx, resolver.ByID(fakesccm.AllSystems), DirectRuleSpec(resolver.ByName("WKS001")), force)
	assert.ErrorIs(t, err, apperrors.ErrProtectedResource)

	_, err = c.RemoveCollectionMembershipRule(ctx, resolver.ByID(fakesccm.AllUsers), RuleFilter{RuleName: "*"}, force)
	assert.ErrorIs(t, err, apperrors.ErrProtectedResource)

	_, err = c.GetCollectionMembershipRule(ctx, resolver.ByName("Missing"), RuleFilter{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = c.AddCollectionMembershipRule(ctx, resolver.ByID("PS100020"), DirectRuleSpec(resolver.ByName("NOPE01")), Options{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = c.AddCollectionMembershipRule(ctx, resolver.ByID("PS100020"), IncludeRuleSpec(resolver.ByID("PS100020")), Options{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	rule, err := c.AddCollectionMembershipRule(ctx, resolver.ByID("PS100020"), DirectRuleSpec(resolver.ByName("SRV001")), Options{WhatIf: true})
	require.NoError(t, err)
	assert.Equal(t, "SRV001", rule.Name())
	assert.Zero(t, callsWith(srv, "POST wmi/SMS_Collection('PS100020')/AdminService.AddMembershipRule"))

	rt, err := ParseRuleType("include")
	require.NoError(t, err)
	assert.Equal(t, RuleInclude, rt)
	_, err = ParseRuleType("sideways")
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}
