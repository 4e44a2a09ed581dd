package sccm

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
)

// Options control how a mutating operation is carried out.
type Options struct {
	// WhatIf reports what would be changed without changing anything.
	WhatIf bool
	// Force skips confirmation of destructive operations. It never bypasses
	// the protected collection check.
	Force bool
	// PassThru makes removals return the removed objects.
	PassThru bool
}

// Confirmer is asked before a destructive operation runs without Force.
type Confirmer interface {
	Confirm(ctx context.Context, action, target string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, action, target string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, action, target string) (bool, error) {
	return f(ctx, action, target)
}

// denyAll is the default Confirmer: without Force nothing destructive runs.
var denyAll = ConfirmFunc(func(context.Context, string, string) (bool, error) {
	return false, nil
})

// whatIf logs the skipped action and reports whether the caller should stop.
func whatIf(ctx context.Context, opts Options, action, target string) bool {
	if !opts.WhatIf {
		return false
	}
	log.Ctx(ctx).Warn().Bool("what_if", true).Str("action", action).Str("target", target).Msg("skipping change")
	return true
}

// batch tracks confirmation across the targets of one destructive action.
// A declined target is skipped; the batch fails only when every target that
// was asked about was declined.
type batch struct {
	c        *Client
	opts     Options
	action   string
	declined []string
	accepted int
}

func (c *Client) batch(opts Options, action string) *batch {
	return &batch{c: c, opts: opts, action: action}
}

// proceed applies WhatIf and then the confirmation policy to one target. It
// returns false without error when the target is skipped.
func (b *batch) proceed(ctx context.Context, target string) (bool, error) {
	if whatIf(ctx, b.opts, b.action, target) {
		return false, nil
	}
	if b.opts.Force {
		b.accepted++
		return true, nil
	}
	ok, err := b.c.confirm.Confirm(ctx, b.action, target)
	if err != nil {
		return false, err
	}
	if !ok {
		log.Ctx(ctx).Info().Str("action", b.action).Str("target", target).Msg("declined")
		b.declined = append(b.declined, target)
		return false, nil
	}
	b.accepted++
	return true, nil
}

// err reports ErrConfirmationRequired when nothing in the batch was confirmed.
func (b *batch) err() error {
	if len(b.declined) == 0 || b.accepted > 0 {
		return nil
	}
	return ErrConfirmationRequired.Suffix(b.action+" "+strings.Join(b.declined, ", ")).With("target", b.declined[0])
}
