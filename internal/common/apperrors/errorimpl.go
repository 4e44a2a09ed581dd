package apperrors

import (
	"errors"
	"sort"
	"strings"
)

// appError implements Error.
type appError struct {
	msg           string
	base          error
	wrappedErrors []error
	fields        map[string]string
	exitCode      int
	prefix        string
	suffix        string
	origin        *appError // set on decorated copies
}

// identity is the error a decorated copy was made from, or e itself.
func (e *appError) identity() *appError {
	if e.origin != nil {
		return e.origin
	}
	return e
}

// decorate returns a shallow copy that still matches e under errors.Is.
func (e *appError) decorate() *appError {
	cp := *e
	cp.origin = e.identity()
	return &cp
}

// Error returns the message decorated with prefix and suffix.
func (e *appError) Error() string {
	msg := e.msg
	if e.prefix != "" {
		msg = e.prefix + ": " + msg
	}
	if e.suffix != "" {
		msg = msg + ": " + e.suffix
	}
	return msg
}

// ErrorAll returns the message followed by the messages of errors attached with
// Err or MsgErr that are not already part of the ancestor chain.
func (e *appError) ErrorAll() string {
	var b strings.Builder
	b.WriteString(e.Error())
	for _, err := range e.wrappedErrors {
		if errors.Is(e.base, err) {
			continue
		}
		b.WriteString("; ")
		b.WriteString(err.Error())
	}
	return b.String()
}

func (e *appError) Unwrap() error {
	return e.base
}

func (e *appError) UnwrapAll() []error {
	return e.wrappedErrors
}

func (e *appError) Msg(msg string) Error {
	return &appError{
		msg:           msg,
		base:          e,
		wrappedErrors: append([]error{e}, e.wrappedErrors...),
		fields:        copyFields(e.fields),
		exitCode:      e.exitCode,
	}
}

func (e *appError) New(msg string) Error {
	return &appError{
		msg:      msg,
		base:     e,
		exitCode: e.exitCode,
	}
}

func (e *appError) MsgErr(msg string, errs ...error) Error {
	all := append([]error{e}, nonNil(errs)...)
	return &appError{
		msg:           msg,
		base:          e,
		wrappedErrors: all,
		fields:        copyFields(e.fields),
		exitCode:      e.exitCode,
	}
}

// Err keeps the message and prefix/suffix of the receiver and attaches errs.
func (e *appError) Err(errs ...error) Error {
	all := append([]error{e}, nonNil(errs)...)
	return &appError{
		msg:           e.msg,
		base:          e,
		wrappedErrors: all,
		fields:        copyFields(e.fields),
		exitCode:      e.exitCode,
		prefix:        e.prefix,
		suffix:        e.suffix,
	}
}

func (e *appError) With(key, value string) Error {
	cp := e.decorate()
	cp.fields = copyFields(e.fields)
	cp.fields[key] = value
	return cp
}

// Fields returns a copy of the context fields.
func (e *appError) Fields() map[string]string {
	return copyFields(e.fields)
}

func (e *appError) Prefix(p string) Error {
	cp := e.decorate()
	cp.prefix = p
	return cp
}

func (e *appError) Suffix(s string) Error {
	cp := e.decorate()
	cp.suffix = s
	return cp
}

func (e *appError) SetExitCode(code int) Error {
	cp := e.decorate()
	cp.exitCode = code
	return cp
}

func (e *appError) ExitCode() int {
	if e.exitCode == 0 {
		return 1
	}
	return e.exitCode
}

// FieldString renders the context fields as sorted key=value pairs.
func FieldString(err Error) string {
	fields := err.Fields()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+fields[k])
	}
	return strings.Join(parts, " ")
}

// New creates a root-level error with the given message.
func New(msg string) Error {
	return &appError{
		msg: msg,
	}
}

// Is reports whether target is the base chain or any wrapped error.
func (e *appError) Is(target error) bool {
	if target == nil {
		return false
	}
	if t, ok := target.(*appError); ok && t.identity() == e.identity() {
		return true
	}
	if errors.Is(e.base, target) {
		return true
	}
	for _, err := range e.wrappedErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// As lets errors.As find typed errors attached with Err or MsgErr, such as an
// *httpclient.APIError behind a connection error.
func (e *appError) As(target any) bool {
	for _, err := range e.wrappedErrors {
		if errors.As(err, target) {
			return true
		}
	}
	return false
}

func copyFields(in map[string]string) map[string]string {
	out := make(map[string]string, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func nonNil(errs []error) []error {
	out := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}
