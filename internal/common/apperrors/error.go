// Package apperrors provides the chained error type used across cmas. An Error
// carries a stable message, the chain of errors it was derived from (so that
// errors.Is matches any ancestor sentinel), optional context fields naming the
// resource being worked on, and the process exit code the CLI should use.
package apperrors

// Error defines the interface for application errors. All derivation methods
// return a new Error and leave the receiver untouched, so package-level
// sentinels can be shared safely.
type Error interface {
	error
	Unwrap() error // support for errors.Is / errors.As

	New(msg string) Error                  // fresh message, current error becomes the base
	Msg(msg string) Error                  // new message, wraps the current error
	MsgErr(msg string, err ...error) Error // new message, wraps current and extra errors
	Err(err ...error) Error                // same message, attaches extra errors
	With(key, value string) Error          // attaches a context field (kind, name, id)
	Fields() map[string]string             // returns the attached context fields
	SetExitCode(int) Error                 // sets the CLI exit code
	ExitCode() int                         // returns the exit code, 1 when unset
	Prefix(string) Error                   // adds a prefix to the message
	Suffix(string) Error                   // adds a suffix to the message
	ErrorAll() string                      // message followed by every wrapped error
	UnwrapAll() []error                    // all wrapped errors
}
