package cli

import "github.com/cmas-go/cmas/internal/common/apperrors"

// ErrNotConfigured is returned when a command needs a site server and none is
// configured.
var ErrNotConfigured apperrors.Error = apperrors.ErrNotConnected.New(`no site server configured; run "cmas connect" first`)

var (
	ErrMissingFlag        apperrors.Error = apperrors.ErrInvalidArgument.New("missing required flag")
	ErrNothingToChange    apperrors.Error = apperrors.ErrInvalidArgument.New("nothing to change")
	ErrInvalidResourceID  apperrors.Error = apperrors.ErrInvalidArgument.New("invalid resource ID")
	ErrInvalidOperationID apperrors.Error = apperrors.ErrInvalidArgument.New("invalid operation ID")
	ErrInvalidParameter   apperrors.Error = apperrors.ErrInvalidArgument.New("invalid parameter")
	ErrInvalidConfig      apperrors.Error = apperrors.ErrInvalidArgument.New("invalid configuration")
)
