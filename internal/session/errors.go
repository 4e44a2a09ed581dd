package session

import "github.com/cmas-go/cmas/internal/common/apperrors"

var (
	ErrNotConnected    apperrors.Error = apperrors.ErrNotConnected
	ErrConnectFailed   apperrors.Error = apperrors.ErrConnection.New("unable to connect to site server")
	ErrInvalidSiteCode apperrors.Error = ErrConnectFailed.New("site server did not return a site code")
	ErrMissingSiteHost apperrors.Error = apperrors.ErrInvalidArgument.New("site server host is required")
)
