package shape

import "github.com/cmas-go/cmas/internal/common/apperrors"

var ErrMalformedResponse apperrors.Error = apperrors.ErrCMAS.New("malformed response from site server")
