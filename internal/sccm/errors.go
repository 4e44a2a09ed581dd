package sccm

import "github.com/cmas-go/cmas/internal/common/apperrors"

var (
	ErrNotConnected         apperrors.Error = apperrors.ErrNotConnected
	ErrInvalidInput         apperrors.Error = apperrors.ErrInvalidArgument.New("invalid input")
	ErrNothingToUpdate      apperrors.Error = apperrors.ErrInvalidArgument.New("no properties to update")
	ErrProtectedCollection  apperrors.Error = apperrors.ErrProtectedResource.New("protected collection")
	ErrCollectionExists     apperrors.Error = apperrors.ErrAlreadyExists.New("collection already exists")
	ErrCollectionTypeClash  apperrors.Error = apperrors.ErrInvalidArgument.New("limiting collection has a different collection type")
	ErrRuleExists           apperrors.Error = apperrors.ErrAlreadyExists.New("membership rule already exists")
	ErrRuleNotFound         apperrors.Error = apperrors.ErrNotFound.New("membership rule not found")
	ErrVariableExists       apperrors.Error = apperrors.ErrAlreadyExists.New("variable already exists")
	ErrVariableNotFound     apperrors.Error = apperrors.ErrNotFound.New("variable not found")
	ErrScriptNotApproved    apperrors.Error = apperrors.ErrInvalidArgument.New("script is not approved")
	ErrConfirmationRequired apperrors.Error = apperrors.ErrConfirmationRequired
	ErrRequestFailed        apperrors.Error = apperrors.ErrCMAS.New("request to site server failed")
	ErrWaitTimeout          apperrors.Error = apperrors.ErrCMAS.New("gave up waiting for script execution")
)
