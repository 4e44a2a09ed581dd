package resolver

import "github.com/cmas-go/cmas/internal/common/apperrors"

var (
	ErrMissingReference      apperrors.Error = apperrors.ErrInvalidArgument.New("one of name, id or object is required")
	ErrConflictingReferences apperrors.Error = apperrors.ErrInvalidArgument.New("only one of name, id or object may be given")
	ErrWildcardNotAllowed    apperrors.Error = apperrors.ErrInvalidArgument.New("wildcards are not allowed here")
	ErrKindMismatch          apperrors.Error = apperrors.ErrInvalidArgument.New("object is of a different kind")
	ErrInvalidID             apperrors.Error = apperrors.ErrInvalidArgument.New("invalid id")
	ErrLookupFailed          apperrors.Error = apperrors.ErrCMAS.New("lookup failed")
)

// NotFound returns the not-found error for a kind, e.g.
// "collection not found: Foo".
func NotFound(kind Kind, what string) apperrors.Error {
	return apperrors.ErrNotFound.New(kind.String()+" not found").Suffix(what).
		With("kind", kind.String()).With("ref", what)
}

// Ambiguous returns the error for a name matching more than one resource.
func Ambiguous(kind Kind, name string, ids []string) apperrors.Error {
	return apperrors.ErrAmbiguousResource.New(kind.String()+" name is ambiguous").
		Suffix(name+" matches "+joinIDs(ids)).
		With("kind", kind.String()).With("ref", name)
}

func joinIDs(ids []string) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ", "
		}
		out += id
	}
	return out
}
