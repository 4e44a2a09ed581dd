package resolver

import (
	"strconv"
	"strings"

	"github.com/cmas-go/cmas/internal/common/odata"
	"github.com/google/uuid"
)

// Identified is implemented by resource values returned from earlier calls so
// they can be passed back as references.
type Identified interface {
	ResourceKind() Kind
	ResourceIdentifier() string
}

type form int

const (
	formNone form = iota
	formName
	formID
	formObject
)

// Reference identifies one resource, or a set of them when it is a name with
// wildcards. It is exactly one of a name, an id or a previously returned
// object; the zero value identifies nothing.
type Reference struct {
	form  form
	value string
	kind  Kind
}

// ByName references resources by display name. '*' and '?' are wildcards.
// An empty name yields the zero Reference.
func ByName(name string) Reference {
	if name == "" {
		return Reference{}
	}
	return Reference{form: formName, value: name}
}

// ByID references a resource by its key. An empty id yields the zero
// Reference.
func ByID(id string) Reference {
	if id == "" {
		return Reference{}
	}
	return Reference{form: formID, value: id}
}

// FromObject references a resource previously returned by cmas. A nil object
// yields the zero Reference.
func FromObject(obj Identified) Reference {
	if obj == nil {
		return Reference{}
	}
	return Reference{form: formObject, value: obj.ResourceIdentifier(), kind: obj.ResourceKind()}
}

// IsZero reports whether r identifies nothing.
func (r Reference) IsZero() bool { return r.form == formNone }

// IsName reports whether r is a name reference.
func (r Reference) IsName() bool { return r.form == formName }

// IsID reports whether r is an id or object reference, which resolve without a lookup.
func (r Reference) IsID() bool { return r.form == formID || r.form == formObject }

// Value returns the name or id.
func (r Reference) Value() string { return r.value }

// HasWildcard reports whether r is a name containing wildcards.
func (r Reference) HasWildcard() bool {
	return r.form == formName && odata.HasWildcard(r.value)
}

func (r Reference) String() string {
	switch r.form {
	case formName:
		return "name " + strconv.Quote(r.value)
	case formID:
		return "id " + r.value
	case formObject:
		return r.kind.String() + " " + r.value
	}
	return "no reference"
}

// OneOf returns the single non-zero reference among refs. Supplying none, or
// more than one, is an invalid argument; param names the logical parameter in
// the error message.
func OneOf(param string, refs ...Reference) (Reference, error) {
	ref, err := AtMostOneOf(param, refs...)
	if err != nil {
		return Reference{}, err
	}
	if ref.IsZero() {
		return Reference{}, ErrMissingReference.Suffix(param)
	}
	return ref, nil
}

// AtMostOneOf is OneOf that also accepts no reference at all, returning the
// zero Reference.
func AtMostOneOf(param string, refs ...Reference) (Reference, error) {
	var found Reference
	for _, r := range refs {
		if r.IsZero() {
			continue
		}
		if !found.IsZero() {
			return Reference{}, ErrConflictingReferences.Suffix(param)
		}
		found = r
	}
	return found, nil
}

// validateID checks that id has the key format of kind.
func validateID(kind Kind, id string) error {
	switch kind {
	case KindDevice:
		if n, err := strconv.ParseInt(id, 10, 64); err != nil || n <= 0 {
			return ErrInvalidID.Suffix("device resource id must be a positive integer: " + id)
		}
	case KindScript:
		if _, err := uuid.Parse(id); err != nil {
			return ErrInvalidID.Suffix("script id must be a GUID: " + id)
		}
	case KindCollection:
		if len(id) != 8 || strings.ContainsAny(id, " '*?") {
			return ErrInvalidID.Suffix("collection id must be 8 characters: " + id)
		}
	}
	return nil
}
