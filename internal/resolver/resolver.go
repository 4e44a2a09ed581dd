package resolver

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cmas-go/cmas/internal/common/httpclient"
	"github.com/cmas-go/cmas/internal/common/odata"
	"github.com/cmas-go/cmas/internal/sccm/shape"
	"github.com/rs/zerolog/log"
)

// Resolver turns references into resource identifiers.
type Resolver struct {
	api httpclient.Invoker
}

// New returns a Resolver issuing lookups through api.
func New(api httpclient.Invoker) *Resolver {
	return &Resolver{api: api}
}

// ResolveOne returns the identifier of exactly one resource of kind. Ids and
// objects are returned unchanged without contacting the server. A name must
// match exactly one resource.
func (r *Resolver) ResolveOne(ctx context.Context, ref Reference, kind Kind) (string, error) {
	switch ref.form {
	case formNone:
		return "", ErrMissingReference.Suffix(kind.String())
	case formObject:
		if ref.kind != kind {
			return "", ErrKindMismatch.Suffix(fmt.Sprintf("expected %s, got %s", kind, ref.kind))
		}
		return ref.value, nil
	case formID:
		if err := validateID(kind, ref.value); err != nil {
			return "", err
		}
		return ref.value, nil
	}

	if ref.HasWildcard() {
		return "", ErrWildcardNotAllowed.Suffix(ref.value + " (use a pattern only where several " + kind.String() + "s are accepted)")
	}
	rows, err := r.query(ctx, kind, odata.Eq(kind.NameField(), ref.value), kind.IDField()+","+kind.NameField())
	if err != nil {
		return "", err
	}
	ids := idsOf(kind, rows)
	switch len(ids) {
	case 0:
		return "", NotFound(kind, ref.value)
	case 1:
		return ids[0], nil
	default:
		return "", Ambiguous(kind, ref.value, ids)
	}
}

// ResolveMany returns the identifiers of every resource of kind matching ref.
// Ids and objects yield a single element without contacting the server. No
// match is not an error.
func (r *Resolver) ResolveMany(ctx context.Context, ref Reference, kind Kind) ([]string, error) {
	if ref.IsID() {
		id, err := r.ResolveOne(ctx, ref, kind)
		if err != nil {
			return nil, err
		}
		return []string{id}, nil
	}
	if ref.IsZero() {
		return nil, ErrMissingReference.Suffix(kind.String())
	}
	rows, err := r.Lookup(ctx, kind, ref)
	if err != nil {
		return nil, err
	}
	return idsOf(kind, rows), nil
}

// Lookup returns the full records of kind matched by ref, metadata stripped.
// The zero Reference matches every resource. Name patterns are narrowed on
// the server and then matched exactly here.
func (r *Resolver) Lookup(ctx context.Context, kind Kind, ref Reference) ([]map[string]any, error) {
	var filter string
	switch ref.form {
	case formNone:
	case formName:
		filter = odata.WildcardFilter(kind.NameField(), ref.value)
	case formID, formObject:
		id, err := r.ResolveOne(ctx, ref, kind)
		if err != nil {
			return nil, err
		}
		filter = idFilter(kind, id)
	}

	rows, err := r.query(ctx, kind, filter, "")
	if err != nil {
		return nil, err
	}
	if !ref.IsName() {
		return rows, nil
	}
	glob := odata.Glob(ref.value)
	matched := rows[:0]
	for _, row := range rows {
		if glob.MatchString(fmt.Sprint(row[kind.NameField()])) {
			matched = append(matched, row)
		}
	}
	return matched, nil
}

// Get fetches a single record by key with a keyed request, which is how
// lazy properties such as CollectionRules are returned. A missing resource
// is reported as not found.
func (r *Resolver) Get(ctx context.Context, kind Kind, id string) (map[string]any, error) {
	return GetKeyed(ctx, r.api, kind.Class(), id, kind.NumericID(), kind)
}

// GetKeyed is Get for classes that are not resolvable kinds, such as the
// settings classes. kind names the resource in the not-found error.
func GetKeyed(ctx context.Context, api httpclient.Invoker, class, id string, numeric bool, kind Kind) (map[string]any, error) {
	body, err := api.Invoke(ctx, http.MethodGet, "wmi/"+odata.Key(class, id, numeric), nil, nil)
	if err != nil {
		if httpclient.IsStatus(err, http.StatusNotFound) {
			return nil, NotFound(kind, id).Err(err)
		}
		return nil, ErrLookupFailed.MsgErr(kind.String()+" lookup failed", err).Suffix(err.Error())
	}
	rows, err := shape.Rows(body)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, NotFound(kind, id)
	}
	return rows[0], nil
}

func (r *Resolver) query(ctx context.Context, kind Kind, filter, sel string) ([]map[string]any, error) {
	q := map[string]string{}
	if filter != "" {
		q["$filter"] = filter
	}
	if sel != "" {
		q["$select"] = sel
	}
	body, err := r.api.Invoke(ctx, http.MethodGet, "wmi/"+kind.Class(), q, nil)
	if err != nil {
		return nil, ErrLookupFailed.MsgErr(kind.String()+" lookup failed", err).Suffix(err.Error())
	}
	rows, err := shape.Records(body)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("kind", kind.String()).Str("filter", filter).Int("matches", len(rows)).Msg("resolved")
	return rows, nil
}

func idFilter(kind Kind, id string) string {
	if kind.NumericID() {
		return kind.IDField() + " eq " + id
	}
	return odata.Eq(kind.IDField(), id)
}

func idsOf(kind Kind, rows []map[string]any) []string {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if v, ok := row[kind.IDField()]; ok && v != nil {
			ids = append(ids, strings.TrimSpace(fmt.Sprint(v)))
		}
	}
	return ids
}

// LookupOne returns the record of the single resource ref identifies. Unlike
// ResolveOne it always asks the server, so an id that does not exist is
// reported as not found.
func (r *Resolver) LookupOne(ctx context.Context, kind Kind, ref Reference) (map[string]any, error) {
	if ref.IsZero() {
		return nil, ErrMissingReference.Suffix(kind.String())
	}
	if ref.HasWildcard() {
		return nil, ErrWildcardNotAllowed.Suffix(ref.value)
	}
	rows, err := r.Lookup(ctx, kind, ref)
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, NotFound(kind, ref.value)
	case 1:
		return rows[0], nil
	default:
		return nil, Ambiguous(kind, ref.value, idsOf(kind, rows))
	}
}
