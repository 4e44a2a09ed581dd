package sccm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cmas-go/cmas/internal/common/httpclient"
	"github.com/cmas-go/cmas/internal/common/odata"
	"github.com/cmas-go/cmas/internal/resolver"
	"github.com/cmas-go/cmas/internal/sccm/shape"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/sjson"
)

const collectionClass = "SMS_Collection"

// defaultRefreshDays is used for periodic refresh when no interval is given.
const defaultRefreshDays = 7

// Built-in collections that cmas never deletes, renames or changes rules on.
var protectedCollections = [...]string{"SMS00001", "SMS00002", "SMS00003", "SMS00004"}

// IsProtectedCollection reports whether id is a built-in root collection.
func IsProtectedCollection(id string) bool {
	for _, p := range protectedCollections {
		if strings.EqualFold(p, id) {
			return true
		}
	}
	return false
}

func protectedError(id, name string) error {
	target := id
	if name != "" {
		target = id + " (" + name + ")"
	}
	return ErrProtectedCollection.Suffix(target).With("id", id)
}

// CollectionQuery selects collections by at most one of Name (wildcards
// allowed), ID or Object. An empty query selects every collection.
type CollectionQuery struct {
	Name   string
	ID     string
	Object resolver.Identified
}

func (q CollectionQuery) ref() (resolver.Reference, error) {
	return resolver.AtMostOneOf("collection", resolver.ByName(q.Name), resolver.ByID(q.ID), resolver.FromObject(q.Object))
}

// GetCollection returns the matching collections. A reference that matches
// nothing yields an empty result, not an error.
func (c *Client) GetCollection(ctx context.Context, q CollectionQuery) ([]Collection, error) {
	ref, err := q.ref()
	if err != nil {
		return nil, err
	}
	rows, err := c.resolver.Lookup(ctx, resolver.KindCollection, ref)
	if err != nil {
		return nil, err
	}
	return decodeCollections(rows)
}

// collection looks up exactly one collection, failing when it is missing.
func (c *Client) collection(ctx context.Context, ref resolver.Reference) (*Collection, error) {
	row, err := c.resolver.LookupOne(ctx, resolver.KindCollection, ref)
	if err != nil {
		return nil, err
	}
	var col Collection
	if err := shape.Decode(row, &col); err != nil {
		return nil, err
	}
	return &col, nil
}

// NewCollectionInput describes a collection to create. Exactly one of
// LimitingCollectionName and LimitingCollectionID is required.
type NewCollectionInput struct {
	Name                   string `validate:"required,max=255,nowildcard"`
	LimitingCollectionName string
	LimitingCollectionID   string
	CollectionType         CollectionType `validate:"omitempty,oneof=1 2"`
	RefreshType            RefreshType    `validate:"omitempty,oneof=1 2 4 6"`
	Comment                string         `validate:"max=512"`
	RefreshDays            int            `validate:"gte=0,lte=31"`
}

// NewCollection creates a collection. The limiting collection must exist and
// be of the same type, and the name must not be taken.
func (c *Client) NewCollection(ctx context.Context, in NewCollectionInput, opts Options) (*Collection, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	limitRef, err := resolver.OneOf("limiting collection", resolver.ByName(in.LimitingCollectionName), resolver.ByID(in.LimitingCollectionID))
	if err != nil {
		return nil, err
	}
	if in.CollectionType == 0 {
		in.CollectionType = CollectionTypeDevice
	}
	if in.RefreshType == 0 {
		in.RefreshType = RefreshManual
	}

	limit, err := c.collection(ctx, limitRef)
	if err != nil {
		return nil, err
	}
	if limit.CollectionType != in.CollectionType {
		return nil, ErrCollectionTypeClash.Suffix(fmt.Sprintf("%s is a %s collection", limit.CollectionID, limit.CollectionType))
	}
	if err := c.ensureCollectionNameFree(ctx, in.Name, ""); err != nil {
		return nil, err
	}

	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "Name", in.Name)
	body, _ = sjson.SetBytes(body, "CollectionType", int(in.CollectionType))
	body, _ = sjson.SetBytes(body, "LimitToCollectionID", limit.CollectionID)
	body, _ = sjson.SetBytes(body, "RefreshType", int(in.RefreshType))
	body, _ = sjson.SetBytes(body, "Comment", in.Comment)
	if in.RefreshType.periodic() {
		body, _ = setSchedule(body, in.RefreshDays)
	}

	if whatIf(ctx, opts, "create collection", in.Name) {
		return nil, nil
	}
	resp, err := c.api.Invoke(ctx, http.MethodPost, "wmi/"+collectionClass, nil, body)
	if err != nil {
		if httpclient.IsStatus(err, http.StatusConflict) {
			return nil, ErrCollectionExists.Suffix(in.Name).Err(err)
		}
		return nil, err
	}
	cols, err := decodeCollectionBody(resp)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, ErrRequestFailed.Suffix("no collection returned for " + in.Name)
	}
	log.Ctx(ctx).Info().Str("id", cols[0].CollectionID).Str("name", in.Name).Msg("collection created")
	return &cols[0], nil
}

func setSchedule(body []byte, days int) ([]byte, error) {
	if days == 0 {
		days = defaultRefreshDays
	}
	return sjson.SetBytes(body, "RefreshSchedule", []map[string]any{{
		"@odata.type": "#AdminService.SMS_ST_RecurInterval",
		"DaysSpan":    days,
		"StartTime":   time.Now().UTC().Truncate(24 * time.Hour).Format(time.RFC3339),
	}})
}

func (c *Client) ensureCollectionNameFree(ctx context.Context, name, exceptID string) error {
	rows, err := c.resolver.Lookup(ctx, resolver.KindCollection, resolver.ByName(name))
	if err != nil {
		return err
	}
	for _, row := range rows {
		id := fmt.Sprint(row["CollectionID"])
		if !strings.EqualFold(id, exceptID) {
			return ErrCollectionExists.Suffix(name+" ("+id+")").With("name", name)
		}
	}
	return nil
}

// CollectionUpdate lists the properties SetCollection changes. Nil and zero
// fields are left as they are.
type CollectionUpdate struct {
	NewName            *string
	Comment            *string
	RefreshType        *RefreshType
	RefreshDays        *int
	LimitingCollection resolver.Reference
}

func (u CollectionUpdate) empty() bool {
	return u.NewName == nil && u.Comment == nil && u.RefreshType == nil && u.RefreshDays == nil && u.LimitingCollection.IsZero()
}

// SetCollection changes properties of one collection. Built-in collections
// can not be renamed.
func (c *Client) SetCollection(ctx context.Context, ref resolver.Reference, u CollectionUpdate, opts Options) (*Collection, error) {
	if u.empty() {
		return nil, ErrNothingToUpdate.Suffix("collection")
	}
	if u.NewName != nil {
		if err := validate(struct {
			NewName string `validate:"required,max=255,nowildcard"`
		}{*u.NewName}); err != nil {
			return nil, err
		}
	}
	if u.RefreshType != nil {
		if _, ok := refreshTypeNames[*u.RefreshType]; !ok {
			return nil, ErrInvalidInput.Suffix("unknown refresh type " + u.RefreshType.String())
		}
	}
	if ref.IsZero() {
		return nil, resolver.ErrMissingReference.Suffix("collection")
	}

	col, err := c.collection(ctx, ref)
	if err != nil {
		return nil, err
	}
	if u.NewName != nil && IsProtectedCollection(col.CollectionID) {
		return nil, protectedError(col.CollectionID, col.Name)
	}

	body := []byte(`{}`)
	if u.NewName != nil && *u.NewName != col.Name {
		if err := c.ensureCollectionNameFree(ctx, *u.NewName, col.CollectionID); err != nil {
			return nil, err
		}
		body, _ = sjson.SetBytes(body, "Name", *u.NewName)
	}
	if u.Comment != nil {
		body, _ = sjson.SetBytes(body, "Comment", *u.Comment)
	}
	refresh := col.RefreshType
	if u.RefreshType != nil {
		refresh = *u.RefreshType
		body, _ = sjson.SetBytes(body, "RefreshType", int(refresh))
	}
	if refresh.periodic() && (u.RefreshDays != nil || (u.RefreshType != nil && !col.RefreshType.periodic())) {
		days := 0
		if u.RefreshDays != nil {
			days = *u.RefreshDays
		}
		body, _ = setSchedule(body, days)
	}
	if !u.LimitingCollection.IsZero() {
		limit, err := c.collection(ctx, u.LimitingCollection)
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(limit.CollectionID, col.CollectionID) {
			return nil, ErrInvalidInput.Suffix("a collection can not limit itself")
		}
		if limit.CollectionType != col.CollectionType {
			return nil, ErrCollectionTypeClash.Suffix(fmt.Sprintf("%s is a %s collection", limit.CollectionID, limit.CollectionType))
		}
		body, _ = sjson.SetBytes(body, "LimitToCollectionID", limit.CollectionID)
	}

	if whatIf(ctx, opts, "update collection", col.CollectionID) {
		return col, nil
	}
	resp, err := c.api.Invoke(ctx, http.MethodPatch, "wmi/"+odata.Key(collectionClass, col.CollectionID, false), nil, body)
	if err != nil {
		if httpclient.IsStatus(err, http.StatusConflict) {
			return nil, ErrCollectionExists.Err(err)
		}
		return nil, err
	}
	cols, err := decodeCollectionBody(resp)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return c.collection(ctx, resolver.ByID(col.CollectionID))
	}
	return &cols[0], nil
}

// RemoveCollection deletes the collections ref matches. Wildcard names may
// match several; an exact name or id that matches nothing is an error.
// Built-in collections are refused whatever the options say. The removed
// collections are returned when opts.PassThru is set.
func (c *Client) RemoveCollection(ctx context.Context, ref resolver.Reference, opts Options) ([]Collection, error) {
	if ref.IsZero() {
		return nil, resolver.ErrMissingReference.Suffix("collection")
	}
	if ref.IsID() && IsProtectedCollection(ref.Value()) {
		return nil, protectedError(ref.Value(), "")
	}

	rows, err := c.resolver.Lookup(ctx, resolver.KindCollection, ref)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 && !ref.HasWildcard() {
		return nil, resolver.NotFound(resolver.KindCollection, ref.Value())
	}
	targets, err := decodeCollections(rows)
	if err != nil {
		return nil, err
	}
	for _, col := range targets {
		if IsProtectedCollection(col.CollectionID) {
			return nil, protectedError(col.CollectionID, col.Name)
		}
	}

	var removed []Collection
	b := c.batch(opts, "remove collection")
	for _, col := range targets {
		ok, err := b.proceed(ctx, col.CollectionID+" ("+col.Name+")")
		if err != nil {
			return removed, err
		}
		if !ok {
			continue
		}
		if _, err := c.api.Invoke(ctx, http.MethodDelete, "wmi/"+odata.Key(collectionClass, col.CollectionID, false), nil, nil); err != nil {
			return removed, err
		}
		log.Ctx(ctx).Info().Str("id", col.CollectionID).Str("name", col.Name).Msg("collection removed")
		if opts.PassThru {
			removed = append(removed, col)
		}
	}
	return removed, b.err()
}

// InvokeCollectionUpdate asks the site to re-evaluate membership of a
// collection.
func (c *Client) InvokeCollectionUpdate(ctx context.Context, ref resolver.Reference, opts Options) error {
	col, err := c.collection(ctx, ref)
	if err != nil {
		return err
	}
	if whatIf(ctx, opts, "refresh collection", col.CollectionID) {
		return nil
	}
	_, err = c.api.Invoke(ctx, http.MethodPost, "wmi/"+odata.Key(collectionClass, col.CollectionID, false)+"/AdminService.RequestRefresh", nil, []byte(`{}`))
	return err
}

// GetCollectionMember lists the evaluated members of a collection.
func (c *Client) GetCollectionMember(ctx context.Context, ref resolver.Reference, namePattern string) ([]CollectionMember, error) {
	col, err := c.collection(ctx, ref)
	if err != nil {
		return nil, err
	}
	filter := odata.Eq("CollectionID", col.CollectionID)
	if namePattern != "" {
		filter = odata.And(filter, odata.WildcardFilter("Name", namePattern))
	}
	body, err := c.api.Invoke(ctx, http.MethodGet, "wmi/SMS_FullCollectionMembership", map[string]string{"$filter": filter}, nil)
	if err != nil {
		return nil, err
	}
	rows, err := shape.Records(body)
	if err != nil {
		return nil, err
	}
	members := make([]CollectionMember, 0, len(rows))
	for _, row := range rows {
		var m CollectionMember
		if err := shape.Decode(row, &m); err != nil {
			return nil, err
		}
		if namePattern != "" && !odata.Match(namePattern, m.Name) {
			continue
		}
		members = append(members, m)
	}
	return members, nil
}

func decodeCollectionBody(body []byte) ([]Collection, error) {
	rows, err := shape.Records(body)
	if err != nil {
		return nil, err
	}
	return decodeCollections(rows)
}

func decodeCollections(rows []map[string]any) ([]Collection, error) {
	cols := make([]Collection, 0, len(rows))
	for _, row := range rows {
		var col Collection
		if err := shape.Decode(row, &col); err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return cols, nil
}
