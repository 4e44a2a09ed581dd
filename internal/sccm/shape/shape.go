// Package shape turns Admin Service responses into plain records. WMI rows
// carry __CLASS, __GENUS, __PATH and similar system properties, and OData
// adds @odata.* annotations; none of these are useful to callers.
package shape

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/tidwall/gjson"
)

// IsMetadataKey reports whether key is a WMI system property or an OData
// annotation.
func IsMetadataKey(key string) bool {
	return strings.HasPrefix(key, "__") || strings.HasPrefix(key, "@odata")
}

// StripMetadata removes metadata keys from m and from every nested object,
// in place, and returns m.
func StripMetadata(m map[string]any) map[string]any {
	for k, v := range m {
		if IsMetadataKey(k) {
			delete(m, k)
			continue
		}
		stripValue(v)
	}
	return m
}

func stripValue(v any) {
	switch t := v.(type) {
	case map[string]any:
		StripMetadata(t)
	case []any:
		for _, item := range t {
			stripValue(item)
		}
	}
}

// Rows extracts the records from a response body. The body may hold a value
// array, a single object under value, or be a bare object. Metadata is not
// stripped; keyed rows need @odata.type on nested rules.
func Rows(body []byte) ([]map[string]any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	value := gjson.GetBytes(body, "value")
	var raw string
	switch {
	case value.IsArray():
		raw = value.Raw
	case value.IsObject():
		raw = "[" + value.Raw + "]"
	default:
		raw = "[" + string(body) + "]"
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		return nil, ErrMalformedResponse.Err(err)
	}
	return rows, nil
}

// Records is Rows followed by StripMetadata on every row.
func Records(body []byte) ([]map[string]any, error) {
	rows, err := Rows(body)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		StripMetadata(r)
	}
	return rows, nil
}

// Decode copies a record into out, a pointer to a struct with mapstructure
// tags. Numbers arriving as strings or json.Number are converted.
func Decode(record map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
		DecodeHook:       numberHook,
	})
	if err != nil {
		return ErrMalformedResponse.Err(err)
	}
	if err := dec.Decode(record); err != nil {
		return ErrMalformedResponse.Err(err)
	}
	return nil
}

// numberHook unwraps json.Number so weak decoding sees a plain string.
func numberHook(_, _ reflect.Type, data any) (any, error) {
	if n, ok := data.(json.Number); ok {
		return n.String(), nil
	}
	return data, nil
}
