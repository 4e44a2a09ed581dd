package cli

import (
	"strconv"
	"strings"

	"github.com/cmas-go/cmas/internal/resolver"
	"github.com/spf13/cobra"
)

// refFlags binds a --name/--id pair naming one kind of resource.
type refFlags struct {
	prefix string
	name   string
	id     string
}

func (f *refFlags) bind(cmd *cobra.Command, prefix, noun string) {
	f.prefix = prefix
	cmd.Flags().StringVar(&f.name, flagName(prefix, "name"), "", noun+" name")
	cmd.Flags().StringVar(&f.id, flagName(prefix, "id"), "", noun+" ID")
}

// ref returns the reference the flags describe. It is zero when neither
// flag was given.
func (f *refFlags) ref() (resolver.Reference, error) {
	return resolver.AtMostOneOf(f.prefixOr("resource"), resolver.ByName(f.name), resolver.ByID(f.id))
}

// required is ref, but exactly one flag must be given.
func (f *refFlags) required() (resolver.Reference, error) {
	return resolver.OneOf(f.prefixOr("resource"), resolver.ByName(f.name), resolver.ByID(f.id))
}

func (f *refFlags) prefixOr(def string) string {
	if f.prefix == "" {
		return def
	}
	return f.prefix
}

func flagName(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "-" + name
}

// parseResourceIDs splits a comma separated list of resource IDs.
func parseResourceIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, ErrInvalidResourceID.Suffix(strconv.Quote(part))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseParams turns key=value pairs into a map.
func parseParams(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, ErrInvalidParameter.Suffix(strconv.Quote(p) + ", expected name=value")
		}
		params[strings.TrimSpace(k)] = v
	}
	return params, nil
}
