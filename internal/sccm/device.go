package sccm

import (
	"context"
	"strconv"

	"github.com/cmas-go/cmas/internal/resolver"
	"github.com/cmas-go/cmas/internal/sccm/shape"
)

// DeviceQuery selects devices by at most one of Name (wildcards allowed),
// ResourceID or Object. An empty query selects every device.
type DeviceQuery struct {
	Name       string
	ResourceID int64
	Object     resolver.Identified
}

func (q DeviceQuery) ref() (resolver.Reference, error) {
	id := ""
	if q.ResourceID != 0 {
		id = strconv.FormatInt(q.ResourceID, 10)
	}
	return resolver.AtMostOneOf("device", resolver.ByName(q.Name), resolver.ByID(id), resolver.FromObject(q.Object))
}

// GetDevice returns the matching devices. Nothing matching is not an error.
func (c *Client) GetDevice(ctx context.Context, q DeviceQuery) ([]Device, error) {
	ref, err := q.ref()
	if err != nil {
		return nil, err
	}
	rows, err := c.resolver.Lookup(ctx, resolver.KindDevice, ref)
	if err != nil {
		return nil, err
	}
	devices := make([]Device, 0, len(rows))
	for _, row := range rows {
		var d Device
		if err := shape.Decode(row, &d); err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, nil
}

func (c *Client) device(ctx context.Context, ref resolver.Reference) (*Device, error) {
	row, err := c.resolver.LookupOne(ctx, resolver.KindDevice, ref)
	if err != nil {
		return nil, err
	}
	var d Device
	if err := shape.Decode(row, &d); err != nil {
		return nil, err
	}
	return &d, nil
}
