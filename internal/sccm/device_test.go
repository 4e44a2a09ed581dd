package sccm

import (
	"context"
	"testing"

	"github.com/cmas-go/cmas/internal/resolver"
	"github.com/cmas-go/cmas/internal/test/fakesccm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDevice(t *testing.T) {
	c, inv, _ := newClient(t)
	ctx := context.Background()

	devices, err := c.GetDevice(ctx, DeviceQuery{ResourceID: fakesccm.DeviceSRV001})
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "SRV001", devices[0].Name)
	assert.Equal(t, int64(fakesccm.DeviceSRV001), devices[0].ResourceID)

	tests := []struct {
		name  string
		query DeviceQuery
		want  int
	}{
		{"all", DeviceQuery{}, 3},
		{"wildcard", DeviceQuery{Name: "WKS*"}, 2},
		{"single character wildcard", DeviceQuery{Name: "WKS00?"}, 2},
		{"exact name ignores case", DeviceQuery{Name: "wks001"}, 1},
		{"missing name", DeviceQuery{Name: "WKS999"}, 0},
		{"missing id", DeviceQuery{ResourceID: 1}, 0},
		{"object", DeviceQuery{Object: &devices[0]}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.GetDevice(ctx, tt.query)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}

	before := inv.calls.Load()
	_, err = c.GetDevice(ctx, DeviceQuery{Name: "WKS001", ResourceID: fakesccm.DeviceWKS001})
	assert.ErrorIs(t, err, resolver.ErrConflictingReferences)
	assert.Equal(t, before, inv.calls.Load())
}
