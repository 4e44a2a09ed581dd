package cli

import (
	"bytes"
	"testing"

	"github.com/cmas-go/cmas/internal/sccm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestPrintResult(t *testing.T) {
	cols := []sccm.Collection{{CollectionID: "PS100010", Name: "Pilot"}}

	var buf bytes.Buffer
	require.NoError(t, printResult(&buf, "collections", cols))
	assert.Contains(t, buf.String(), "Collections:\n")
	assert.Contains(t, buf.String(), "CollectionID: PS100010")

	buf.Reset()
	require.NoError(t, printResult(&buf, "collections", []sccm.Collection{}))
	assert.Equal(t, "No collections found\n", buf.String())

	jsonOutput = true
	defer func() { jsonOutput = false }()
	buf.Reset()
	require.NoError(t, printResult(&buf, "collections", cols))
	assert.Equal(t, int64(1), gjson.Get(buf.String(), "result").Int())
	assert.Equal(t, "Pilot", gjson.Get(buf.String(), "value.0.Name").String())

	buf.Reset()
	printWhatIf(&buf)
	assert.True(t, gjson.Get(buf.String(), "what_if").Bool())
}

func TestPrintDone(t *testing.T) {
	removed := []sccm.Collection{{CollectionID: "PS100010", Name: "Pilot"}}

	var buf bytes.Buffer
	require.NoError(t, printDone(&buf, "Collections removed", "collections", removed))
	assert.Equal(t, "Collections removed\n", buf.String())

	passThru = true
	defer func() { passThru = false }()
	buf.Reset()
	require.NoError(t, printDone(&buf, "Collections removed", "collections", removed))
	assert.Contains(t, buf.String(), "Collections removed\nCollections:\n")
	assert.Contains(t, buf.String(), "Name: Pilot")
}
