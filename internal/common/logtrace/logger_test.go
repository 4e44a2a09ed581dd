package logtrace

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestInitLoggerLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	InitLoggerTo(&buf, "debug", false)
	log.Debug().Str("path", "wmi/SMS_Collection").Msg("api request")
	assert.Contains(t, buf.String(), `"path":"wmi/SMS_Collection"`)

	buf.Reset()
	InitLoggerTo(&buf, "not-a-level", false)
	log.Info().Msg("hidden")
	assert.Empty(t, buf.String())
	log.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestRequestID(t *testing.T) {
	assert.Equal(t, "", RequestIdFromContext(context.Background()))
	ctx := WithRequestID(context.Background(), "abc")
	assert.Equal(t, "abc", RequestIdFromContext(ctx))
	assert.Equal(t, "abc", EnsureRequestID(ctx))
	assert.Len(t, EnsureRequestID(context.Background()), 36)
}
