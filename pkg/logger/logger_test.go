package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestErrorCarriesContextFieldsAndStack(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "api", Level: zerolog.DebugLevel, Output: buf, Format: "json"})

	ctx := log.WithRequestID(context.Background(), "req-123")
	ctx = log.WithOfferID(ctx, "offer-9")
	ctx = log.WithPaymentIntentID(ctx, "pi_123")
	log.Error(ctx, "settlement failed", errors.New("transfer declined"))

	entry := lastLine(t, buf)
	assert.Equal(t, "api", entry["service"])
	assert.Equal(t, "req-123", entry[FieldRequestID])
	assert.Equal(t, "offer-9", entry[FieldOfferID])
	assert.Equal(t, "pi_123", entry[FieldPaymentIntentID])
	assert.Equal(t, "transfer declined", entry["error"])
	assert.NotEmpty(t, entry["stack"])
}

func TestStaticFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "cron-worker", Output: buf, Format: "json", Fields: map[string]any{"instance": "worker.2"}})
	log.Info(log.WithTransactionID(context.TODO(), "txn-1"), "tick")

	entry := lastLine(t, buf)
	assert.Equal(t, "worker.2", entry["instance"])
	assert.Equal(t, "txn-1", entry[FieldTransactionID])
}

func TestContextFieldsDoNotLeakToParent(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "api", Output: buf, Format: "json"})
	parent := log.WithUserID(context.Background(), "u-1")
	_ = log.WithFields(parent, map[string]any{"step": "transfer"})

	log.Info(parent, "parent")
	entry := lastLine(t, buf)
	assert.Equal(t, "u-1", entry[FieldUserID])
	assert.NotContains(t, entry, "step")
}

func TestWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	New(Options{ServiceName: "test", Output: buf, Format: "json", WarnStack: true}).Warn(context.Background(), "slow sweep")
	assert.Contains(t, lastLine(t, buf), "stack")

	buf.Reset()
	New(Options{ServiceName: "test", Output: buf, Format: "json"}).Warn(context.Background(), "slow sweep")
	assert.NotContains(t, lastLine(t, buf), "stack")
}

func TestLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("warn"), Output: buf, Format: "json"})
	log.Info(context.Background(), "hidden")
	log.Debug(context.Background(), "hidden")
	assert.Zero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" WARN "))
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
}
