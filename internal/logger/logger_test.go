package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   zapcore.Level
		wantOK bool
	}{
		{in: "debug", want: zapcore.DebugLevel, wantOK: true},
		{in: " INFO ", want: zapcore.InfoLevel, wantOK: true},
		{in: "warning", want: zapcore.WarnLevel, wantOK: true},
		{in: "error", want: zapcore.ErrorLevel, wantOK: true},
		{in: "verbose", want: zapcore.InfoLevel, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			lvl, ok := ParseLevel(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, lvl)
		})
	}
}

func TestNamedAndWith(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := With(Named(FromZap(zap.New(core)), "registrar"), String("engine", "dbpedia-deref"))

	l.Info("dereference engine published", Int("tracked", 1), Error(errors.New("boom")))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "registrar", entries[0].LoggerName)
	assert.Equal(t, "dereference engine published", entries[0].Message)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "dbpedia-deref", ctx["engine"])
	assert.Equal(t, int64(1), ctx["tracked"])
	assert.Equal(t, "boom", ctx["error"])
}

func TestLevelFiltering(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	l := FromZap(zap.New(core))

	l.Debugf("hidden %d", 1)
	l.Info("hidden")
	l.Warnf("shown %s", "warn")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "shown warn", logs.All()[0].Message)
}

func TestForeignLoggerIsKept(t *testing.T) {
	var l Logger = stub{}
	assert.Equal(t, l, Named(l, "x"))
	assert.Equal(t, l, With(l, String("k", "v")))
	NewNop().Error("discarded")
}

type stub struct{ Logger }
