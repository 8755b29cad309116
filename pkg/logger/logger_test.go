package logger

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		wantErr  bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{" notice ", NoticeLevel, false},
		{"error", ErrorLevel, false},
		{"verbose", InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestStdLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	original := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(original)

	l := NewStdLogger(false, NoticeLevel)
	l.Debug("hidden debug")
	l.Info("hidden info")
	l.Notice("shown notice %d", 1)
	l.ErrorWithChain(84532, "shown error")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[NOTICE] shown notice 1")
	assert.Contains(t, out, "[ERROR]  [BASE-T]  shown error")
}

func TestFormatMessage(t *testing.T) {
	l := NewStdLogger(false, DebugLevel).Named("relayer")

	assert.Equal(t, "[INFO]   [HORIZEN] relayer: settled", l.formatMessage(InfoLevel, 845320009, "settled"))
	assert.Equal(t, "[DEBUG]  [999] relayer: x", l.formatMessage(DebugLevel, 999, "x"))
	assert.Equal(t, "[ERROR]  relayer: boom", l.formatMessage(ErrorLevel, 0, "boom"))
}
