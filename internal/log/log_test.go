package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestDefaultConf(t *testing.T) {
	conf := SetDefaults()

	assert.Equal(t, "stderr", conf.Output)
	assert.Equal(t, "INFO", conf.Level)
	assert.NoError(t, conf.Validate())
}

func TestConf_Validate(t *testing.T) {
	tests := []struct {
		name    string
		conf    *Conf
		wantErr bool
	}{
		{name: "stdout", conf: &Conf{Output: "stdout", Level: "INFO"}},
		{name: "file", conf: &Conf{Output: "file", Path: "./logs"}},
		{name: "file without path", conf: &Conf{Output: "file"}, wantErr: true},
		{name: "unknown output", conf: &Conf{Output: "kafka"}, wantErr: true},
		{name: "unknown format", conf: &Conf{Format: "xml"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.conf.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConf_ValidateFillsFilename(t *testing.T) {
	conf := &Conf{Output: "file", Path: "./logs"}
	require.NoError(t, conf.Validate())
	assert.Equal(t, "dbping.log", conf.Filename)
}

func TestNewLog_File(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	logger, closeFn, err := NewLog(&Conf{Output: "file", Path: dir, Filename: "run.log", Level: "warn", Format: "json"})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("job interrupted", zap.String("task", "orders"))
	_ = logger.Sync()
	closeFn()

	data, err := os.ReadFile(filepath.Join(dir, "run.log"))
	require.NoError(t, err)
	out := string(data)
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"job interrupted"`)
	assert.Contains(t, out, `"task":"orders"`)
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestNewLog_Invalid(t *testing.T) {
	_, _, err := NewLog(&Conf{Output: "file"})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" INFO ":  zapcore.InfoLevel,
		"Warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"FATAL":   zapcore.FatalLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}
