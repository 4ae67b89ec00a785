// Package log builds the zap logger used by the command line tool.
package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Conf holds the logging options.
type Conf struct {
	Output   string // stdout, stderr or file
	Path     string // directory of the log file
	Filename string
	Level    string
	Format   string // console or json
}

// SetDefaults returns the default configuration.
func SetDefaults() *Conf {
	return &Conf{
		Output:   "stderr",
		Path:     "./logs",
		Filename: "dbping.log",
		Level:    "INFO",
		Format:   "console",
	}
}

// Validate checks the configuration and fills in missing file options.
func (c *Conf) Validate() error {
	switch c.Output {
	case "", "stdout", "stderr":
	case "file":
		if c.Path == "" {
			return fmt.Errorf("log path is required when output is 'file'")
		}
		if c.Filename == "" {
			c.Filename = "dbping.log"
		}
	default:
		return fmt.Errorf("unknown log output %q", c.Output)
	}

	switch strings.ToLower(c.Format) {
	case "", "console", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Format)
	}
	return nil
}

// NewLog builds a logger from conf. The returned function releases the
// log file, if any.
func NewLog(conf *Conf) (*zap.Logger, func(), error) {
	if err := conf.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid log config: %w", err)
	}

	var (
		writeSyncer zapcore.WriteSyncer
		closeFn     = func() {}
	)
	switch conf.Output {
	case "stdout":
		writeSyncer = zapcore.Lock(os.Stdout)
	case "file":
		if err := os.MkdirAll(conf.Path, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		ws, closeFile, err := zap.Open(filepath.Join(conf.Path, conf.Filename))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writeSyncer, closeFn = ws, closeFile
	default:
		writeSyncer = zapcore.Lock(os.Stderr)
	}

	core := zapcore.NewCore(getEncoder(conf.Format), writeSyncer, ParseLevel(conf.Level))
	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	logger.Debug("log initialized",
		zap.String("output", conf.Output),
		zap.String("level", conf.Level))

	return logger, closeFn, nil
}

func getEncoder(format string) zapcore.Encoder {
	if strings.EqualFold(format, "json") {
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "time"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeDuration = zapcore.MillisDurationEncoder
		return zapcore.NewJSONEncoder(encoderConfig)
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeTime = timeEncoder
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	return zapcore.NewConsoleEncoder(encoderConfig)
}

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05.000"))
}

// ParseLevel converts a level name to a zapcore.Level, case-insensitively.
// Unknown names yield InfoLevel.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "INFO":
		return zapcore.InfoLevel
	case "WARN", "WARNING":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	case "FATAL":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}
