package command

import (
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/dbping/internal/ping/pingerr"
)

// Default layouts of temporal parameters without a declared format.
const (
	DefaultDateLayout      = "2006-01-02"
	DefaultTimeLayout      = "15:04:05"
	DefaultTimestampLayout = "2006-01-02 15:04:05"
)

// javaTokens translates pattern letters (yyyy-MM-dd HH:mm:ss.SSS) to Go layout elements.
var javaTokens = strings.NewReplacer(
	"yyyy", "2006",
	"yy", "06",
	"MMMM", "January",
	"MMM", "Jan",
	"MM", "01",
	"dd", "02",
	"HH", "15",
	"hh", "03",
	"mm", "04",
	"ss", "05",
	"SSS", "000",
	"a", "PM",
	"'T'", "T",
	"XXX", "Z07:00",
	"Z", "-0700",
)

// Coerce converts a raw parameter value to the Go value bound for typ.
//
// Type names are case-insensitive. Unknown types, and STRING, bind raw unchanged.
func Coerce(typ, format, raw string) (any, error) {
	switch strings.ToUpper(strings.TrimSpace(typ)) {
	case "INTEGER", "INT":
		v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 32)
		if err != nil {
			return nil, mismatch(typ, raw, err)
		}
		return int32(v), nil
	case "LONG":
		v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, mismatch(typ, raw, err)
		}
		return v, nil
	case "FLOAT":
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 32)
		if err != nil {
			return nil, mismatch(typ, raw, err)
		}
		return float32(v), nil
	case "DOUBLE":
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, mismatch(typ, raw, err)
		}
		return v, nil
	case "DATE":
		return parseTemporal(typ, Layout(format, DefaultDateLayout), raw)
	case "TIME":
		return parseTemporal(typ, Layout(format, DefaultTimeLayout), raw)
	case "TIMESTAMP":
		return parseTemporal(typ, Layout(format, DefaultTimestampLayout), raw)
	default:
		return raw, nil
	}
}

// Layout returns the Go time layout for format. Formats already written as
// Go layouts are kept; pattern-letter formats are translated. An empty
// format yields fallback.
func Layout(format, fallback string) string {
	if format == "" {
		return fallback
	}
	if strings.Contains(format, "2006") || strings.Contains(format, "15:04") {
		return format
	}
	return javaTokens.Replace(format)
}

func parseTemporal(typ, layout, raw string) (any, error) {
	t, err := time.Parse(layout, strings.TrimSpace(raw))
	if err != nil {
		return nil, mismatch(typ, raw, err)
	}
	return t, nil
}

func mismatch(typ, raw string, err error) error {
	return pingerr.Wrapf(pingerr.ErrBind, err, "value %q is not a valid %s", raw, strings.ToUpper(typ))
}
