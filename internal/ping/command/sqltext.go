package command

import (
	"os"
	"regexp"
	"strings"

	"github.com/wesleyorama2/dbping/internal/ping/execution"
	"github.com/wesleyorama2/dbping/internal/ping/pingerr"
)

const fileMarker = "file://"

var whitespace = regexp.MustCompile(`\s+`)

// queryKeywords start statements that return a cursor.
var queryKeywords = map[string]bool{
	"SELECT":   true,
	"WITH":     true,
	"SHOW":     true,
	"VALUES":   true,
	"EXPLAIN":  true,
	"DESCRIBE": true,
	"DESC":     true,
	"PRAGMA":   true,
	"TABLE":    true,
}

// CompileSQL interpolates text against ectx. When the result is a file
// reference (file://path, case-insensitive), the file is read and its
// contents interpolated again. Whitespace runs collapse to one space.
func CompileSQL(ectx *execution.Context, text string) (string, error) {
	sqlText := ectx.Interpolate(text)
	trimmed := strings.TrimSpace(sqlText)
	if len(trimmed) >= len(fileMarker) && strings.EqualFold(trimmed[:len(fileMarker)], fileMarker) {
		path := trimmed[len(fileMarker):]
		data, err := os.ReadFile(path)
		if err != nil {
			return "", pingerr.Wrapf(pingerr.ErrResolverIO, err, "reading SQL file %s", path)
		}
		sqlText = ectx.Interpolate(string(data))
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(sqlText, " ")), nil
}

// IsQuery reports whether sqlText produces a result cursor, judging by its first keyword.
func IsQuery(sqlText string) bool {
	s := strings.TrimLeft(sqlText, " \t\r\n(")
	end := strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
	if end >= 0 {
		s = s[:end]
	}
	return queryKeywords[strings.ToUpper(s)]
}
