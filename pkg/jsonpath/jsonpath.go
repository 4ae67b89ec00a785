// Package jsonpath reads values out of JSON documents with JSONPath-like
// expressions ($.users[0].name) translated to gjson paths.
package jsonpath

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Extract returns the value at path as a string.
func Extract(json []byte, path string) (string, error) {
	result, err := lookup(json, path)
	if err != nil {
		return "", err
	}
	if result.Type == gjson.Null {
		return "null", nil
	}
	return result.String(), nil
}

// Values returns the elements of the array at path, each rendered as a string.
// A scalar at path yields a single value.
func Values(json []byte, path string) ([]string, error) {
	result, err := lookup(json, path)
	if err != nil {
		return nil, err
	}
	if !result.IsArray() {
		return []string{result.String()}, nil
	}
	items := result.Array()
	values := make([]string, 0, len(items))
	for _, item := range items {
		values = append(values, item.String())
	}
	return values, nil
}

// Rows returns the elements of the array at path as rows of columns.
// Array elements become one column per item; any other element is split on commas.
func Rows(json []byte, path string) ([][]string, error) {
	result, err := lookup(json, path)
	if err != nil {
		return nil, err
	}
	if !result.IsArray() {
		return nil, fmt.Errorf("path %s is not an array", path)
	}
	items := result.Array()
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		if item.IsArray() {
			cols := item.Array()
			row := make([]string, len(cols))
			for i, c := range cols {
				row[i] = c.String()
			}
			rows = append(rows, row)
			continue
		}
		rows = append(rows, strings.Split(item.String(), ","))
	}
	return rows, nil
}

func lookup(json []byte, path string) (gjson.Result, error) {
	if len(json) == 0 {
		return gjson.Result{}, fmt.Errorf("empty JSON document")
	}
	if path == "" {
		return gjson.Result{}, fmt.Errorf("empty JSONPath expression")
	}
	if !gjson.ValidBytes(json) {
		return gjson.Result{}, fmt.Errorf("invalid JSON document")
	}

	result := gjson.GetBytes(json, convertToGjsonPath(path))
	if !result.Exists() {
		return gjson.Result{}, fmt.Errorf("path not found: %s", path)
	}
	return result, nil
}

// convertToGjsonPath converts a JSONPath expression to a gjson path.
//
//	$.users[0].name -> users.0.name
//	$['name']       -> name
//	$[1]            -> 1
func convertToGjsonPath(path string) string {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "@this"
	}

	path = strings.NewReplacer(`['`, ".", `']`, "", `["`, ".", `"]`, "").Replace(path)
	path = strings.NewReplacer("[", ".", "]", "").Replace(path)
	return strings.TrimPrefix(path, ".")
}
