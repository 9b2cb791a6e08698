// Package feed turns the loosely typed rows of the remote sheet into
// domain records. Column names in the sheet drift over time (accents,
// spacing, underscores), so every field is read through Lookup with a list
// of accepted names.
package feed

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/DGApex/CRT-INV/internal/domain"
)

// Lookup returns the value of the first candidate column present in row.
// Exact names win; otherwise names are compared case-insensitively with
// spaces and underscores removed. Columns holding null count as absent.
func Lookup(row domain.Row, candidates ...string) (any, bool) {
	for _, key := range candidates {
		if v, ok := row[key]; ok && v != nil {
			return v, true
		}
	}

	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, candidate := range candidates {
		want := normalizeKey(candidate)
		for _, k := range keys {
			if normalizeKey(k) == want && row[k] != nil {
				return row[k], true
			}
		}
	}
	return nil, false
}

// LookupString is Lookup rendered as trimmed text; absent yields "".
func LookupString(row domain.Row, candidates ...string) string {
	v, ok := Lookup(row, candidates...)
	if !ok {
		return ""
	}
	return strings.TrimSpace(String(v))
}

// String renders a decoded JSON scalar as text.
func String(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

func normalizeKey(k string) string {
	k = strings.ToLower(k)
	k = strings.ReplaceAll(k, "_", "")
	return strings.ReplaceAll(k, " ", "")
}
