package vectorstore

import (
	"fmt"
	"strings"
)

// Filter is a small tagged-union expression over chunk metadata fields.
// Adapters translate it into their native filter syntax; the in-memory
// store evaluates it directly.
type Filter interface {
	isFilter()
}

// Eq matches records whose metadata field equals value.
type Eq struct {
	Field string
	Value interface{}
}

// In matches records whose metadata field equals any of the values.
type In struct {
	Field  string
	Values []interface{}
}

// Ne matches records whose metadata field differs from value (records
// missing the field match too).
type Ne struct {
	Field string
	Value interface{}
}

// Exists matches records that carry the metadata field with a non-empty
// value.
type Exists struct {
	Field string
}

// Missing matches records that lack the metadata field or carry it empty.
type Missing struct {
	Field string
}

// And matches records satisfying every sub-filter.
type And []Filter

// Or matches records satisfying at least one sub-filter.
type Or []Filter

func (Eq) isFilter()      {}
func (In) isFilter()      {}
func (Ne) isFilter()      {}
func (Exists) isFilter()  {}
func (Missing) isFilter() {}
func (And) isFilter()     {}
func (Or) isFilter()      {}

// StrIn builds an In filter from strings.
func StrIn(field string, values []string) In {
	vs := make([]interface{}, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return In{Field: field, Values: vs}
}

// compileSQL renders f as a SQL predicate over a JSONB metadata column,
// appending bind values to args. Metadata values are compared as text.
func compileSQL(f Filter, args *[]interface{}) (string, error) {
	switch v := f.(type) {
	case nil:
		return "TRUE", nil
	case Eq:
		*args = append(*args, fmt.Sprint(v.Value))
		return fmt.Sprintf("metadata->>'%s' = $%d", sqlField(v.Field), len(*args)), nil
	case Ne:
		*args = append(*args, fmt.Sprint(v.Value))
		return fmt.Sprintf("(metadata->>'%s' IS NULL OR metadata->>'%s' <> $%d)",
			sqlField(v.Field), sqlField(v.Field), len(*args)), nil
	case In:
		if len(v.Values) == 0 {
			return "FALSE", nil
		}
		vals := make([]string, len(v.Values))
		for i, raw := range v.Values {
			vals[i] = fmt.Sprint(raw)
		}
		*args = append(*args, vals)
		return fmt.Sprintf("metadata->>'%s' = ANY($%d)", sqlField(v.Field), len(*args)), nil
	case Exists:
		return fmt.Sprintf("COALESCE(metadata->>'%s', '') <> ''", sqlField(v.Field)), nil
	case Missing:
		return fmt.Sprintf("COALESCE(metadata->>'%s', '') = ''", sqlField(v.Field)), nil
	case And:
		return compileJunction([]Filter(v), " AND ", "TRUE", args)
	case Or:
		return compileJunction([]Filter(v), " OR ", "FALSE", args)
	default:
		return "", fmt.Errorf("unknown filter type %T", f)
	}
}

func compileJunction(fs []Filter, op, empty string, args *[]interface{}) (string, error) {
	if len(fs) == 0 {
		return empty, nil
	}
	parts := make([]string, 0, len(fs))
	for _, sub := range fs {
		p, err := compileSQL(sub, args)
		if err != nil {
			return "", err
		}
		parts = append(parts, p)
	}
	return "(" + strings.Join(parts, op) + ")", nil
}

// sqlField guards against injection through metadata field names; fields
// are always internal identifiers.
func sqlField(field string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return -1
	}, field)
}

// Matches evaluates f against a metadata map. Used by the in-memory store
// and shared with tests; values are compared as strings, mirroring the SQL
// translation.
func Matches(f Filter, metadata map[string]interface{}) bool {
	switch v := f.(type) {
	case nil:
		return true
	case Eq:
		s, ok := metaString(metadata, v.Field)
		return ok && s == fmt.Sprint(v.Value)
	case Ne:
		s, ok := metaString(metadata, v.Field)
		return !ok || s != fmt.Sprint(v.Value)
	case In:
		s, ok := metaString(metadata, v.Field)
		if !ok {
			return false
		}
		for _, raw := range v.Values {
			if s == fmt.Sprint(raw) {
				return true
			}
		}
		return false
	case Exists:
		s, ok := metaString(metadata, v.Field)
		return ok && s != ""
	case Missing:
		s, ok := metaString(metadata, v.Field)
		return !ok || s == ""
	case And:
		for _, sub := range v {
			if !Matches(sub, metadata) {
				return false
			}
		}
		return true
	case Or:
		if len(v) == 0 {
			return false
		}
		for _, sub := range v {
			if Matches(sub, metadata) {
				return true
			}
		}
		return false
	}
	return false
}

func metaString(metadata map[string]interface{}, field string) (string, bool) {
	raw, ok := metadata[field]
	if !ok || raw == nil {
		return "", false
	}
	return fmt.Sprint(raw), true
}
