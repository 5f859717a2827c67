package entity

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrUnknownField is returned when a fetcher produced a field the record
// schema does not declare.
var ErrUnknownField = errors.New("field not declared by schema")

// Record is the persisted form of a successful fetch. The store key is
// (batch id, Key).
type Record struct {
	Key       string
	Kind      string
	Version   int
	Fields    Fields
	FetchedAt time.Time
}

// Schema is the fixed, versioned set of fields expected for one record kind.
type Schema struct {
	Kind    string
	Version int
	Fields  []string
}

// NewSchema returns a schema whose field list is sorted and de-duplicated.
func NewSchema(kind string, version int, fields []string) *Schema {
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok || f == "" {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return &Schema{Kind: kind, Version: version, Fields: out}
}

// Normalize validates fields against the schema. Declared fields missing
// from the input are filled with "". Undeclared fields are rejected.
// A nil schema accepts any fields as-is.
func (s *Schema) Normalize(fields Fields) (Fields, error) {
	if s == nil {
		out := make(Fields, len(fields))
		for k, v := range fields {
			out[k] = v
		}
		return out, nil
	}

	declared := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		declared[f] = struct{}{}
	}
	var unknown []string
	for k := range fields {
		if _, ok := declared[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %s v%d: %v", ErrUnknownField, s.Kind, s.Version, unknown)
	}

	out := make(Fields, len(s.Fields))
	for _, f := range s.Fields {
		out[f] = fields[f]
	}
	return out, nil
}

// Describe returns the kind and version recorded alongside each record.
func (s *Schema) Describe() (string, int) {
	if s == nil {
		return "", 0
	}
	return s.Kind, s.Version
}
