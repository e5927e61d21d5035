package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// IntList is a JSON array of integers stored in a MySQL JSON column
// (projects.skills_required, projects.industries, consultant_profiles.industries).
// A NULL column scans to an empty list.  Anything that is not a JSON array of
// numbers is an error: stored data is never silently replaced by [].
type IntList []int64

func (l IntList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	b, err := json.Marshal([]int64(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *IntList) Scan(src any) error {
	b, err := jsonBytes(src)
	if err != nil {
		return fmt.Errorf("IntList: %w", err)
	}
	if b == nil {
		*l = IntList{}
		return nil
	}
	var out []int64
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("IntList: malformed stored value %q: %w", truncateForError(b), err)
	}
	if out == nil {
		out = []int64{}
	}
	*l = out
	return nil
}

// StringList is a JSON array of strings (profile_drafts.source_file_ids).
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src any) error {
	b, err := jsonBytes(src)
	if err != nil {
		return fmt.Errorf("StringList: %w", err)
	}
	if b == nil {
		*l = StringList{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(b, &out); err != nil {
		return fmt.Errorf("StringList: malformed stored value %q: %w", truncateForError(b), err)
	}
	if out == nil {
		out = []string{}
	}
	*l = out
	return nil
}

// Contains reports whether s is in the list.
func (l StringList) Contains(s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}

// Merge appends ids not already present, keeping order.
func (l StringList) Merge(ids ...string) StringList {
	out := append(StringList{}, l...)
	for _, id := range ids {
		if id != "" && !out.Contains(id) {
			out = append(out, id)
		}
	}
	return out
}

// RawJSON holds an opaque JSON document (parsed_data, eligibility,
// audit details).  NULL scans to nil and encodes as JSON null.
type RawJSON json.RawMessage

func (r RawJSON) Value() (driver.Value, error) {
	if len(r) == 0 {
		return nil, nil
	}
	return string(r), nil
}

func (r *RawJSON) Scan(src any) error {
	b, err := jsonBytes(src)
	if err != nil {
		return fmt.Errorf("RawJSON: %w", err)
	}
	if b == nil {
		*r = nil
		return nil
	}
	if !json.Valid(b) {
		return fmt.Errorf("RawJSON: malformed stored value %q", truncateForError(b))
	}
	*r = append(RawJSON{}, b...)
	return nil
}

func (r RawJSON) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

func (r *RawJSON) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = nil
		return nil
	}
	*r = append((*r)[0:0], b...)
	return nil
}

// IsNull reports whether the document is absent or JSON null.
func (r RawJSON) IsNull() bool {
	return len(r) == 0 || string(r) == "null"
}

// ToRawJSON marshals v; a nil v yields a nil document.
func ToRawJSON(v any) (RawJSON, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return RawJSON(b), nil
}

func jsonBytes(src any) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported source type %T", src)
	}
}

func truncateForError(b []byte) string {
	if len(b) > 64 {
		return string(b[:64]) + "..."
	}
	return string(b)
}
