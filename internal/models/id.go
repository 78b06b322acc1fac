package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID identifies any entity in the document. Legacy rows carry numeric ids,
// newer ones UUID strings; both decode into the same string form so that
// comparisons never depend on the JSON type.
type ID string

// UnmarshalJSON accepts a JSON string, a JSON number or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// IDSet is an ordered set of ids persisted as a JSON array.
type IDSet []ID

// Contains reports whether id is in the set.
func (s IDSet) Contains(id ID) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// Add appends id unless already present and reports whether it was added.
func (s *IDSet) Add(id ID) bool {
	if s.Contains(id) {
		return false
	}
	*s = append(*s, id)
	return true
}

// Remove drops every occurrence of id and reports whether anything changed.
func (s *IDSet) Remove(id ID) bool {
	out := (*s)[:0]
	removed := false
	for _, v := range *s {
		if v == id {
			removed = true
			continue
		}
		out = append(out, v)
	}
	*s = out
	return removed
}
