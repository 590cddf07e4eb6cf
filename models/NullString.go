package models

import (
	"encoding/json"
	"fmt"
)

// NullString - string JSON field that distinguishes absent, null and string values
// Set is true if the field was present in JSON at all; Valid is true if it was a string
// Used in requests where absent means "keep" and null means "remove"
type NullString struct {
	String string
	Valid  bool
	Set    bool
}

// Value - returns string value or empty string for null
func (ns NullString) Value() string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// IsEmpty - true for null and for empty string
func (ns NullString) IsEmpty() bool {
	return !ns.Valid || ns.String == ""
}

// MarshalJSON - custom marshal func for NullString
// Now json object will store only null or string value
func (ns NullString) MarshalJSON() ([]byte, error) {
	if !ns.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(ns.String)
}

// UnmarshalJSON - custom unmarshal func for NullString
// encoding/json calls it for null too, so Set is reliable
func (ns *NullString) UnmarshalJSON(b []byte) error {
	var x interface{}
	err := json.Unmarshal(b, &x)
	if err != nil {
		return err
	}
	ns.Set = true
	switch s := x.(type) {
	case nil:
		ns.Valid = false
	case string:
		ns.String = s
		ns.Valid = true
	default:
		return fmt.Errorf("expected string or null, got %s", string(b))
	}

	return nil
}
