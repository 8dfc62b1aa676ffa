package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Verb represents one of the four REST verbs understood by the generic
// table dispatcher: get, post, put, delete.
type Verb string

// all supported verbs
const (
	VerbGet    Verb = "get"
	VerbPost   Verb = "post"
	VerbPut    Verb = "put"
	VerbDelete Verb = "delete"
)

// ParseVerb normalizes an HTTP method to a Verb. It returns false for
// any method outside the closed enumeration.
func ParseVerb(method string) (Verb, bool) {
	v := Verb(strings.ToLower(method))
	switch v {
	case VerbGet, VerbPost, VerbPut, VerbDelete:
		return v, true
	}
	return "", false
}

// UnmarshalJSON is a custom JSON unmarshaller
func (v *Verb) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*v = Verb(strings.ToLower(s))
	switch *v {
	case VerbGet, VerbPost, VerbPut, VerbDelete:
		return nil
	default:
		return fmt.Errorf("%s is not a valid verb", s)
	}
}
