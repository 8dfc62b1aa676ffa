/*Package access provides the role capability matrix which gates the
generic table endpoints.

The matrix maps a caller's role to the tables it may touch and the verbs
allowed on each of them. It is loaded once from the backend configuration
and never mutated afterwards; lookups are therefore safe from any number
of concurrent request handlers.
*/
package access

import (
	"encoding/json"

	"github.com/nordicweb/tabula/core"
)

// RoleVisitor is the role assumed for a caller whose session carries no
// profile, or whose profile carries no role.
const RoleVisitor = "visitor"

// VerbSet is a set of verbs granted on a single table.
type VerbSet map[core.Verb]struct{}

// UnmarshalJSON accepts either a single verb or an array of verbs and
// normalizes both forms to a set.
func (s *VerbSet) UnmarshalJSON(data []byte) error {
	*s = VerbSet{}

	var one core.Verb
	if err := json.Unmarshal(data, &one); err == nil {
		(*s)[one] = struct{}{}
		return nil
	}

	var many []core.Verb
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	for _, v := range many {
		(*s)[v] = struct{}{}
	}
	return nil
}

// Contains returns true if the verb is a member of the set.
func (s VerbSet) Contains(verb core.Verb) bool {
	_, ok := s[verb]
	return ok
}

// Matrix is the static role capability matrix: role -> table -> verbs.
type Matrix map[string]map[string]VerbSet

// ParseMatrix loads a matrix from its JSON form. Verb grants may be a
// single string or an array of strings.
func ParseMatrix(config []byte) (Matrix, error) {
	var m Matrix
	if err := json.Unmarshal(config, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Authorize returns true iff the role may apply the verb to the table.
// An empty role falls back to RoleVisitor. Absent roles, tables or
// verbs deny.
func (m Matrix) Authorize(role, table string, verb core.Verb) bool {
	if role == "" {
		role = RoleVisitor
	}
	tables, ok := m[role]
	if !ok {
		return false
	}
	verbs, ok := tables[table]
	if !ok {
		return false
	}
	return verbs.Contains(verb)
}

// Tables returns the set of table names granted to any role. The
// dispatcher uses this as the allow-list for table identifiers, since
// parameter binding cannot protect identifiers.
func (m Matrix) Tables() map[string]bool {
	tables := make(map[string]bool)
	for _, grants := range m {
		for table := range grants {
			tables[table] = true
		}
	}
	return tables
}
