package backend

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// statement is a parameterized statement ready for the data gateway.
type statement struct {
	sql    string
	params []interface{}
}

// bcryptCost matches the cost the login endpoint expects for stored hashes.
const bcryptCost = 12

var identifierRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validIdentifier reports whether s is safe to interpolate as a SQL
// identifier. Parameter binding protects values only, so every table
// and column name passes through here before it reaches statement text.
func validIdentifier(s string) bool {
	return identifierRegexp.MatchString(s)
}

// idColumn returns the id column for a table, "id" unless overridden.
func (b *Backend) idColumn(table string) string {
	if column, ok := b.config.IDMap[table]; ok {
		return column
	}
	return "id"
}

// checkTable validates the table name against the allow-list: the
// tables named in the rights matrix or the id map.
func (b *Backend) checkTable(table string) error {
	if !validIdentifier(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	if b.config.Rights.Tables()[table] {
		return nil
	}
	if _, ok := b.config.IDMap[table]; ok {
		return nil
	}
	return fmt.Errorf("unknown table %q", table)
}

// qualified returns the schema-qualified, quoted table reference.
func (b *Backend) qualified(table string) string {
	return b.db.Schema + `."` + table + `"`
}

// coerceFilterValue is the named coercion step of the query builder: a
// raw filter value becomes one comparison clause plus one typed
// parameter. A value that parses entirely as a number and carries no
// wildcard compares numerically; anything else is matched as text with
// LIKE, after the '*' wildcard is rewritten to SQL '%'.
func coerceFilterValue(column string, index int, raw string) (string, interface{}) {
	if !strings.Contains(raw, "*") {
		if number, err := strconv.ParseFloat(raw, 64); err == nil {
			return fmt.Sprintf(`"%s" = $%d`, column, index), number
		}
	}
	value := strings.ReplaceAll(raw, "*", "%")
	return fmt.Sprintf(`"%s"::text LIKE $%d`, column, index), value
}

// buildGet builds the statement for a list or single-row fetch.
//
// With a row id: SELECT * FROM t WHERE idColumn = $1, no filters.
// Without: all filters become conjunctive clauses, then ORDER BY,
// LIMIT and OFFSET. Limit and offset bind after all filter parameters,
// in that order.
func (b *Backend) buildGet(op *operation) (*statement, error) {
	if err := b.checkTable(op.table); err != nil {
		return nil, err
	}

	query := `SELECT * FROM ` + b.qualified(op.table)
	var params []interface{}

	if op.id != "" {
		query += fmt.Sprintf(` WHERE "%s" = $1`, b.idColumn(op.table))
		params = append(params, op.id)
	} else {
		var clauses []string
		for _, f := range op.filters {
			if !validIdentifier(f.column) {
				return nil, fmt.Errorf("invalid column name %q", f.column)
			}
			clause, param := coerceFilterValue(f.column, len(params)+1, f.value)
			clauses = append(clauses, clause)
			params = append(params, param)
		}
		if len(clauses) > 0 {
			query += ` WHERE ` + strings.Join(clauses, ` AND `)
		}
	}

	if op.orderBy != "" {
		if !validIdentifier(op.orderBy) {
			return nil, fmt.Errorf("invalid column name %q", op.orderBy)
		}
		query += ` ORDER BY "` + op.orderBy + `"`
		if op.desc {
			query += ` DESC`
		}
	}
	if op.limit != nil {
		query += fmt.Sprintf(` LIMIT $%d`, len(params)+1)
		params = append(params, *op.limit)
	}
	if op.offset != nil {
		query += fmt.Sprintf(` OFFSET $%d`, len(params)+1)
		params = append(params, *op.offset)
	}

	return &statement{sql: query, params: params}, nil
}

// buildDelete builds the single-row delete statement.
func (b *Backend) buildDelete(op *operation) (*statement, error) {
	if err := b.checkTable(op.table); err != nil {
		return nil, err
	}
	return &statement{
		sql:    fmt.Sprintf(`DELETE FROM %s WHERE "%s" = $1`, b.qualified(op.table), b.idColumn(op.table)),
		params: []interface{}{op.id},
	}, nil
}

// buildSet builds the write statement shared by POST and PUT: an UPDATE
// when a row id is present, an INSERT otherwise. Columns render in
// sorted order with one bound parameter each. For the users table a
// password field is replaced by its bcrypt hash first.
func (b *Backend) buildSet(op *operation) (*statement, error) {
	if err := b.checkTable(op.table); err != nil {
		return nil, err
	}
	if len(op.body) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	if op.table == "users" {
		if password, ok := op.body["password"].(string); ok && password != "" {
			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
			if err != nil {
				return nil, err
			}
			op.body["password"] = string(hash)
		}
	}

	columns := make([]string, 0, len(op.body))
	for column := range op.body {
		if !validIdentifier(column) {
			return nil, fmt.Errorf("invalid column name %q", column)
		}
		columns = append(columns, column)
	}
	sort.Strings(columns)

	params := make([]interface{}, 0, len(columns)+1)
	for _, column := range columns {
		params = append(params, op.body[column])
	}

	if op.id != "" {
		assignments := make([]string, len(columns))
		for i, column := range columns {
			assignments[i] = fmt.Sprintf(`"%s" = $%d`, column, i+1)
		}
		query := fmt.Sprintf(`UPDATE %s SET %s WHERE "%s" = $%d`,
			b.qualified(op.table), strings.Join(assignments, ", "),
			b.idColumn(op.table), len(columns)+1)
		params = append(params, op.id)
		return &statement{sql: query, params: params}, nil
	}

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, column := range columns {
		quoted[i] = `"` + column + `"`
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		b.qualified(op.table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	return &statement{sql: query, params: params}, nil
}
