package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"

	"github.com/nordicweb/tabula/core"
)

func intp(n int) *int { return &n }

func TestBuildGetSingleRow(t *testing.T) {
	b := newBareBackend(t, testConfigJSON)

	stmt, err := b.buildGet(&operation{table: "posts", id: "5", verb: core.VerbGet})
	assert.NoError(t, err)
	assert.Equal(t, `SELECT * FROM public."posts" WHERE "id" = $1`, stmt.sql)
	assert.Equal(t, []interface{}{"5"}, stmt.params)
}

func TestBuildGetUsesIDMap(t *testing.T) {
	b := newBareBackend(t, testConfigJSON)

	stmt, err := b.buildGet(&operation{table: "posts_comments", id: "5", verb: core.VerbGet})
	assert.NoError(t, err)
	assert.Equal(t, `SELECT * FROM public."posts_comments" WHERE "post_id" = $1`, stmt.sql)
}

func TestBuildGetFilters(t *testing.T) {
	b := newBareBackend(t, testConfigJSON)

	stmt, err := b.buildGet(&operation{
		table: "posts",
		verb:  core.VerbGet,
		filters: []filter{
			{column: "title", value: "Hello*"},
			{column: "views", value: "42"},
		},
	})
	assert.NoError(t, err)
	assert.Equal(t,
		`SELECT * FROM public."posts" WHERE "title"::text LIKE $1 AND "views" = $2`,
		stmt.sql)
	// wildcard rewritten, number coerced to a typed parameter
	assert.Equal(t, []interface{}{"Hello%", float64(42)}, stmt.params)
}

func TestBuildGetNumericValueWithWildcardStaysText(t *testing.T) {
	b := newBareBackend(t, testConfigJSON)

	stmt, err := b.buildGet(&operation{
		table:   "posts",
		verb:    core.VerbGet,
		filters: []filter{{column: "views", value: "4*"}},
	})
	assert.NoError(t, err)
	assert.Equal(t, `SELECT * FROM public."posts" WHERE "views"::text LIKE $1`, stmt.sql)
	assert.Equal(t, []interface{}{"4%"}, stmt.params)
}

func TestBuildGetOrderingAndPaging(t *testing.T) {
	b := newBareBackend(t, testConfigJSON)

	stmt, err := b.buildGet(&operation{
		table:   "posts",
		verb:    core.VerbGet,
		filters: []filter{{column: "title", value: "a*"}},
		orderBy: "created_at",
		desc:    true,
		limit:   intp(10),
		offset:  intp(20),
	})
	assert.NoError(t, err)
	assert.Equal(t,
		`SELECT * FROM public."posts" WHERE "title"::text LIKE $1 ORDER BY "created_at" DESC LIMIT $2 OFFSET $3`,
		stmt.sql)
	// limit and offset bind after all filter parameters, in that order
	assert.Equal(t, []interface{}{"a%", 10, 20}, stmt.params)
}

func TestBuildGetIgnoresFiltersWithID(t *testing.T) {
	b := newBareBackend(t, testConfigJSON)

	stmt, err := b.buildGet(&operation{
		table:   "posts",
		id:      "5",
		verb:    core.VerbGet,
		filters: []filter{{column: "title", value: "a*"}},
	})
	assert.NoError(t, err)
	assert.Equal(t, `SELECT * FROM public."posts" WHERE "id" = $1`, stmt.sql)
}

func TestBuildGetRejectsBadIdentifiers(t *testing.T) {
	b := newBareBackend(t, testConfigJSON)

	// table not in the allow-list
	_, err := b.buildGet(&operation{table: "pg_shadow", verb: core.VerbGet})
	assert.Error(t, err)

	// table with invalid characters
	_, err = b.buildGet(&operation{table: `posts"; DROP TABLE users --`, verb: core.VerbGet})
	assert.Error(t, err)

	// hostile order_by column
	_, err = b.buildGet(&operation{table: "posts", verb: core.VerbGet, orderBy: `title";--`})
	assert.Error(t, err)

	// hostile filter column
	_, err = b.buildGet(&operation{
		table:   "posts",
		verb:    core.VerbGet,
		filters: []filter{{column: `a" = "a`, value: "x"}},
	})
	assert.Error(t, err)
}

func TestBuildDelete(t *testing.T) {
	b := newBareBackend(t, testConfigJSON)

	stmt, err := b.buildDelete(&operation{table: "posts", id: "3", verb: core.VerbDelete})
	assert.NoError(t, err)
	assert.Equal(t, `DELETE FROM public."posts" WHERE "id" = $1`, stmt.sql)
	assert.Equal(t, []interface{}{"3"}, stmt.params)
}

func TestBuildSetInsert(t *testing.T) {
	b := newBareBackend(t, testConfigJSON)

	stmt, err := b.buildSet(&operation{
		table: "posts",
		verb:  core.VerbPost,
		body:  map[string]interface{}{"title": "Hello", "content": "World"},
	})
	assert.NoError(t, err)
	// columns render in sorted order
	assert.Equal(t, `INSERT INTO public."posts" ("content", "title") VALUES ($1, $2)`, stmt.sql)
	assert.Equal(t, []interface{}{"World", "Hello"}, stmt.params)
}

func TestBuildSetUpdate(t *testing.T) {
	b := newBareBackend(t, testConfigJSON)

	stmt, err := b.buildSet(&operation{
		table: "posts",
		id:    "5",
		verb:  core.VerbPut,
		body:  map[string]interface{}{"title": "New"},
	})
	assert.NoError(t, err)
	assert.Equal(t, `UPDATE public."posts" SET "title" = $1 WHERE "id" = $2`, stmt.sql)
	assert.Equal(t, []interface{}{"New", "5"}, stmt.params)
}

func TestBuildSetHashesUserPassword(t *testing.T) {
	b := newBareBackend(t, testConfigJSON)

	op := &operation{
		table: "users",
		verb:  core.VerbPost,
		body:  map[string]interface{}{"email": "a@b.com", "password": "secret"},
	}
	stmt, err := b.buildSet(op)
	assert.NoError(t, err)
	assert.Equal(t, `INSERT INTO public."users" ("email", "password") VALUES ($1, $2)`, stmt.sql)

	hash, ok := stmt.params[1].(string)
	if !ok || hash == "secret" {
		t.Fatal("password must be replaced by its hash")
	}
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret")))
}

func TestBuildSetLeavesOtherTablesAlone(t *testing.T) {
	b := newBareBackend(t, testConfigJSON)

	stmt, err := b.buildSet(&operation{
		table: "posts",
		verb:  core.VerbPost,
		body:  map[string]interface{}{"password": "not-a-credential"},
	})
	assert.NoError(t, err)
	assert.Equal(t, []interface{}{"not-a-credential"}, stmt.params)
}

func TestBuildSetRejectsBadColumns(t *testing.T) {
	b := newBareBackend(t, testConfigJSON)

	_, err := b.buildSet(&operation{
		table: "posts",
		verb:  core.VerbPost,
		body:  map[string]interface{}{`title", "role`: "x"},
	})
	assert.Error(t, err)

	_, err = b.buildSet(&operation{table: "posts", verb: core.VerbPost, body: map[string]interface{}{}})
	assert.Error(t, err)
}
