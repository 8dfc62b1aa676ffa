package backend

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/nordicweb/tabula/core"
	"github.com/nordicweb/tabula/core/csql"
	"github.com/nordicweb/tabula/core/session"
)

var testConfigJSON = `
{
	"base_path": "/api/",
	"id_map": {
		"posts_comments": "post_id"
	},
	"rights": {
		"visitor": {
			"posts": "get",
			"users": "post"
		},
		"user": {
			"posts": ["get", "post", "put", "delete"],
			"posts_comments": ["get", "post"],
			"users": ["get", "put"]
		},
		"admin": {
			"posts": ["get", "post", "put", "delete"],
			"users": ["get", "post", "put", "delete"]
		}
	},
	"search": {"table": "posts", "columns": ["title", "content"]}
}`

// newBareBackend builds a backend without a live database connection,
// enough for the analyzer and the query builder.
func newBareBackend(t *testing.T, config string) *Backend {
	t.Helper()
	b, err := New(&Builder{
		Config:   config,
		DB:       &csql.DB{Schema: "public", Timeout: time.Second},
		Router:   mux.NewRouter(),
		Sessions: session.NewStore(session.Options{}),
	})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestAnalyzePassThrough(t *testing.T) {
	b := newBareBackend(t, testConfigJSON)

	if _, ok := b.analyze(httptest.NewRequest(http.MethodGet, "/rest/login", nil)); ok {
		t.Fatal("request outside the base path must pass through")
	}
	if _, ok := b.analyze(httptest.NewRequest("PATCH", "/api/posts", nil)); ok {
		t.Fatal("unknown verb must pass through")
	}
}

func TestAnalyzeTableAndID(t *testing.T) {
	b := newBareBackend(t, testConfigJSON)

	op, ok := b.analyze(httptest.NewRequest(http.MethodGet, "/api/posts/5", nil))
	if !ok {
		t.Fatal("expected the request to be ours")
	}
	if op.table != "posts" || op.id != "5" || op.verb != core.VerbGet {
		t.Fatalf("unexpected operation %+v", op)
	}
}

func TestAnalyzeStripsPathParameterArtifact(t *testing.T) {
	b := newBareBackend(t, testConfigJSON)

	op, ok := b.analyze(httptest.NewRequest(http.MethodGet, "/api/posts;jsessionid=x/7", nil))
	if !ok {
		t.Fatal("expected the request to be ours")
	}
	if op.table != "postsjsessionid=x" {
		// the ';' delimiters are removed, nothing else
		t.Fatalf("unexpected table %q", op.table)
	}
	if op.id != "7" {
		t.Fatalf("unexpected id %q", op.id)
	}
}

func TestAnalyzeControlParameters(t *testing.T) {
	b := newBareBackend(t, testConfigJSON)

	r := httptest.NewRequest(http.MethodGet,
		"/api/posts?order_by=title&desc=1&limit=10&offset=5&title=Hello*&author=bob", nil)
	op, ok := b.analyze(r)
	if !ok {
		t.Fatal("expected the request to be ours")
	}
	if op.orderBy != "title" || !op.desc {
		t.Fatalf("unexpected ordering %q desc=%v", op.orderBy, op.desc)
	}
	if op.limit == nil || *op.limit != 10 || op.offset == nil || *op.offset != 5 {
		t.Fatal("limit/offset not consumed")
	}
	// the four reserved keys are removed, the rest are filters in column order
	if len(op.filters) != 2 {
		t.Fatalf("expected 2 filters, got %v", op.filters)
	}
	if op.filters[0].column != "author" || op.filters[0].value != "bob" {
		t.Fatalf("unexpected filter %+v", op.filters[0])
	}
	if op.filters[1].column != "title" || op.filters[1].value != "Hello*" {
		t.Fatalf("unexpected filter %+v", op.filters[1])
	}
}

func TestAnalyzeDescRequiresOne(t *testing.T) {
	b := newBareBackend(t, testConfigJSON)

	op, _ := b.analyze(httptest.NewRequest(http.MethodGet, "/api/posts?order_by=title&desc=true", nil))
	if op.desc {
		t.Fatal("only desc=1 is truthy")
	}
}

func TestAnalyzeBody(t *testing.T) {
	b := newBareBackend(t, testConfigJSON)

	r := httptest.NewRequest(http.MethodPost, "/api/posts",
		strings.NewReader(`{"title": "Hello", "views": 3}`))
	op, ok := b.analyze(r)
	if !ok {
		t.Fatal("expected the request to be ours")
	}
	if op.body["title"] != "Hello" {
		t.Fatalf("unexpected body %v", op.body)
	}
	if op.body["views"] != float64(3) {
		t.Fatalf("unexpected body %v", op.body)
	}

	// a missing body yields an empty payload, not nil
	op, _ = b.analyze(httptest.NewRequest(http.MethodPut, "/api/posts/1", nil))
	if op.body == nil {
		t.Fatal("expected an empty payload")
	}
}
