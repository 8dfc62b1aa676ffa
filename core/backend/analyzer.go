package backend

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/nordicweb/tabula/core"
)

// operation is the parsed, structured form of a request against the
// generic table endpoints: table, row id, verb, filters, sort, paging
// and body. It lives for one request only.
type operation struct {
	table   string
	id      string
	verb    core.Verb
	filters []filter
	orderBy string
	desc    bool
	limit   *int
	offset  *int
	body    map[string]interface{}
}

// filter is one column constraint from the query string.
type filter struct {
	column string
	value  string
}

// analyze parses a request into an operation. It returns false if the
// request is not ours: the path does not start with the base path, or
// the method is outside the four verbs.
func (b *Backend) analyze(r *http.Request) (*operation, bool) {
	if !strings.HasPrefix(r.URL.Path, b.config.BasePath) {
		return nil, false
	}
	verb, ok := core.ParseVerb(r.Method)
	if !ok {
		return nil, false
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, b.config.BasePath), "/")

	op := &operation{
		// strip the legacy ';'-delimited path parameter artifact
		table: strings.ReplaceAll(parts[0], ";", ""),
		verb:  verb,
	}
	if len(parts) > 1 {
		op.id = parts[1]
	}

	// four reserved keys are control parameters, everything else is a
	// candidate filter. Values arrive percent-decoded from url.Query.
	for key, values := range r.URL.Query() {
		if len(values) == 0 {
			continue
		}
		value := values[0]
		switch key {
		case "order_by":
			op.orderBy = value
		case "desc":
			op.desc = value == "1"
		case "limit":
			if n, err := strconv.Atoi(value); err == nil {
				op.limit = &n
			}
		case "offset":
			if n, err := strconv.Atoi(value); err == nil {
				op.offset = &n
			}
		default:
			op.filters = append(op.filters, filter{column: key, value: value})
		}
	}

	// query maps iterate in random order; sort for deterministic statements
	sort.Slice(op.filters, func(i, j int) bool {
		return op.filters[i].column < op.filters[j].column
	})

	if verb == core.VerbPost || verb == core.VerbPut {
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&op.body)
		}
		if op.body == nil {
			op.body = map[string]interface{}{}
		}
	}

	return op, true
}
