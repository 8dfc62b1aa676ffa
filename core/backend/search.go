package backend

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/nordicweb/tabula/core/logger"
)

func (b *Backend) handleSearchRoute(router *mux.Router) {
	rlog := logger.Default()
	rlog.Infoln("  handle route: /search/{word} GET")

	router.HandleFunc("/search/{word}", b.search).Methods(http.MethodGet)
}

// search runs a fixed LIKE search over the configured columns of the
// search table (by default title and content of posts). The word is
// bound as a parameter with wildcards on both sides.
func (b *Backend) search(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	word := mux.Vars(r)["word"]

	cfg := b.config.Search
	if err := b.checkTable(cfg.Table); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	clauses := make([]string, len(cfg.Columns))
	params := make([]interface{}, len(cfg.Columns))
	selected := []string{`"` + b.idColumn(cfg.Table) + `"`}
	for i, column := range cfg.Columns {
		if !validIdentifier(column) {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("invalid column name %q", column)})
			return
		}
		clauses[i] = fmt.Sprintf(`"%s"::text LIKE $%d`, column, i+1)
		params[i] = "%" + word + "%"
		selected = append(selected, `"`+column+`"`)
	}

	stmt := &statement{
		sql: fmt.Sprintf(`SELECT %s FROM %s WHERE %s`,
			strings.Join(selected, ", "), b.qualified(cfg.Table), strings.Join(clauses, " OR ")),
		params: params,
	}

	rows, err := b.queryRows(r.Context(), stmt)
	if err != nil {
		rlog.WithError(err).Errorf("cannot execute query `%s`", stmt.sql)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{cfg.Table: rows})
}
