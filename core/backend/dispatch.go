package backend

import (
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/xeipuuv/gojsonschema"

	"github.com/nordicweb/tabula/core"
	"github.com/nordicweb/tabula/core/access"
	"github.com/nordicweb/tabula/core/logger"
	"github.com/nordicweb/tabula/core/session"
)

// errorBody is the JSON error shape of the table endpoints. The field
// name is capitalized in the wire format for compatibility.
type errorBody struct {
	Error string `json:"Error"`
}

func writeJSON(w http.ResponseWriter, status int, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		http.Error(w, "Error 1203", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

// dispatch drives one request through the pipeline:
// analyze -> authorize -> build -> execute -> respond.
// Each gate exits early: unknown shape, 403 on denial, 500 on failure.
func (b *Backend) dispatch(w http.ResponseWriter, r *http.Request) {
	op, ok := b.analyze(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	rlog := logger.FromContext(r.Context())
	sess := session.FromContext(r.Context())

	role := access.RoleVisitor
	if sess != nil {
		if sessionRole := sess.Role(); sessionRole != "" {
			role = sessionRole
		}
	}

	if !b.config.Rights.Authorize(role, op.table, op.verb) {
		rlog.Debugf("role %s denied %s on table %s", role, op.verb, op.table)
		writeJSON(w, http.StatusForbidden, errorBody{Error: "Not allowed"})
		return
	}

	switch op.verb {
	case core.VerbGet:
		b.handleGet(w, r, op)
	case core.VerbDelete:
		b.handleDelete(w, r, op)
	case core.VerbPost, core.VerbPut:
		b.handleSet(w, r, op, sess)
	}
}

func (b *Backend) handleGet(w http.ResponseWriter, r *http.Request, op *operation) {
	rlog := logger.FromContext(r.Context())

	stmt, err := b.buildGet(op)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	rows, err := b.queryRows(r.Context(), stmt)
	if err != nil {
		rlog.WithError(err).Errorf("cannot execute query `%s`", stmt.sql)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}

	if op.id != "" {
		// a single-row fetch with zero rows is kept as a server error
		// for compatibility, even though it smells like a 404
		if len(rows) == 0 {
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "No post"})
			return
		}
		writeJSON(w, http.StatusOK, rows[0])
		return
	}

	writeJSON(w, http.StatusOK, rows)
}

func (b *Backend) handleDelete(w http.ResponseWriter, r *http.Request, op *operation) {
	rlog := logger.FromContext(r.Context())

	stmt, err := b.buildDelete(op)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	result, err := b.execStatement(r.Context(), stmt)
	if err != nil {
		rlog.WithError(err).Errorf("cannot execute statement `%s`", stmt.sql)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleSet covers POST and PUT. Policy for the users table: a POST is
// preceded by a duplicate-email check, and a write to the caller's own
// row refreshes the session profile afterwards.
func (b *Backend) handleSet(w http.ResponseWriter, r *http.Request, op *operation, sess *session.Session) {
	rlog := logger.FromContext(r.Context())

	if schema, ok := b.schemas[op.table]; ok {
		if err := validatePayload(schema, op.body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
	}

	if op.table == "users" && op.verb == core.VerbPost {
		duplicate, err := b.duplicateUser(r, op)
		if err != nil {
			rlog.WithError(err).Error("duplicate check failed")
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
			return
		}
		if duplicate {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"user":  false,
				"Error": "Email already exists",
			})
			return
		}
	}

	stmt, err := b.buildSet(op)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	result, err := b.execStatement(r.Context(), stmt)
	if err != nil {
		rlog.WithError(err).Errorf("cannot execute statement `%s`", stmt.sql)
		// the driver message travels in a status field here, not in Error
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": err.Error()})
		return
	}

	if op.table == "users" && op.id != "" && isOwnRow(sess, op.id) {
		profile, err := b.refreshProfile(r, op)
		if err != nil {
			rlog.WithError(err).Error("cannot refresh session profile")
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
			return
		}
		sess.Login(profile)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"user":   profile,
			"result": result,
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// duplicateUser checks whether a user with the submitted email exists.
func (b *Backend) duplicateUser(r *http.Request, op *operation) (bool, error) {
	email, _ := op.body["email"].(string)
	stmt := &statement{
		sql:    `SELECT "email" FROM ` + b.qualified("users") + ` WHERE "email" = $1`,
		params: []interface{}{email},
	}
	rows, err := b.queryRows(r.Context(), stmt)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// refreshProfile re-fetches the caller's row after a self-update and
// strips the password from the copy that goes into the session.
func (b *Backend) refreshProfile(r *http.Request, op *operation) (map[string]interface{}, error) {
	stmt := &statement{
		sql: fmt.Sprintf(`SELECT * FROM %s WHERE "%s" = $1`,
			b.qualified("users"), b.idColumn("users")),
		params: []interface{}{op.id},
	}
	rows, err := b.queryRows(r.Context(), stmt)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &GatewayError{Message: "user row vanished after update"}
	}
	profile := rows[0]
	delete(profile, "password")
	return profile, nil
}

// isOwnRow reports whether the row id equals the id of the session's
// profile. Row ids are strings from the URL, profile ids come back from
// the database as numbers or strings; compare their printed forms.
func isOwnRow(sess *session.Session, id string) bool {
	if sess == nil {
		return false
	}
	user := sess.User()
	if user == nil {
		return false
	}
	return fmt.Sprint(user["id"]) == id
}

func validatePayload(schema *gojsonschema.Schema, body map[string]interface{}) error {
	result, err := schema.Validate(gojsonschema.NewGoLoader(body))
	if err != nil {
		return err
	}
	if result.Valid() {
		return nil
	}
	message := "invalid payload"
	for _, desc := range result.Errors() {
		message += ": " + desc.String()
	}
	return fmt.Errorf("%s", message)
}
