package backend

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/nordicweb/tabula/core/logger"
	"github.com/nordicweb/tabula/core/session"
)

// loginResponse reflects the session state after a login operation.
// User is either the profile object or the literal false.
type loginResponse struct {
	User   interface{} `json:"user"`
	Status string      `json:"status"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (b *Backend) handleLoginRoutes(router *mux.Router) {
	rlog := logger.Default()
	rlog.Infoln("  handle route: /rest/login GET POST DELETE")

	router.HandleFunc("/rest/login", b.loginStatus).Methods(http.MethodGet)
	router.HandleFunc("/rest/login", b.loginCreate).Methods(http.MethodPost)
	router.HandleFunc("/rest/login", b.loginDelete).Methods(http.MethodDelete)
}

// loginStatus reports whether the caller's session carries a profile.
func (b *Backend) loginStatus(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	user := sess.User()
	if user == nil {
		writeJSON(w, http.StatusOK, loginResponse{User: false, Status: "Not logged in"})
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{User: user, Status: "Logged in"})
}

// loginCreate verifies the submitted credentials against the users
// table and establishes the session profile. A banned role is rejected.
// All outcomes answer 200; the body carries user and status.
func (b *Backend) loginCreate(w http.ResponseWriter, r *http.Request) {
	rlog := logger.FromContext(r.Context())
	sess := session.FromContext(r.Context())

	if user := sess.User(); user != nil {
		writeJSON(w, http.StatusOK, loginResponse{User: user, Status: "Already logged in."})
		return
	}

	var c credentials
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&c)
	}

	stmt := &statement{
		sql:    `SELECT * FROM ` + b.qualified("users") + ` WHERE "email" = $1`,
		params: []interface{}{c.Email},
	}
	rows, err := b.queryRows(r.Context(), stmt)
	if err != nil {
		rlog.WithError(err).Error("login lookup failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}

	if len(rows) > 0 {
		row := rows[0]
		hash, _ := row["password"].(string)
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(c.Password)) == nil {
			user := make(map[string]interface{}, len(row))
			for k, v := range row {
				user[k] = v
			}
			delete(user, "password")

			if role, _ := user["role"].(string); role == "banned" {
				writeJSON(w, http.StatusOK, loginResponse{User: false, Status: "Account has been banished."})
				return
			}

			sess.Login(user)
			writeJSON(w, http.StatusOK, loginResponse{User: user, Status: "Successfully logged in"})
			return
		}
	}

	writeJSON(w, http.StatusOK, loginResponse{User: false, Status: "Incorrect credentials"})
}

// loginDelete clears the session profile.
func (b *Backend) loginDelete(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if sess.User() == nil {
		writeJSON(w, http.StatusOK, loginResponse{User: false, Status: "Can't log out if not logged in."})
		return
	}
	sess.Logout()
	writeJSON(w, http.StatusOK, loginResponse{User: false, Status: "Logging out"})
}
