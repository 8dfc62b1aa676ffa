package backend

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/gorilla/mux"
	"github.com/xeipuuv/gojsonschema"

	"github.com/nordicweb/tabula/core/access"
	"github.com/nordicweb/tabula/core/csql"
	"github.com/nordicweb/tabula/core/logger"
	"github.com/nordicweb/tabula/core/session"
)

// Backend is the generic table REST gateway.
type Backend struct {
	config   backendConfiguration
	db       *csql.DB
	router   *mux.Router
	sessions *session.Store
	schemas  map[string]*gojsonschema.Schema
}

// Builder is a builder helper for the Backend
type Builder struct {
	// Config is the JSON description of base path, id map, rights
	// matrix and optional payload schemas. This is mandatory.
	Config string
	// DB is a postgres database. This is mandatory.
	DB *csql.DB
	// Router is a mux router. This is mandatory.
	Router *mux.Router
	// Sessions is the cookie session store. This is mandatory.
	Sessions *session.Store
}

type backendConfiguration struct {
	BasePath string                     `json:"base_path"`
	IDMap    map[string]string          `json:"id_map"`
	Rights   access.Matrix              `json:"rights"`
	Schemas  map[string]json.RawMessage `json:"schemas"`
	Search   *searchConfiguration       `json:"search"`
}

type searchConfiguration struct {
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
}

// New realizes the actual backend. It parses the configuration,
// compiles the payload schemas and adds the routes to the router.
func New(bb *Builder) (*Backend, error) {
	var config backendConfiguration
	if err := json.Unmarshal([]byte(bb.Config), &config); err != nil {
		return nil, fmt.Errorf("parse error in backend configuration: %s", err)
	}

	if bb.DB == nil {
		return nil, fmt.Errorf("DB is missing")
	}
	if bb.Router == nil {
		return nil, fmt.Errorf("Router is missing")
	}
	if bb.Sessions == nil {
		return nil, fmt.Errorf("Sessions is missing")
	}

	if config.BasePath == "" {
		config.BasePath = "/api/"
	}
	if config.BasePath[len(config.BasePath)-1] != '/' {
		config.BasePath += "/"
	}
	if config.Rights == nil {
		config.Rights = access.Matrix{}
	}
	if config.Search == nil {
		config.Search = &searchConfiguration{
			Table:   "posts",
			Columns: []string{"title", "content"},
		}
	}

	b := &Backend{
		config:   config,
		db:       bb.DB,
		router:   bb.Router,
		sessions: bb.Sessions,
		schemas:  make(map[string]*gojsonschema.Schema),
	}

	for table, raw := range config.Schemas {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid payload schema for table %s: %s", table, err)
		}
		b.schemas[table] = schema
	}

	b.handleRoutes(bb.Router)
	return b, nil
}

// handleRoutes adds all handlers: the session middleware, the login and
// search endpoints and the generic table dispatcher under the base path.
func (b *Backend) handleRoutes(router *mux.Router) {
	rlog := logger.Default()
	rlog.Infoln("backend: handle routes")

	logger.AddRequestID(router)
	router.Use(b.sessions.Middleware())

	b.handleLoginRoutes(router)
	b.handleSearchRoute(router)

	rlog.Infoln("  handle route:", b.config.BasePath+"{table}[/{id}] GET POST PUT DELETE")
	router.PathPrefix(b.config.BasePath).HandlerFunc(b.dispatch)
}
