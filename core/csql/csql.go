package csql

import (
	"database/sql"
	"log"
	"time"

	_ "github.com/lib/pq" // load database driver for postgres
)

// DefaultTimeout is the statement timeout applied when none is configured.
const DefaultTimeout = 5 * time.Second

// DB encapsulates a standard sql.DB with a schema and a statement timeout.
// The timeout bounds every statement issued through the data gateway.
type DB struct {
	*sql.DB
	Schema  string
	Timeout time.Duration
}

// ErrNoRows is returned by Scan when QueryRow doesn't return a
// row. In such a case, QueryRow returns a placeholder *Row value that
// defers this error until a Scan.
var ErrNoRows = sql.ErrNoRows

// OpenWithSchema opens a postgres database with a schema.
// The schema gets created if it does not exist yet.
// A timeout of zero selects DefaultTimeout.
func OpenWithSchema(dataSourceName, schema string, timeout time.Duration) *DB {
	log.Println("connecting to postgres database: ", dataSourceName)
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		panic(err)
	}
	err = db.Ping()
	if err != nil {
		panic(err)
	}
	if len(schema) == 0 {
		schema = "public"
	} else {
		log.Println("selected database schema:", schema)
		_, err = db.Exec(`CREATE schema IF NOT EXISTS ` + schema + `;`)
		if err != nil {
			panic(err)
		}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &DB{DB: db, Schema: schema, Timeout: timeout}
}

// ClearSchema clears all the data contained in the database's schema
// Technically this is done by dropping the schema and then recreating it
func (db *DB) ClearSchema() {
	if db.Schema == "public" {
		panic("refuse to drop public schema")
	}
	_, err := db.Exec(`DROP SCHEMA ` + db.Schema + ` CASCADE;
	CREATE schema IF NOT EXISTS ` + db.Schema + `;`)
	if err != nil {
		log.Println("clear schema error:", db.Schema, err.Error())
	}
}
