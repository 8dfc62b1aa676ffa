/*Package backend implements the generic table REST gateway.

The backend maps arbitrary database tables onto the four REST verbs
under a configurable base path, without per-table handler code:

	GET    /api/{table}            list, with filters, order_by, desc, limit, offset
	GET    /api/{table}/{id}       single row
	POST   /api/{table}            insert
	PUT    /api/{table}/{id}       update
	DELETE /api/{table}/{id}       delete

Every request runs through the same pipeline: the analyzer parses it
into an operation descriptor, the role capability matrix authorizes it,
the query builder turns it into one parameterized statement, the data
gateway executes the statement under a timeout, and the result or a
typed error becomes the JSON response.

Query string filters use implicit AND with LIKE semantics; a literal
'*' in a value is the wildcard and becomes SQL '%'. Values that parse
entirely as numbers compare numerically. Four keys are reserved as
control parameters: order_by, desc, limit and offset.

The users table carries extra policy: password fields are stored as
bcrypt hashes, a POST is rejected when the email already exists, and a
write to the caller's own row refreshes the cached session profile.

The backend is configured with a single JSON document:

	{
	  "base_path": "/api/",
	  "id_map": { "posts_comments": "post_id" },
	  "rights": {
	    "visitor": { "posts": "get" },
	    "admin":   { "posts": ["get", "post", "put", "delete"] }
	  },
	  "schemas": { "posts": { "type": "object", "required": ["title"] } },
	  "search":  { "table": "posts", "columns": ["title", "content"] }
	}

The rights matrix doubles as the allow-list for table identifiers;
tables not named anywhere in it (or in the id map) are rejected before
any statement text is built.

The package also provides the thin /rest/login and /search/{word}
endpoints, which are plain callers of the same primitives.
*/
package backend
