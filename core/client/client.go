/*
Package client provides easy and fast in-process access to the REST api

Instead of marshalling HTTP, the client talks directly to the mux router.
It keeps cookies between calls, so session flows behave as they would
for a browser. It is perfectly suited for unit tests.
*/
package client

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/goccy/go-json"

	"github.com/gorilla/mux"
)

// Client provides easy access to the REST API.
type Client struct {
	router  *mux.Router
	cookies map[string]*http.Cookie
}

// NewWithRouter creates a client to make pseudo-REST requests to the
// backend, through the mux router.
func NewWithRouter(router *mux.Router) *Client {
	return &Client{
		router:  router,
		cookies: map[string]*http.Cookie{},
	}
}

// Cookie returns the stored cookie with the given name, or nil.
func (c *Client) Cookie(name string) *http.Cookie {
	return c.cookies[name]
}

// ClearCookies drops all stored cookies, simulating a fresh browser.
func (c *Client) ClearCookies() {
	c.cookies = map[string]*http.Cookie{}
}

func (c *Client) do(method, path string, body, result interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}

	r := httptest.NewRequest(method, path, reader)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	for _, cookie := range c.cookies {
		r.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, r)
	res := rec.Result()

	for _, cookie := range res.Cookies() {
		c.cookies[cookie.Name] = cookie
	}

	if result != nil && rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), result); err != nil {
			return res.StatusCode, err
		}
	}
	return res.StatusCode, nil
}

// Get gets the resource from path. Expects a JSON response, which it
// unmarshals into result unless result is nil. Returns the status code.
func (c *Client) Get(path string, result interface{}) (int, error) {
	return c.do(http.MethodGet, path, nil, result)
}

// Post posts body to path as JSON. Returns the status code.
func (c *Client) Post(path string, body, result interface{}) (int, error) {
	return c.do(http.MethodPost, path, body, result)
}

// Put puts body to path as JSON. Returns the status code.
func (c *Client) Put(path string, body, result interface{}) (int, error) {
	return c.do(http.MethodPut, path, body, result)
}

// Delete deletes the resource at path. Returns the status code.
func (c *Client) Delete(path string, result interface{}) (int, error) {
	return c.do(http.MethodDelete, path, nil, result)
}
