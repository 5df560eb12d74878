// Package rendezvous turns a SessionIdentity into a shareable locator and back.
//
// Encoding is under local control, so a bad base URL is an error. Decoding
// consumes untrusted scanned text and never fails: a locator that carries no
// usable id simply yields nothing.
package rendezvous

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/1ureka/p2pdrop/internal/identity"
)

// QueryParam is the locator query parameter carrying the identity.
const QueryParam = "id"

var errNoScheme = errors.New("missing scheme")
var errNoHost = errors.New("missing host")

// EncodingError reports a structurally invalid base URL.
type EncodingError struct {
	BaseURL string
	Err     error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("rendezvous: invalid base URL %q: %v", e.BaseURL, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// Encode returns baseURL with the id query parameter set to id. Other query
// parameters and the fragment are preserved; an existing id is replaced.
func Encode(baseURL string, id identity.SessionIdentity) (string, error) {
	u, err := parse(baseURL)
	if err != nil {
		return "", &EncodingError{BaseURL: baseURL, Err: err}
	}

	q := u.Query()
	q.Set(QueryParam, string(id))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Decode extracts the identity from a locator. It returns false when the
// input is not an absolute URL or carries no non-empty id parameter.
func Decode(locator string) (identity.SessionIdentity, bool) {
	u, err := parse(locator)
	if err != nil {
		return "", false
	}

	id := u.Query().Get(QueryParam)
	if id == "" {
		return "", false
	}
	return identity.SessionIdentity(id), true
}

// DecodeStrict is Decode plus a shape check on the identity, for input that
// may be any code the camera happens to see.
func DecodeStrict(locator string) (identity.SessionIdentity, bool) {
	id, ok := Decode(locator)
	if !ok || !identity.Valid(string(id)) {
		return "", false
	}
	return id, true
}

// parse accepts absolute URLs only: a scheme plus either a host or an opaque part.
func parse(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" {
		return nil, errNoScheme
	}
	if u.Host == "" && u.Opaque == "" {
		return nil, errNoHost
	}
	return u, nil
}
