// Package gridrequest decodes grid HTTP requests into a flat parameter payload.
package gridrequest

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	// ActionParam selects the grid operation. It is read from the URL and
	// never appears in a Payload.
	ActionParam = "action"
	// NullToken is decoded to nil in write payloads.
	NullToken = "null"
	// ListSuffix marks a list-valued parameter name.
	ListSuffix = "[]"

	// MaxBodyBytes bounds the write payload read from a request body.
	MaxBodyBytes = 1 << 20
)

// ErrUnsupportedMethod is returned for methods other than GET and POST.
var ErrUnsupportedMethod = errors.New("unsupported method")

// Payload maps parameter names to a string, nil (the null token) or, for
// names sent with the [] suffix, a []any of those.
type Payload map[string]any

// Action returns the requested grid action.
func Action(r *http.Request) string {
	return r.URL.Query().Get(ActionParam)
}

// Decode reads the parameters of r. GET parameters come from the query string;
// POST parameters come from the urlencoded body, decoded by hand so the null
// token can be mapped to nil.
func Decode(r *http.Request) (Payload, error) {
	if r == nil {
		return nil, fmt.Errorf("request is nil")
	}
	switch r.Method {
	case http.MethodGet:
		p := Payload{}
		for name, values := range r.URL.Query() {
			if name == ActionParam {
				continue
			}
			for _, v := range values {
				p.add(name, v)
			}
		}
		return p, nil
	case http.MethodPost:
		if r.Body == nil {
			return Payload{}, nil
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
		if err != nil {
			return nil, err
		}
		if len(body) > MaxBodyBytes {
			return nil, fmt.Errorf("request body exceeds %d bytes", MaxBodyBytes)
		}
		return ParseBody(string(body))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, r.Method)
	}
}

// ParseBody decodes an application/x-www-form-urlencoded body.
func ParseBody(body string) (Payload, error) {
	p := Payload{}
	for _, pair := range strings.Split(body, "&") {
		if pair == "" {
			continue
		}
		rawName, rawValue, _ := strings.Cut(pair, "=")
		name, err := url.QueryUnescape(rawName)
		if err != nil {
			return nil, fmt.Errorf("invalid parameter name %q: %w", rawName, err)
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %q: %w", name, err)
		}
		if name == ActionParam {
			continue
		}
		if value == NullToken {
			p.add(name, nil)
			continue
		}
		p.add(name, value)
	}
	return p, nil
}

func (p Payload) add(name string, value any) {
	if base, ok := strings.CutSuffix(name, ListSuffix); ok && base != "" {
		list, _ := p[base].([]any)
		p[base] = append(list, value)
		return
	}
	p[name] = value
}

// Has reports whether name was sent, including with a null value.
func (p Payload) Has(name string) bool {
	_, ok := p[name]
	return ok
}

// String returns the text value of name. Null, missing and list values yield "".
func (p Payload) String(name string) string {
	s, _ := p[name].(string)
	return s
}

// Strings returns the values of a list parameter. A plain string value is
// split on commas.
func (p Payload) Strings(name string) []string {
	switch v := p[name].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	default:
		return nil
	}
}

// Bool reports whether name holds "true".
func (p Payload) Bool(name string) bool {
	return p.String(name) == "true"
}
