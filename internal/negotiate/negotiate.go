// Package negotiate picks a response media type from an Accept header, with
// an explicit format query parameter taking precedence.
package negotiate

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// Client-facing messages for the two negotiation failures.
const (
	MalformedAcceptMessage = "You have requested a Media Type using an Accept header that is incorrectly formatted."
	NotAcceptableMessage   = "Please use a valid accept type."
)

var (
	// ErrMalformedAccept wraps every Accept header parse failure.
	ErrMalformedAccept = errors.New("malformed accept header")
	// ErrNotAcceptable is returned when nothing the client accepts is provided
	// and the endpoint has no fallback.
	ErrNotAcceptable = errors.New("no acceptable media type")
)

// FormatParams are the query parameters that override the Accept header, in
// order of precedence.
var FormatParams = []string{"format", "_format"}

// MediaRange is one entry of an Accept header.
type MediaRange struct {
	Type   string
	Weight float64
}

// ParseAccept splits an Accept header into media ranges ordered by weight,
// highest first. Ties keep header order. A blank header accepts anything.
func ParseAccept(header string) ([]MediaRange, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return []MediaRange{{Type: "*/*", Weight: 1}}, nil
	}

	var out []MediaRange
	for _, part := range strings.Split(header, ",") {
		part = strings.ReplaceAll(part, " ", "")
		part = strings.ReplaceAll(part, "\t", "")
		fields := strings.Split(part, ";")
		mt := strings.ToLower(fields[0])
		if mt == "" || !strings.Contains(mt, "/") {
			return nil, fmt.Errorf("%w: media range %q", ErrMalformedAccept, part)
		}
		weight := 1.0
		for _, p := range fields[1:] {
			k, v, ok := strings.Cut(p, "=")
			if !ok {
				return nil, fmt.Errorf("%w: parameter %q", ErrMalformedAccept, p)
			}
			if strings.ToLower(k) != "q" {
				continue
			}
			w, err := strconv.ParseFloat(v, 64)
			if err != nil || w < 0 || w > 1 {
				return nil, fmt.Errorf("%w: weight %q", ErrMalformedAccept, v)
			}
			weight = w
		}
		if weight == 0 {
			continue
		}
		out = append(out, MediaRange{Type: mt, Weight: weight})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	return out, nil
}

// Match returns the first provided type the ranges accept. Exact matches
// anywhere in the list win over wildcards.
func Match(ranges []MediaRange, provides []string) (string, bool) {
	if len(provides) == 0 {
		return "", false
	}
	for _, r := range ranges {
		for _, p := range provides {
			if r.Type == p {
				return p, true
			}
		}
	}
	for _, r := range ranges {
		switch {
		case r.Type == "*/*":
			return provides[0], true
		case strings.HasSuffix(r.Type, "/*"):
			prefix := strings.TrimSuffix(r.Type, "*")
			for _, p := range provides {
				if strings.HasPrefix(p, prefix) {
					return p, true
				}
			}
		case strings.HasPrefix(r.Type, "*/"):
			suffix := strings.TrimPrefix(r.Type, "*")
			for _, p := range provides {
				if strings.HasSuffix(p, suffix) {
					return p, true
				}
			}
		}
	}
	return "", false
}

// Override returns the media type named by a format query parameter, when it
// is one of provides.
func Override(r *http.Request, provides []string) (string, bool) {
	q := r.URL.Query()
	for _, name := range FormatParams {
		v := strings.ToLower(strings.TrimSpace(q.Get(name)))
		if v == "" {
			continue
		}
		for _, p := range provides {
			if v == p {
				return p, true
			}
		}
	}
	return "", false
}

// Select resolves the media type for r. An empty fallback means the endpoint
// has none and ErrNotAcceptable is returned when nothing matches.
func Select(r *http.Request, provides []string, fallback string) (string, error) {
	if mt, ok := Override(r, provides); ok {
		return mt, nil
	}
	ranges, err := ParseAccept(r.Header.Get("Accept"))
	if err != nil {
		return "", err
	}
	if mt, ok := Match(ranges, provides); ok {
		return mt, nil
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", ErrNotAcceptable
}
