// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// JSON bodies, path identifiers, months, list limits and as-of timestamps.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/blogle/dojo-sub001/internal/core"
)

// MaxBodyBytes bounds every request body the API accepts.
const MaxBodyBytes = 64 << 10

// errMalformed marks request errors answered with 400 rather than a ledger
// status.
var errMalformed = errors.New("malformed request")

// DecodeJSON reads exactly one JSON object from r into dst. Unknown fields
// are rejected so a typo cannot silently drop a value.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return fmt.Errorf("%w: body exceeds %d bytes", errMalformed, tooLarge.Limit)
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: empty body", errMalformed)
		default:
			return fmt.Errorf("%w: %v", errMalformed, err)
		}
	}
	if decoder.More() {
		return fmt.Errorf("%w: body must contain a single JSON object", errMalformed)
	}
	return nil
}

// PathUUID parses the {name} path value as a UUID.
func PathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(r.PathValue(name))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s %q is not a UUID", errMalformed, name, raw)
	}
	return id, nil
}

// ParseMonth accepts YYYY-MM or any YYYY-MM-DD inside the month and returns
// the first day of that month.
func ParseMonth(raw string) (core.Date, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse("2006-01", raw); err == nil {
		return core.DateOf(t), nil
	}
	d, err := core.ParseDate(raw)
	if err != nil {
		return core.Date{}, fmt.Errorf("%w: month %q must be YYYY-MM", core.ErrInvalidDate, raw)
	}
	return d.MonthStart(), nil
}

// ParseDate parses a YYYY-MM-DD request field. An empty value yields the zero
// date, which payload validation rejects.
func ParseDate(field, raw string) (core.Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(raw)
	if err != nil {
		return core.Date{}, fmt.Errorf("%w: %s %q must be YYYY-MM-DD", core.ErrInvalidDate, field, raw)
	}
	return d, nil
}

// ParseAsOf reads the as_of query parameter as RFC 3339. Without one the
// current instant is used.
func ParseAsOf(r *http.Request, now time.Time) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("as_of"))
	if raw == "" {
		return now, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: as_of %q must be RFC 3339", errMalformed, raw)
	}
	return ts, nil
}

// ParseLimit reads the limit query parameter. Without one it returns 0,
// which lets the ledger apply its default.
func ParseLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, fmt.Errorf("%w: limit %q must be a positive integer", errMalformed, raw)
	}
	return limit, nil
}

// sanitizeInput removes control characters other than tab and newlines and
// trims whitespace.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
