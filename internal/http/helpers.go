package http

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/shopspring/decimal"

	"moneta/internal/core"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// decodeJSON reads a JSON request body into dst, rejecting unknown fields
// and trailing garbage.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return core.Validationf("malformed request body: %v", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return core.Validationf("request body must contain a single JSON object")
	}
	return nil
}

// parseOptionalDate parses an optional YYYY-MM-DD value; empty means unset.
func parseOptionalDate(s string) (core.Date, error) {
	if s == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(s)
}

// parseOptionalRate parses an optional positive decimal; empty means unset.
func parseOptionalRate(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Decimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, core.Validationf("rate %q is not a number", s)
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, core.Validationf("rate must be positive")
	}
	return d, nil
}
