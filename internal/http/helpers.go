package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"wealthwise/internal/storage"
)

// notFound is the uniform sentinel for missing user, transaction, or
// payload conditions.
var notFound = map[string]string{"error": "Data not found"}

const (
	defaultPage     = 1
	defaultPageSize = 10
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps storage failures: not-found gets the sentinel, a
// rejected period filter gets a bad request, anything else is a server
// fault the caller cannot recover from.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, notFound)
	case errors.Is(err, storage.ErrMonthWithoutYear):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decodeBody decodes a JSON object payload. An absent or empty payload is
// reported as ok=false; handlers answer it with the not-found sentinel.
func decodeBody(r *http.Request) (map[string]any, bool) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, false
	}
	if len(body) == 0 {
		return nil, false
	}
	return body, true
}

// requireFields checks presence of each named field and returns a
// human-readable message for the first one missing ("first_name" becomes
// "First name is required").
func requireFields(body map[string]any, fields ...string) (string, bool) {
	for _, field := range fields {
		v, ok := body[field]
		if !ok || v == "" || v == nil {
			label := strings.ReplaceAll(field, "_", " ")
			label = strings.ToUpper(label[:1]) + label[1:]
			return fmt.Sprintf("%s is required", label), false
		}
	}
	return "", true
}

// pagingParams reads page and page_size query parameters with their
// defaults. Both must be positive integers.
func pagingParams(r *http.Request) (page, pageSize int, err error) {
	page, err = positiveIntParam(r, "page", defaultPage)
	if err != nil {
		return 0, 0, err
	}
	pageSize, err = positiveIntParam(r, "page_size", defaultPageSize)
	if err != nil {
		return 0, 0, err
	}
	return page, pageSize, nil
}

func positiveIntParam(r *http.Request, name string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return v, nil
}

// intParam reads an optional integer query parameter; absent means zero.
func intParam(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return v, nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func stringValue(body map[string]any, key string) string {
	s, _ := body[key].(string)
	return s
}

func floatValue(body map[string]any, key string) float64 {
	switch v := body[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	default:
		return 0
	}
}
