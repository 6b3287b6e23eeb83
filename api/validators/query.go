package validators

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/tradepost-backend/pkg/errors"
	"github.com/angelmondragon/tradepost-backend/pkg/pagination"
)

const maxCursorLen = 256

// ListQuery is the limit and cursor pair every paginated endpoint accepts.
type ListQuery struct {
	Limit  int
	Cursor string
}

// ParseListQuery reads ?limit and ?cursor. The cursor stays opaque here; the
// service decodes it.
func ParseListQuery(r *http.Request) (ListQuery, error) {
	limit, err := ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return ListQuery{}, err
	}
	cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
	if len(cursor) > maxCursorLen {
		return ListQuery{}, fieldError("cursor", "cursor is too long")
	}
	return ListQuery{Limit: limit, Cursor: cursor}, nil
}

func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fieldError(key, key+" must be numeric")
	}
	if value < min || value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, key+" out of range").
			WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return value, nil
}

// ParseQueryBool returns false when key is absent.
func ParseQueryBool(r *http.Request, key string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fieldError(key, key+" must be true or false")
	}
	return value, nil
}

// ParseQueryEnum lowercases key and checks it against allowed. Absent yields "".
func ParseQueryEnum(r *http.Request, key string, allowed ...string) (string, error) {
	raw := strings.ToLower(strings.TrimSpace(r.URL.Query().Get(key)))
	if raw == "" || slices.Contains(allowed, raw) {
		return raw, nil
	}
	return "", pkgerrors.New(pkgerrors.CodeValidation, key+" must be one of "+strings.Join(allowed, ", ")).
		WithDetails(map[string]any{"field": key})
}

func fieldError(field, message string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, message).WithDetails(map[string]any{"field": field})
}
