package validators

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/pagination"
)

// PageParams reads ?limit= and ?cursor= for list endpoints. The cursor stays
// opaque here; the service decodes it.
func PageParams(r *http.Request) (pagination.Params, error) {
	query := r.URL.Query()
	limit, err := queryInt(query, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(query.Get("cursor")),
	}, nil
}

// queryInt returns fallback when key is absent and a validation error when it
// is not an integer within [lo, hi].
func queryInt(query url.Values, key string, fallback, lo, hi int) (int, error) {
	raw := strings.TrimSpace(query.Get(key))
	if raw == "" {
		return fallback, nil
	}
	details := map[string]any{"field": key, "min": lo, "max": hi}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, key+" must be an integer").WithDetails(details)
	}
	if n < lo || n > hi {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, key+" is out of range").WithDetails(details)
	}
	return n, nil
}
