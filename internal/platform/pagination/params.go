package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultPageSize defines the fallback number of items returned when the client omits pageSize.
	DefaultPageSize = 50
	// DefaultMaxPageSize caps the supported pageSize.
	DefaultMaxPageSize = 100

	maxFilterValueLength = 64
)

// Params bundles pagination and filter values extracted from a request.
type Params struct {
	PageSize  int
	PageToken string
	Offset    int
	Filters   map[string]string
}

// Options control how Parse behaves for a given handler.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
	// FilterFields lists the query parameters accepted as equality filters.
	FilterFields []string
}

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid pageSize")
	ErrInvalidFilter    = errors.New("pagination: invalid filter")
	ErrInvalidPageToken = errors.New("pagination: invalid pageToken")
)

// FromRequest parses the supported query parameters from the supplied request.
func FromRequest(r *http.Request, opts Options) (Params, error) {
	if r == nil {
		return Params{}, errors.New("pagination: nil request")
	}
	return Parse(r.URL.Query(), opts)
}

// Parse consumes the provided query values and returns the normalised Params.
func Parse(values url.Values, opts Options) (Params, error) {
	if values == nil {
		values = url.Values{}
	}

	pageSize, err := parsePageSize(values.Get("pageSize"), opts)
	if err != nil {
		return Params{}, err
	}
	params := Params{PageSize: pageSize}

	if rawToken := strings.TrimSpace(values.Get("pageToken")); rawToken != "" {
		offset, err := DecodeToken(rawToken)
		if err != nil {
			return Params{}, err
		}
		params.PageToken = rawToken
		params.Offset = offset
	}

	for _, field := range opts.FilterFields {
		raw := strings.TrimSpace(values.Get(field))
		if raw == "" {
			continue
		}
		if len(raw) > maxFilterValueLength {
			return Params{}, fmt.Errorf("%w: %s value too long", ErrInvalidFilter, field)
		}
		if params.Filters == nil {
			params.Filters = make(map[string]string, len(opts.FilterFields))
		}
		params.Filters[field] = raw
	}
	return params, nil
}

func parsePageSize(raw string, opts Options) (int, error) {
	maxPageSize := opts.MaxPageSize
	if maxPageSize <= 0 {
		maxPageSize = DefaultMaxPageSize
	}

	defaultPageSize := opts.DefaultPageSize
	if defaultPageSize <= 0 {
		defaultPageSize = DefaultPageSize
	}
	if defaultPageSize > maxPageSize {
		defaultPageSize = maxPageSize
	}

	if strings.TrimSpace(raw) == "" {
		return defaultPageSize, nil
	}

	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: must be an integer", ErrInvalidPageSize)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidPageSize)
	}
	if value > maxPageSize {
		value = maxPageSize
	}
	return value, nil
}

// Window returns the bounds of the page starting at offset within total items and the token of the
// following page, which is empty on the last page.
func Window(total, offset, pageSize int) (start, end int, next string) {
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	end = offset + pageSize
	if end >= total {
		return offset, total, ""
	}
	return offset, end, EncodeToken(end)
}
