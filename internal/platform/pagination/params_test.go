package pagination

import (
	"errors"
	"net/http"
	"net/url"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != DefaultPageSize {
		t.Fatalf("expected default page size %d got %d", DefaultPageSize, params.PageSize)
	}
	if params.PageToken != "" || params.Offset != 0 {
		t.Fatalf("expected empty page token got %q", params.PageToken)
	}
	if params.Filters != nil {
		t.Fatalf("expected nil filters, got %#v", params.Filters)
	}
}

func TestParsePageSize(t *testing.T) {
	opts := Options{DefaultPageSize: 25, MaxPageSize: 40}
	values := url.Values{}
	values.Set("pageSize", "30")

	params, err := Parse(values, opts)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != 30 {
		t.Fatalf("expected page size 30 got %d", params.PageSize)
	}

	values.Set("pageSize", "400")
	params, err = Parse(values, opts)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != opts.MaxPageSize {
		t.Fatalf("expected page size clamped to %d got %d", opts.MaxPageSize, params.PageSize)
	}
}

func TestParseInvalidPageSize(t *testing.T) {
	values := url.Values{}
	values.Set("pageSize", "abc")

	if _, err := Parse(values, Options{}); !errors.Is(err, ErrInvalidPageSize) {
		t.Fatalf("expected ErrInvalidPageSize got %v", err)
	}

	values.Set("pageSize", "0")
	if _, err := Parse(values, Options{}); !errors.Is(err, ErrInvalidPageSize) {
		t.Fatalf("expected ErrInvalidPageSize for zero got %v", err)
	}
}

func TestParsePageToken(t *testing.T) {
	token := EncodeToken(20)
	values := url.Values{}
	values.Set("pageToken", token)

	params, err := Parse(values, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.Offset != 20 || params.PageToken != token {
		t.Fatalf("expected offset 20, got %#v", params)
	}

	values.Set("pageToken", "%%%")
	if _, err := Parse(values, Options{}); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken got %v", err)
	}
}

func TestParseFilters(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "/admin/orders?status=pending&ignored=x", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	params, err := FromRequest(req, Options{FilterFields: []string{"status"}})
	if err != nil {
		t.Fatalf("FromRequest returned error: %v", err)
	}
	if len(params.Filters) != 1 || params.Filters["status"] != "pending" {
		t.Fatalf("unexpected filters %#v", params.Filters)
	}
}

func TestWindow(t *testing.T) {
	start, end, next := Window(5, 0, 2)
	if start != 0 || end != 2 || next != EncodeToken(2) {
		t.Fatalf("unexpected first window %d %d %q", start, end, next)
	}
	start, end, next = Window(5, 4, 2)
	if start != 4 || end != 5 || next != "" {
		t.Fatalf("unexpected last window %d %d %q", start, end, next)
	}
	start, end, next = Window(3, 10, 2)
	if start != 3 || end != 3 || next != "" {
		t.Fatalf("offset past the end must yield an empty page, got %d %d %q", start, end, next)
	}
}
