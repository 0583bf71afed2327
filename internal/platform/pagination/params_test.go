package pagination

import (
	"errors"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != DefaultPageSize {
		t.Fatalf("expected default page size %d got %d", DefaultPageSize, params.PageSize)
	}
	if params.PageToken != "" {
		t.Fatalf("expected empty page token got %q", params.PageToken)
	}
}

func TestParsePageSize(t *testing.T) {
	opts := Options{DefaultPageSize: 25, MaxPageSize: 40}
	values := url.Values{}
	values.Set("page_size", "30")

	params, err := Parse(values, opts)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != 30 {
		t.Fatalf("expected page size 30 got %d", params.PageSize)
	}

	values.Set("page_size", "400")
	params, err = Parse(values, opts)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != opts.MaxPageSize {
		t.Fatalf("expected page size clamped to %d got %d", opts.MaxPageSize, params.PageSize)
	}

	values.Set("page_size", "0")
	params, err = Parse(values, opts)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != opts.DefaultPageSize {
		t.Fatalf("expected fallback to default %d got %d", opts.DefaultPageSize, params.PageSize)
	}
}

func TestParseInvalidPageSize(t *testing.T) {
	values := url.Values{}
	values.Set("page_size", "abc")

	_, err := Parse(values, Options{})
	if !errors.Is(err, ErrInvalidPageSize) {
		t.Fatalf("expected ErrInvalidPageSize, got %v", err)
	}
}

func TestParseCarriesTokenOpaquely(t *testing.T) {
	values := url.Values{}
	values.Set("page_token", "  not-a-cursor  ")

	params, err := Parse(values, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageToken != "not-a-cursor" {
		t.Fatalf("expected trimmed token, got %q", params.PageToken)
	}
}

func TestFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/items?page_size=5&page_token=tok-next", nil)
	params, err := FromRequest(req, Options{DefaultPageSize: 20, MaxPageSize: 50})
	if err != nil {
		t.Fatalf("FromRequest returned error: %v", err)
	}
	if params.PageSize != 5 {
		t.Fatalf("expected page size 5 got %d", params.PageSize)
	}
	if params.PageToken != "tok-next" {
		t.Fatalf("expected token tok-next got %q", params.PageToken)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	token, err := EncodeToken(Cursor{StartAfter: []any{ts.Format(time.RFC3339Nano), "ntf_0042"}})
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	cursor, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("DecodeToken returned error: %v", err)
	}
	if len(cursor.StartAfter) != 2 {
		t.Fatalf("expected two cursor values, got %d", len(cursor.StartAfter))
	}
	if cursor.StartAfter[1] != "ntf_0042" {
		t.Fatalf("expected doc id ntf_0042, got %v", cursor.StartAfter[1])
	}
}

func TestDecodeTokenInvalid(t *testing.T) {
	if _, err := DecodeToken("%%not-base64%%"); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}

	cursor, err := DecodeToken("   ")
	if err != nil {
		t.Fatalf("blank token should decode to zero cursor, got error %v", err)
	}
	if len(cursor.StartAfter) != 0 || len(cursor.StartAt) != 0 {
		t.Fatalf("expected zero cursor, got %#v", cursor)
	}
}

func TestEncodeTokenEmptyCursor(t *testing.T) {
	token, err := EncodeToken(Cursor{})
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}
	if token != "" {
		t.Fatalf("expected empty token for zero cursor, got %q", token)
	}
}
