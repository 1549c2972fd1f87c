package builtin

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPLyricsProviderSearchJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "query=daft") {
			t.Errorf("unexpected query string %q", r.URL.RawQuery)
		}
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	p := NewHTTPLyricsProvider(srv.URL+"/search?query=%s", srv.URL+"/fetch?query=%s")
	body, err := p.SearchJSON(`{"query":"daft punk"}`)
	if err != nil {
		t.Fatalf("SearchJSON: %v", err)
	}
	if body != `{"results":[]}` {
		t.Fatalf("body = %q", body)
	}
}

func TestHTTPLyricsProviderFetchJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"lyrics":"la la la"}`))
	}))
	defer srv.Close()

	p := NewHTTPLyricsProvider(srv.URL+"/search?q=%s", srv.URL+"/fetch?q=%s")
	body, err := p.FetchJSON(`{"title":"One More Time","artist":"Daft Punk"}`)
	if err != nil {
		t.Fatalf("FetchJSON: %v", err)
	}
	if body != `{"lyrics":"la la la"}` {
		t.Fatalf("body = %q", body)
	}
}

func TestHTTPLyricsProviderNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewHTTPLyricsProvider(srv.URL+"/search?q=%s", srv.URL+"/fetch?q=%s")
	if _, err := p.SearchJSON(`{"query":"missing"}`); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestHTTPLyricsProviderBadInputJSON(t *testing.T) {
	p := NewHTTPLyricsProvider("http://example.invalid/search?q=%s", "http://example.invalid/fetch?q=%s")
	if _, err := p.SearchJSON("not json"); err == nil {
		t.Fatal("expected decode error")
	}
}
