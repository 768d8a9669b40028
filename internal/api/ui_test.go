package api

import (
	"net/http"
	"strings"
	"testing"
)

func TestIndexPageServed(t *testing.T) {
	f := newFixture(t, Dependencies{})

	rec := f.do(t, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `id="history"`) || !strings.Contains(body, "/static/app.js") {
		t.Fatalf("unexpected page: %q", body)
	}
}

func TestStaticScriptConsumesHistoryUpdates(t *testing.T) {
	f := newFixture(t, Dependencies{})

	rec := f.do(t, http.MethodGet, "/static/app.js", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{EventHistoryUpdate, "/api/copy/", "/ws"} {
		if !strings.Contains(body, want) {
			t.Fatalf("app.js does not reference %q", want)
		}
	}
	if rec := f.do(t, http.MethodGet, "/static/style.css", nil); rec.Code != http.StatusOK {
		t.Fatalf("style.css status = %d", rec.Code)
	}
}

func TestPageIsPublicButAPIStaysProtected(t *testing.T) {
	f := newFixture(t, Dependencies{Token: "s3cret"})

	if rec := f.do(t, http.MethodGet, "/", nil); rec.Code != http.StatusOK {
		t.Fatalf("page status = %d, want 200", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/history", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("api status = %d, want 401", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/history?token=s3cret", nil); rec.Code != http.StatusOK {
		t.Fatalf("api with query token status = %d, want 200", rec.Code)
	}
}
