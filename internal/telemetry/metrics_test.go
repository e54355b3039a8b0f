package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExpositionCarriesKioskMetrics(t *testing.T) {
	m := New()
	m.IncCacheHit()
	m.IncCacheMiss()
	m.SetCacheSize(4096)
	m.IncPrefetch(true)
	m.IncPrefetch(false)
	m.SetConnected(true)
	m.SetPing(12)
	m.IncItemPlayed("video")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		"slateboard_cache_hits_total 1",
		"slateboard_cache_misses_total 1",
		"slateboard_cache_size_bytes 4096",
		`slateboard_prefetch_total{outcome="success"} 1`,
		`slateboard_prefetch_total{outcome="failure"} 1`,
		"slateboard_connected 1",
		"slateboard_ping_milliseconds 12",
		`slateboard_items_played_total{type="video"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	a := New()
	b := New()
	a.IncCacheHit()

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if strings.Contains(rec.Body.String(), "slateboard_cache_hits_total 1") {
		t.Fatal("metrics leaked across instances")
	}
}
