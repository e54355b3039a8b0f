package cache

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/slateboard/slateboard/internal/events"
	"github.com/slateboard/slateboard/internal/telemetry"
)

func newTestCache(t *testing.T, maxSize int64) (*Cache, *events.Bus) {
	t.Helper()
	bus := events.NewBus()
	c, err := New(t.TempDir(), maxSize, bus, telemetry.New(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Deterministic virtual clock so LRU ordering is testable.
	var tick int64
	c.now = func() int64 { tick++; return tick }
	return c, bus
}

func TestCacheHitAndMiss(t *testing.T) {
	c, _ := newTestCache(t, 1<<20)

	if _, ok := c.GetCachedPath("http://server/a.jpg"); ok {
		t.Fatal("hit on empty cache")
	}

	c.CacheFile("http://server/a.jpg", []byte("aaaa"))

	path, ok := c.GetCachedPath("http://server/a.jpg")
	if !ok {
		t.Fatal("expected hit after CacheFile")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read cached file: %v", err)
	}
	if !bytes.Equal(data, []byte("aaaa")) {
		t.Fatalf("cached bytes = %q", data)
	}

	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 {
		t.Fatalf("hits/misses = %d/%d, want 1/1", st.Hits, st.Misses)
	}
}

func TestStaleFileCountsAsMiss(t *testing.T) {
	c, _ := newTestCache(t, 1<<20)
	c.CacheFile("http://server/a.jpg", []byte("aaaa"))

	path, _ := c.GetCachedPath("http://server/a.jpg")
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove backing file: %v", err)
	}

	if _, ok := c.GetCachedPath("http://server/a.jpg"); ok {
		t.Fatal("hit on entry whose file was deleted")
	}
	if st := c.Stats(); st.ItemCount != 0 || st.TotalSize != 0 {
		t.Fatalf("stale entry not dropped: %+v", st)
	}
}

func TestCacheFileIdempotentOnSameContent(t *testing.T) {
	c, _ := newTestCache(t, 1<<20)
	c.CacheFile("http://server/a.jpg", []byte("aaaa"))
	c.CacheFile("http://server/a.jpg", []byte("aaaa"))

	if st := c.Stats(); st.ItemCount != 1 || st.TotalSize != 4 {
		t.Fatalf("duplicate write changed accounting: %+v", st)
	}
}

func TestCacheFileReplacesChangedContent(t *testing.T) {
	c, _ := newTestCache(t, 1<<20)
	c.CacheFile("http://server/a.jpg", []byte("aaaa"))
	c.CacheFile("http://server/a.jpg", []byte("bbbbbbbb"))

	if st := c.Stats(); st.ItemCount != 1 || st.TotalSize != 8 {
		t.Fatalf("replacement accounting wrong: %+v", st)
	}
	path, ok := c.GetCachedPath("http://server/a.jpg")
	if !ok {
		t.Fatal("expected hit")
	}
	data, _ := os.ReadFile(path)
	if !bytes.Equal(data, []byte("bbbbbbbb")) {
		t.Fatalf("stale content survived replacement: %q", data)
	}
}

func TestFailedRewriteKeepsPreviousEntry(t *testing.T) {
	c, _ := newTestCache(t, 1<<20)
	c.CacheFile("http://server/a.jpg", []byte("aaaa"))

	c.writeFile = func(string, []byte, os.FileMode) error {
		return fmt.Errorf("disk full")
	}
	c.CacheFile("http://server/a.jpg", []byte("bbbbbbbb"))

	if st := c.Stats(); st.ItemCount != 1 || st.TotalSize != 4 {
		t.Fatalf("failed write disturbed accounting: %+v", st)
	}
	path, ok := c.GetCachedPath("http://server/a.jpg")
	if !ok {
		t.Fatal("previous entry lost after failed write")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read cached file: %v", err)
	}
	if !bytes.Equal(data, []byte("aaaa")) {
		t.Fatalf("previous content lost: %q", data)
	}
}

func TestEvictionKeepsTotalWithinBudget(t *testing.T) {
	c, _ := newTestCache(t, 10)

	c.CacheFile("http://server/a", []byte("aaaa")) // 4
	c.CacheFile("http://server/b", []byte("bbbb")) // 8
	c.CacheFile("http://server/c", []byte("cccc")) // would be 12: evicts a

	st := c.Stats()
	if st.TotalSize > 10 {
		t.Fatalf("total %d exceeds budget", st.TotalSize)
	}
	if c.IsCached("http://server/a") {
		t.Fatal("least recently used entry survived")
	}
	if !c.IsCached("http://server/b") || !c.IsCached("http://server/c") {
		t.Fatal("newer entries evicted")
	}
}

func TestEvictionFollowsAccessRecency(t *testing.T) {
	c, _ := newTestCache(t, 10)

	c.CacheFile("http://server/a", []byte("aaaa"))
	c.CacheFile("http://server/b", []byte("bbbb"))

	// Touch a so b becomes the LRU victim.
	if _, ok := c.GetCachedPath("http://server/a"); !ok {
		t.Fatal("expected hit on a")
	}

	c.CacheFile("http://server/c", []byte("cccc"))

	if !c.IsCached("http://server/a") {
		t.Fatal("recently accessed entry evicted")
	}
	if c.IsCached("http://server/b") {
		t.Fatal("LRU entry survived")
	}
}

func TestOversizedItemLandsAfterCacheEmpties(t *testing.T) {
	c, _ := newTestCache(t, 10)
	c.CacheFile("http://server/a", []byte("aaaa"))
	c.CacheFile("http://server/big", bytes.Repeat([]byte("x"), 100))

	if c.IsCached("http://server/a") {
		t.Fatal("expected everything evicted for oversized item")
	}
	if !c.IsCached("http://server/big") {
		t.Fatal("oversized item rejected")
	}
}

func TestSetMaxSizeEvictsImmediately(t *testing.T) {
	c, _ := newTestCache(t, 1<<20)
	c.CacheFile("http://server/a", []byte("aaaa"))
	c.CacheFile("http://server/b", []byte("bbbb"))

	c.SetMaxSize(4)

	st := c.Stats()
	if st.TotalSize > 4 || st.ItemCount != 1 {
		t.Fatalf("shrink did not evict: %+v", st)
	}
	if c.IsCached("http://server/a") {
		t.Fatal("older entry kept over newer one")
	}
}

func TestClear(t *testing.T) {
	c, _ := newTestCache(t, 1<<20)
	c.CacheFile("http://server/a", []byte("aaaa"))
	path, _ := c.GetCachedPath("http://server/a")

	c.Clear()

	if st := c.Stats(); st.ItemCount != 0 || st.TotalSize != 0 || st.Hits != 0 {
		t.Fatalf("counters survived clear: %+v", st)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("backing file survived clear")
	}
}

func TestIndexSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	bus := events.NewBus()

	c, err := New(dir, 1<<20, bus, telemetry.New(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.CacheFile("http://server/a.jpg", []byte("aaaa"))
	c.CacheFile("http://server/b.jpg", []byte("bbbb"))
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := New(dir, 1<<20, events.NewBus(), telemetry.New(), zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if st := reopened.Stats(); st.ItemCount != 2 || st.TotalSize != 8 {
		t.Fatalf("index not restored: %+v", st)
	}
	if !reopened.IsCached("http://server/a.jpg") {
		t.Fatal("entry lost across restart")
	}
}

func TestIndexDropsVanishedFiles(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, 1<<20, events.NewBus(), telemetry.New(), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.CacheFile("http://server/a.jpg", []byte("aaaa"))
	c.CacheFile("http://server/b.jpg", []byte("bbbb"))
	c.Close()

	// Delete one backing file behind the index's back.
	if err := os.Remove(filepath.Join(dir, cacheKey("http://server/a.jpg"))); err != nil {
		t.Fatalf("remove: %v", err)
	}

	reopened, err := New(dir, 1<<20, events.NewBus(), telemetry.New(), zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	st := reopened.Stats()
	if st.ItemCount != 1 || st.TotalSize != 4 {
		t.Fatalf("vanished file still indexed: %+v", st)
	}
}

func TestPrefetchStoresAndPublishes(t *testing.T) {
	payload := []byte("video-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	c, bus := newTestCache(t, 1<<20)
	done := bus.Subscribe(events.EventPrefetchComplete)
	defer bus.Unsubscribe(events.EventPrefetchComplete, done)

	url := srv.URL + "/media/a.mp4"
	c.PrefetchURL(url)

	select {
	case p := <-done:
		if p["success"] != true {
			t.Fatalf("prefetch failed: %v", p)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("prefetch completion never published")
	}

	if !c.IsCached(url) {
		t.Fatal("prefetched content not cached")
	}
}

func TestPrefetchFailurePublishes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	c, bus := newTestCache(t, 1<<20)
	done := bus.Subscribe(events.EventPrefetchComplete)
	defer bus.Unsubscribe(events.EventPrefetchComplete, done)

	c.PrefetchURL(srv.URL + "/missing.mp4")

	select {
	case p := <-done:
		if p["success"] != false {
			t.Fatalf("expected failure payload, got %v", p)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("prefetch completion never published")
	}
}

func TestPrefetchCachedURLIsImmediate(t *testing.T) {
	c, bus := newTestCache(t, 1<<20)
	done := bus.Subscribe(events.EventPrefetchComplete)
	defer bus.Unsubscribe(events.EventPrefetchComplete, done)

	c.CacheFile("http://server/a.jpg", []byte("aaaa"))
	c.PrefetchURL("http://server/a.jpg")

	select {
	case p := <-done:
		if p["success"] != true {
			t.Fatalf("expected success for cached url, got %v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("no completion for already-cached url")
	}
}

func TestKeyCollisionFreeAcrossURLs(t *testing.T) {
	c, _ := newTestCache(t, 1<<20)
	for i := 0; i < 10; i++ {
		c.CacheFile(fmt.Sprintf("http://server/file-%d", i), []byte("same content"))
	}
	if st := c.Stats(); st.ItemCount != 10 {
		t.Fatalf("distinct URLs collided: %+v", st)
	}
}
