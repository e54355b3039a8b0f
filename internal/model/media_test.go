package model

import "testing"

func playlistOf(special bool, urls ...string) *Playlist {
	items := make([]MediaItem, len(urls))
	for i, u := range urls {
		items[i] = MediaItem{Type: MediaImage, URL: u}
	}
	return &Playlist{Items: items, Special: special}
}

func TestPlaylistAdvanceWraps(t *testing.T) {
	p := playlistOf(false, "a", "b", "c")

	for i, want := range []int{1, 2, 0, 1} {
		finished := p.Advance()
		if finished {
			t.Fatalf("advance %d: normal playlist reported finished", i)
		}
		if p.CurrentIndex != want {
			t.Fatalf("advance %d: index = %d, want %d", i, p.CurrentIndex, want)
		}
	}
}

func TestSpecialPlaylistFinishesOnLastItem(t *testing.T) {
	p := playlistOf(true, "a", "b")

	if finished := p.Advance(); finished {
		t.Fatal("finished before reaching last item")
	}
	if finished := p.Advance(); !finished {
		t.Fatal("expected finished on last item")
	}
	if p.CurrentIndex != 1 {
		t.Fatalf("cursor moved past last item: %d", p.CurrentIndex)
	}
	// Reporting finished again is fine; the cursor must stay put.
	if finished := p.Advance(); !finished {
		t.Fatal("expected finished to remain sticky")
	}
}

func TestEmptyPlaylist(t *testing.T) {
	var p *Playlist
	if p.HasItems() {
		t.Fatal("nil playlist reported items")
	}

	empty := &Playlist{}
	if empty.HasItems() {
		t.Fatal("empty playlist reported items")
	}
	if finished := empty.Advance(); finished {
		t.Fatal("empty playlist reported finished")
	}
}

func TestPeekNextWraps(t *testing.T) {
	p := playlistOf(false, "a", "b")
	p.CurrentIndex = 1
	if got := p.PeekNext().URL; got != "a" {
		t.Fatalf("PeekNext = %q, want wrap to %q", got, "a")
	}
}

func TestIsRemote(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"http://server:3232/media/a.mp4", true},
		{"https://server/media/a.mp4", true},
		{"/var/cache/slateboard/a.mp4", false},
		{"file:///tmp/a.mp4", false},
	}
	for _, tc := range cases {
		if got := (MediaItem{URL: tc.url}).IsRemote(); got != tc.want {
			t.Errorf("IsRemote(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}
