package model

import "testing"

func TestParseScheduleFull(t *testing.T) {
	doc := `{
		"school_start": "09:00",
		"school_end": "16:00",
		"server_hostname": "okul-sunucu",
		"blocks": [
			{"start_time": "09:00", "end_time": "09:40", "name": "Ders 1", "type": "lesson"},
			{"start_time": "09:40", "end_time": "09:50", "name": "Teneffüs", "type": "break"}
		]
	}`

	sched, hostname, err := ParseSchedule([]byte(doc))
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	if hostname != "okul-sunucu" {
		t.Fatalf("hostname = %q", hostname)
	}
	if sched.SchoolStart != (ClockTime{9, 0}) || sched.SchoolEnd != (ClockTime{16, 0}) {
		t.Fatalf("boundaries = %v..%v", sched.SchoolStart, sched.SchoolEnd)
	}
	if len(sched.Blocks) != 2 {
		t.Fatalf("blocks = %d, want 2", len(sched.Blocks))
	}
	if sched.Blocks[1].Type != BlockBreak {
		t.Fatalf("block type = %q", sched.Blocks[1].Type)
	}
}

func TestParseScheduleMalformedJSON(t *testing.T) {
	if _, _, err := ParseSchedule([]byte("{not json")); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestParseScheduleDegradesPerField(t *testing.T) {
	doc := `{
		"school_start": "25:99",
		"school_end": "",
		"blocks": [
			{"start_time": "bogus", "end_time": "09:40", "name": "Ders 1", "type": "lesson"},
			{"start_time": "09:40", "end_time": "09:50", "name": "", "type": "break"}
		]
	}`

	sched, _, err := ParseSchedule([]byte(doc))
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	if sched.SchoolStart != DefaultSchoolStart || sched.SchoolEnd != DefaultSchoolEnd {
		t.Fatalf("invalid boundaries did not fall back: %v..%v", sched.SchoolStart, sched.SchoolEnd)
	}
	// Both blocks were invalid, so the built-in schedule substitutes.
	if len(sched.Blocks) != len(DefaultSchedule().Blocks) {
		t.Fatalf("blocks = %d, want default set", len(sched.Blocks))
	}
}

func TestParsePlaylistRewritesRelativeURLs(t *testing.T) {
	doc := `{"items": [
		{"type": "video", "url": "/media/intro.mp4", "duration": -1, "muted": true},
		{"type": "image", "url": "http://cdn.example/poster.jpg", "duration": 8000}
	]}`

	p, err := ParsePlaylist([]byte(doc), "http://10.1.1.50:3232/")
	if err != nil {
		t.Fatalf("ParsePlaylist: %v", err)
	}
	if len(p.Items) != 2 {
		t.Fatalf("items = %d", len(p.Items))
	}
	if got := p.Items[0].URL; got != "http://10.1.1.50:3232/media/intro.mp4" {
		t.Fatalf("relative URL not rewritten: %q", got)
	}
	if got := p.Items[1].URL; got != "http://cdn.example/poster.jpg" {
		t.Fatalf("absolute URL was touched: %q", got)
	}
	if !p.Items[0].Muted {
		t.Fatal("muted flag dropped")
	}
}

func TestParsePlaylistDropsInvalidItems(t *testing.T) {
	doc := `{"items": [
		{"type": "", "url": "/a.mp4"},
		{"type": "video", "url": ""},
		{"type": "image", "url": "/b.jpg"}
	]}`

	p, err := ParsePlaylist([]byte(doc), "http://server")
	if err != nil {
		t.Fatalf("ParsePlaylist: %v", err)
	}
	if len(p.Items) != 1 || p.Items[0].URL != "http://server/b.jpg" {
		t.Fatalf("unexpected items: %+v", p.Items)
	}
}

func TestParsePlaylistZeroValidItemsIsError(t *testing.T) {
	if _, err := ParsePlaylist([]byte(`{"items": []}`), "http://server"); err == nil {
		t.Fatal("expected error for empty playlist")
	}
	if _, err := ParsePlaylist([]byte(`{"items": [{"type": "", "url": ""}]}`), "http://server"); err == nil {
		t.Fatal("expected error when every item is invalid")
	}
}

func TestLooksLikeSchedule(t *testing.T) {
	cases := []struct {
		body string
		want bool
	}{
		{`{"school_start": "08:50"}`, true},
		{`{"blocks": []}`, true},
		{`{"items": []}`, false},
		{`<html></html>`, false},
	}
	for _, tc := range cases {
		if got := LooksLikeSchedule([]byte(tc.body)); got != tc.want {
			t.Errorf("LooksLikeSchedule(%q) = %v, want %v", tc.body, got, tc.want)
		}
	}
}
