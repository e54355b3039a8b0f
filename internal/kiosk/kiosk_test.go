package kiosk

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/slateboard/slateboard/internal/config"
	"github.com/slateboard/slateboard/internal/events"
	"github.com/slateboard/slateboard/internal/model"
	"github.com/slateboard/slateboard/internal/playback"
)

func newTestKiosk(t *testing.T) *Kiosk {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Config{
		ServerAddress:    "10.1.1.50:3232",
		CacheDir:         filepath.Join(dir, "cache"),
		CacheMaxBytes:    1 << 20,
		ImageDuration:    time.Hour,
		StatusBind:       "127.0.0.1:0",
		SpecialEventsDir: filepath.Join(dir, "events"),
	}
	k, err := New(cfg, playback.NewLogSurface(zerolog.Nop()), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return k
}

func startBridge(t *testing.T, k *Kiosk) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	subs := k.subscribeBridge()
	k.bgWG.Add(1)
	go func() {
		defer k.bgWG.Done()
		k.runBusBridge(ctx, subs)
	}()
}

func waitForCurrentURL(t *testing.T, k *Kiosk, want string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if item, _, ok := k.engine.Current(); ok && item.URL == want {
			return
		}
		select {
		case <-deadline:
			item, _, ok := k.engine.Current()
			t.Fatalf("current = %+v (ok=%v), want url %q", item, ok, want)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func regularPlaylist() *model.Playlist {
	return &model.Playlist{Items: []model.MediaItem{
		{Type: model.MediaImage, URL: "/tmp/regular-a.jpg"},
		{Type: model.MediaImage, URL: "/tmp/regular-b.jpg"},
	}}
}

func specialPlaylist() *model.Playlist {
	return &model.Playlist{
		Special: true,
		Title:   "Ceremony",
		Items:   []model.MediaItem{{Type: model.MediaImage, URL: "/tmp/ceremony.jpg"}},
	}
}

func TestPlaylistReceivedStartsPlayback(t *testing.T) {
	k := newTestKiosk(t)
	startBridge(t, k)
	defer k.engine.Stop()

	k.bus.Publish(events.EventPlaylistReceived, events.Payload{"playlist": regularPlaylist()})
	waitForCurrentURL(t, k, "/tmp/regular-a.jpg")
}

func TestPlaylistPublishedBeforeBridgeLoopRuns(t *testing.T) {
	// Subscriptions are taken before the dispatch goroutine is scheduled, so
	// an event published immediately after startup must still be delivered.
	for i := 0; i < 20; i++ {
		k := newTestKiosk(t)
		ctx, cancel := context.WithCancel(context.Background())
		subs := k.subscribeBridge()
		k.bus.Publish(events.EventPlaylistReceived, events.Payload{"playlist": regularPlaylist()})
		k.bgWG.Add(1)
		go func() {
			defer k.bgWG.Done()
			k.runBusBridge(ctx, subs)
		}()
		waitForCurrentURL(t, k, "/tmp/regular-a.jpg")
		k.engine.Stop()
		cancel()
		k.bgWG.Wait()
	}
}

func TestScheduleReceivedUpdatesSnapshot(t *testing.T) {
	k := newTestKiosk(t)
	startBridge(t, k)

	sched := model.Schedule{
		SchoolStart: model.ClockTime{Hour: 10, Minute: 0},
		SchoolEnd:   model.ClockTime{Hour: 12, Minute: 0},
		Blocks: []model.ScheduleBlock{
			{Start: model.ClockTime{Hour: 10}, End: model.ClockTime{Hour: 12}, Name: "Tek Ders", Type: model.BlockLesson},
		},
	}
	k.bus.Publish(events.EventScheduleReceived, events.Payload{"schedule": sched})

	deadline := time.After(2 * time.Second)
	for {
		if got := k.Schedule(); got.SchoolStart == sched.SchoolStart && len(got.Blocks) == 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("schedule snapshot never updated: %+v", k.Schedule())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSpecialTakeoverAndRestore(t *testing.T) {
	k := newTestKiosk(t)
	startBridge(t, k)
	defer k.engine.Stop()

	k.bus.Publish(events.EventPlaylistReceived, events.Payload{"playlist": regularPlaylist()})
	waitForCurrentURL(t, k, "/tmp/regular-a.jpg")

	k.bus.Publish(events.EventSpecialStarted, events.Payload{
		"title":    "Ceremony",
		"playlist": specialPlaylist(),
	})
	waitForCurrentURL(t, k, "/tmp/ceremony.jpg")

	k.bus.Publish(events.EventSpecialEnded, events.Payload{"title": "Ceremony"})
	waitForCurrentURL(t, k, "/tmp/regular-a.jpg")
}

func TestPlaylistParkedDuringSpecial(t *testing.T) {
	k := newTestKiosk(t)
	startBridge(t, k)
	defer k.engine.Stop()

	k.bus.Publish(events.EventPlaylistReceived, events.Payload{"playlist": regularPlaylist()})
	waitForCurrentURL(t, k, "/tmp/regular-a.jpg")

	k.bus.Publish(events.EventSpecialStarted, events.Payload{
		"title":    "Ceremony",
		"playlist": specialPlaylist(),
	})
	waitForCurrentURL(t, k, "/tmp/ceremony.jpg")

	// Regular refresh lands mid-event; the special must keep playing.
	updated := &model.Playlist{Items: []model.MediaItem{
		{Type: model.MediaImage, URL: "/tmp/updated.jpg"},
	}}
	k.bus.Publish(events.EventPlaylistReceived, events.Payload{"playlist": updated})
	time.Sleep(100 * time.Millisecond)
	if item, _, _ := k.engine.Current(); item.URL != "/tmp/ceremony.jpg" {
		t.Fatalf("special interrupted by parked update: %q", item.URL)
	}

	// The parked update applies once the event ends.
	k.bus.Publish(events.EventSpecialEnded, events.Payload{"title": "Ceremony"})
	waitForCurrentURL(t, k, "/tmp/updated.jpg")
}

func TestPlaylistFinishedRestoresRegular(t *testing.T) {
	k := newTestKiosk(t)
	startBridge(t, k)
	defer k.engine.Stop()

	k.bus.Publish(events.EventPlaylistReceived, events.Payload{"playlist": regularPlaylist()})
	waitForCurrentURL(t, k, "/tmp/regular-a.jpg")

	k.bus.Publish(events.EventSpecialStarted, events.Payload{
		"title":    "Ceremony",
		"playlist": specialPlaylist(),
	})
	waitForCurrentURL(t, k, "/tmp/ceremony.jpg")

	// A one-item special finishes on its first advance.
	k.engine.Next()
	waitForCurrentURL(t, k, "/tmp/regular-a.jpg")
}
