package crossfade

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"AmbientFM/core/audio"
	"AmbientFM/model"

	"github.com/gopxl/beep/v2"
)

const testRate = beep.SampleRate(8000)

var testCfg = Config{
	FadeIn:     30 * time.Millisecond,
	FadeOut:    20 * time.Millisecond,
	VolumeRamp: 10 * time.Millisecond,
}

type mapLoader map[string]*audio.Handle

func (m mapLoader) Load(ctx context.Context, track model.Track) (*audio.Handle, error) {
	h, ok := m[track.UniquePath]
	if !ok {
		return nil, audio.NewError(audio.ErrLoad, "load", "Failed to load audio", errors.New("not found"))
	}
	return h, nil
}

func constHandle(key string) *audio.Handle {
	buf := beep.NewBuffer(beep.Format{SampleRate: testRate, NumChannels: 2, Precision: 2})
	buf.Append(beep.Take(testRate.N(5*time.Second), beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			samples[i] = [2]float64{1, 1}
		}
		return len(samples), true
	})))
	return audio.NewHandle(key, buf)
}

type fixture struct {
	engine *Engine
	graph  *audio.Graph
	device *audio.ManualDevice
	tracks []model.Track
}

func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	dev := &audio.ManualDevice{}
	g := audio.NewGraph(testRate, func() audio.Device { return dev })
	loader := mapLoader{}
	var tracks []model.Track
	for i := 0; i < n; i++ {
		tr := model.Track{Category: "Rain", Title: string(rune('A' + i)), UniquePath: "Rain/" + string(rune('a'+i)) + ".wav"}
		loader[tr.UniquePath] = constHandle(tr.UniquePath)
		tracks = append(tracks, tr)
	}
	return &fixture{engine: NewEngine(g, loader, testCfg), graph: g, device: dev, tracks: tracks}
}

func (f *fixture) playing(t *testing.T, track model.Track, volume int) *Source {
	t.Helper()
	src, err := f.engine.NewSource(context.Background(), track, volume)
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	if err := src.Handle.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	return src
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 1s")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestSilenceFromPausedSourceIsNoop(t *testing.T) {
	f := newFixture(t, 2)
	src, err := f.engine.NewSource(context.Background(), f.tracks[0], 60)
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	now := src.Gain.Now()

	got := f.engine.Crossfade(context.Background(), src, f.tracks[1], 0)
	if got != src {
		t.Fatal("crossfade to silence replaced the source")
	}
	if v := src.Gain.Gain.ValueAt(now + time.Second); !near(v, 0.6) {
		t.Errorf("gain = %v, want unchanged 0.6", v)
	}
	if !got.Paused() {
		t.Error("paused source started playing")
	}
}

func TestSilenceFadesPlayingSourceOut(t *testing.T) {
	f := newFixture(t, 2)
	src := f.playing(t, f.tracks[0], 80)
	f.device.Render(10 * time.Millisecond)
	now := src.Gain.Now()

	got := f.engine.Crossfade(context.Background(), src, f.tracks[1], 0)
	if got != src {
		t.Fatal("crossfade to silence replaced the source")
	}
	if v := src.Gain.Gain.ValueAt(now); !near(v, 0.8) {
		t.Errorf("gain at start = %v, want 0.8", v)
	}
	mid := src.Gain.Gain.ValueAt(now + testCfg.FadeOut/2)
	if mid <= 0 || mid >= 0.8 {
		t.Errorf("gain mid fade = %v, want within (0, 0.8)", mid)
	}
	if v := src.Gain.Gain.ValueAt(now + testCfg.FadeOut); !near(v, 0) {
		t.Errorf("gain after fade = %v, want 0", v)
	}
	next, _ := f.engine.loader.Load(context.Background(), f.tracks[1])
	if !next.Paused() {
		t.Error("unused target handle is playing")
	}
	if src.Paused() {
		t.Error("fade out paused the current handle")
	}
}

func TestFadeInFromPaused(t *testing.T) {
	f := newFixture(t, 2)
	old, _ := f.engine.NewSource(context.Background(), f.tracks[0], 50)
	now := old.Gain.Now()

	got := f.engine.Crossfade(context.Background(), old, f.tracks[1], 50)
	if got == old {
		t.Fatal("fade in returned the original source")
	}
	if got.Track != f.tracks[1] || got.Paused() {
		t.Errorf("new source %q paused=%v", got.Track.UniquePath, got.Paused())
	}
	if v := got.Gain.Gain.ValueAt(now); !near(v, 0) {
		t.Errorf("gain at start = %v, want 0", v)
	}
	if v := got.Gain.Gain.ValueAt(now + testCfg.FadeIn); !near(v, 0.5) {
		t.Errorf("gain after fade in = %v, want 0.5", v)
	}
	if old.Gain.Connected() || !old.Disposed() {
		t.Error("paused source not disconnected")
	}
}

func TestFullCrossfadeConservation(t *testing.T) {
	f := newFixture(t, 2)
	old := f.playing(t, f.tracks[0], 100)
	f.device.Render(10 * time.Millisecond)
	now := old.Gain.Now()

	got := f.engine.Crossfade(context.Background(), old, f.tracks[1], 70)
	if got == old {
		t.Fatal("crossfade returned the original source")
	}
	if v := old.Gain.Gain.ValueAt(now + testCfg.FadeOut); !near(v, 0) {
		t.Errorf("old gain after fade out = %v, want 0", v)
	}
	if v := got.Gain.Gain.ValueAt(now + testCfg.FadeIn); !near(v, 0.7) {
		t.Errorf("new gain after fade in = %v, want 0.7", v)
	}
	if h, g := old.Pending(); h != got.Handle || g != got.Gain {
		t.Error("pending next not recorded on the old source")
	}
	if got.Outgoing() != old {
		t.Error("outgoing source not recorded")
	}

	// 淡入淡出期间两路同时发声
	if old.Paused() || got.Paused() {
		t.Fatal("a source was paused mid crossfade")
	}

	waitFor(t, old.Disposed)
	if !old.Paused() || old.Gain.Connected() {
		t.Error("superseded source still playing or connected")
	}
	if got.Paused() || !got.Gain.Connected() {
		t.Error("current source stopped by cleanup")
	}
	waitFor(t, func() bool { return got.Outgoing() == nil })
	if h, _ := old.Pending(); h != nil {
		t.Error("pending next survived cleanup")
	}

	f.engine.Dispose(old)
	if got.Paused() {
		t.Error("repeated dispose touched the current source")
	}

	out := f.device.Render(testCfg.FadeIn + 10*time.Millisecond)
	if last := out[len(out)-1][0]; math.Abs(last-0.7) > 1e-3 {
		t.Errorf("output after crossfade = %v, want 0.7", last)
	}
}

func TestCrossfadeToSameTrackKeepsPlaying(t *testing.T) {
	f := newFixture(t, 1)
	old := f.playing(t, f.tracks[0], 100)

	got := f.engine.Crossfade(context.Background(), old, f.tracks[0], 100)
	if got == old || got.Handle != old.Handle {
		t.Fatal("expected a new source on the same handle")
	}
	waitFor(t, old.Disposed)
	if got.Paused() {
		t.Error("cleanup paused a handle the new source still uses")
	}
}

func TestCrossfadeFailureReturnsOriginal(t *testing.T) {
	f := newFixture(t, 1)
	old := f.playing(t, f.tracks[0], 40)
	missing := model.Track{Category: "Rain", UniquePath: "Rain/missing.wav"}

	if got := f.engine.Crossfade(context.Background(), old, missing, 40); got != old {
		t.Fatal("failed crossfade replaced the source")
	}
	if old.Paused() || !old.Gain.Connected() {
		t.Error("failed crossfade disturbed the source")
	}
}

func TestStaleCleanupIsSkipped(t *testing.T) {
	f := newFixture(t, 3)
	old := f.playing(t, f.tracks[0], 100)

	next := f.engine.Crossfade(context.Background(), old, f.tracks[1], 100)
	if next == old {
		t.Fatal("crossfade failed")
	}
	// 清理前从 old 再次发起过渡，原先安排的清理失效
	if again := f.engine.Crossfade(context.Background(), old, f.tracks[2], 0); again != old {
		t.Fatal("silence transition replaced the source")
	}
	time.Sleep(3 * max(testCfg.FadeIn, testCfg.FadeOut))
	if old.Disposed() {
		t.Error("stale cleanup disposed the source")
	}
	if old.Generation() != 2 {
		t.Errorf("generation = %d, want 2", old.Generation())
	}
}

func TestSetVolumeRamps(t *testing.T) {
	f := newFixture(t, 1)
	src := f.playing(t, f.tracks[0], 20)
	now := src.Gain.Now()

	f.engine.SetVolume(src, 90)
	for at := now; at <= now+testCfg.VolumeRamp; at += time.Millisecond {
		v := src.Gain.Gain.ValueAt(at)
		if v < 0.2-1e-9 || v > 0.9+1e-9 {
			t.Fatalf("gain at %v = %v, outside [0.2, 0.9]", at, v)
		}
	}
	if v := src.Gain.Gain.ValueAt(now + testCfg.VolumeRamp); !near(v, 0.9) {
		t.Errorf("gain after ramp = %v, want 0.9", v)
	}
	f.engine.SetVolume(nil, 10)
}

func TestContextFailure(t *testing.T) {
	boom := errors.New("device busy")
	g := audio.NewGraph(testRate, func() audio.Device { return &audio.ManualDevice{StartErr: boom} })
	e := NewEngine(g, mapLoader{}, testCfg)
	_, err := e.NewSource(context.Background(), model.Track{UniquePath: "x"}, 50)
	if !errors.Is(err, audio.ErrContext) {
		t.Errorf("NewSource error = %v, want ErrContext", err)
	}
}
