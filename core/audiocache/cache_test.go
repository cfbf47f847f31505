package audiocache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"AmbientFM/core/audio"
	"AmbientFM/model"

	"github.com/gopxl/beep/v2"
)

type fakeLoader struct {
	mu       sync.Mutex
	attempts map[string]int
	// 每个路径前 n 次失败，-1 表示总是失败
	failFirst map[string]int
	delay     time.Duration
	// 失败前先上报的进度，模拟下载完成后解码失败
	progressBeforeFail int
	// 按开始顺序记录的加载路径
	order []string
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{attempts: map[string]int{}, failFirst: map[string]int{}}
}

func (f *fakeLoader) Load(ctx context.Context, track model.Track, progress func(int)) (*audio.Handle, error) {
	f.mu.Lock()
	f.attempts[track.UniquePath]++
	n := f.attempts[track.UniquePath]
	fail := f.failFirst[track.UniquePath]
	delay := f.delay
	partial := f.progressBeforeFail
	f.order = append(f.order, track.UniquePath)
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail < 0 || n <= fail {
		if progress != nil && partial > 0 {
			progress(partial)
		}
		return nil, fmt.Errorf("fetch %s: connection reset", track.UniquePath)
	}
	if progress != nil {
		progress(50)
	}
	sr := beep.SampleRate(8000)
	buf := beep.NewBuffer(beep.Format{SampleRate: sr, NumChannels: 2, Precision: 2})
	buf.Append(beep.Take(sr.N(10*time.Millisecond), beep.Silence(-1)))
	return audio.NewHandle(track.UniquePath, buf), nil
}

func (f *fakeLoader) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[path]
}

// firstIndex 返回 path 第一次开始加载的位置，lastIndex 返回最后一次
func (f *fakeLoader) firstIndex(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.order {
		if p == path {
			return i
		}
	}
	return -1
}

func (f *fakeLoader) lastIndex(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.order) - 1; i >= 0; i-- {
		if f.order[i] == path {
			return i
		}
	}
	return -1
}

func testConfig() Config {
	return Config{RequiredReady: 2, MaxRetries: 3, RetryDelay: time.Millisecond, BackgroundConcurrency: 2}
}

func catalog(categories []string, perCategory int) []model.Track {
	var tracks []model.Track
	for _, cat := range categories {
		for i := 0; i < perCategory; i++ {
			tracks = append(tracks, model.Track{
				Locator:    fmt.Sprintf("https://cdn.example.com/%s/%d.mp3", cat, i),
				Title:      fmt.Sprintf("%s %d", cat, i),
				Category:   cat,
				UniquePath: fmt.Sprintf("%s/%d.mp3", cat, i),
			})
		}
	}
	return tracks
}

func TestLoadWithRetryBound(t *testing.T) {
	tests := []struct {
		name         string
		failFirst    int
		wantAttempts int
		wantErr      bool
	}{
		{"first try", 0, 1, false},
		{"second try", 1, 2, false},
		{"last try", 3, 4, false},
		{"always fails", -1, 4, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := newFakeLoader()
			track := catalog([]string{"Rain"}, 1)[0]
			loader.failFirst[track.UniquePath] = tt.failFirst
			c := New(loader, testConfig())

			h, err := c.LoadWithRetry(context.Background(), track)
			if got := loader.count(track.UniquePath); got != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", got, tt.wantAttempts)
			}
			st := c.Status(track)
			if tt.wantErr {
				if !errors.Is(err, audio.ErrLoad) {
					t.Fatalf("error = %v, want ErrLoad", err)
				}
				if st.IsLoading || st.Error == "" {
					t.Errorf("status = %+v, want failed", st)
				}
				return
			}
			if err != nil || h == nil {
				t.Fatalf("LoadWithRetry: %v", err)
			}
			if st != (Status{Progress: 100}) {
				t.Errorf("status = %+v, want ready", st)
			}
			// 已就绪的音轨不会再次加载
			if _, err := c.Load(context.Background(), track); err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got := loader.count(track.UniquePath); got != tt.wantAttempts {
				t.Errorf("attempts after Load = %d, want %d", got, tt.wantAttempts)
			}
		})
	}
}

func TestStatusDefaultsForUnknownTrack(t *testing.T) {
	c := New(newFakeLoader(), testConfig())
	if got := c.Status(model.Track{UniquePath: "nope"}); got != (Status{}) {
		t.Errorf("Status = %+v, want zero value", got)
	}
	if c.IsFullyReady() {
		t.Error("IsFullyReady before Initialize = true")
	}
}

func TestInitializeReadyDespiteBackgroundFailures(t *testing.T) {
	loader := newFakeLoader()
	categories := []string{"Brown Noise", "Rain"}
	tracks := catalog(categories, 5)
	for _, tr := range tracks {
		var i int
		fmt.Sscanf(tr.UniquePath[len(tr.Category)+1:], "%d", &i)
		if i >= 2 {
			loader.failFirst[tr.UniquePath] = -1
		}
	}
	c := New(loader, testConfig())

	if err := c.Initialize(context.Background(), tracks); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if !c.IsFullyReady() {
		t.Fatal("IsFullyReady after priority loads = false")
	}
	select {
	case <-c.Ready():
	default:
		t.Error("Ready channel not closed")
	}

	// 等后台加载全部失败，就绪状态不回退
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !c.IsFullyReady() {
			t.Fatal("readiness decreased")
		}
		done := true
		for _, tr := range tracks[2:5] {
			if c.Status(tr).IsLoading || c.Status(tr).Error == "" {
				done = false
			}
		}
		if done {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	for _, cat := range categories {
		if got := c.ReadyCount(cat); got != 2 {
			t.Errorf("ReadyCount(%s) = %d, want 2", cat, got)
		}
	}
	if !c.IsFullyReady() {
		t.Error("IsFullyReady after background failures = false")
	}
}

func TestInitializeFailsWhenCategoryHasNoPriorityTrack(t *testing.T) {
	loader := newFakeLoader()
	tracks := catalog([]string{"Brown Noise", "Rain"}, 3)
	for _, tr := range tracks {
		if tr.Category == "Rain" {
			loader.failFirst[tr.UniquePath] = -1
		}
	}
	c := New(loader, testConfig())

	err := c.Initialize(context.Background(), tracks)
	if !errors.Is(err, audio.ErrLoad) {
		t.Fatalf("Initialize error = %v, want ErrLoad", err)
	}
	if c.IsFullyReady() {
		t.Error("IsFullyReady = true with a category below threshold")
	}
	if got := c.ReadyCount("Brown Noise"); got != 2 {
		t.Errorf("ReadyCount(Brown Noise) = %d, want 2", got)
	}
}

func TestInitializeToleratesOnePriorityFailure(t *testing.T) {
	loader := newFakeLoader()
	tracks := catalog([]string{"Rain"}, 3)
	loader.failFirst[tracks[0].UniquePath] = -1
	c := New(loader, testConfig())

	if err := c.Initialize(context.Background(), tracks); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	// 第三首在后台加载成功后补足阈值
	select {
	case <-c.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("cache never became ready")
	}
}

func TestConcurrentLoadsShareOneAttempt(t *testing.T) {
	loader := newFakeLoader()
	loader.delay = 20 * time.Millisecond
	track := catalog([]string{"Rain"}, 1)[0]
	c := New(loader, testConfig())

	var wg sync.WaitGroup
	handles := make([]*audio.Handle, 4)
	for i := range handles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := c.Load(context.Background(), track)
			if err != nil {
				t.Errorf("Load: %v", err)
			}
			handles[i] = h
		}()
	}
	wg.Wait()

	if got := loader.count(track.UniquePath); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
	for _, h := range handles[1:] {
		if h != handles[0] {
			t.Fatal("concurrent loads returned different handles")
		}
	}
}

func TestClearReleasesHandles(t *testing.T) {
	loader := newFakeLoader()
	tracks := catalog([]string{"Rain"}, 2)
	c := New(loader, testConfig())
	var evicted []*audio.Handle
	c.OnEvict(func(h *audio.Handle) { evicted = append(evicted, h) })

	if err := c.Initialize(context.Background(), tracks); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	h, _ := c.Load(context.Background(), tracks[0])
	oldReady := c.Ready()

	c.Clear()
	if !h.Released() {
		t.Error("handle not released")
	}
	if len(evicted) != 2 {
		t.Errorf("evicted %d handles, want 2", len(evicted))
	}
	if c.IsFullyReady() || c.ReadyCount("Rain") != 0 {
		t.Error("readiness survived Clear")
	}
	if c.Status(tracks[0]) != (Status{}) {
		t.Error("status survived Clear")
	}
	if c.Ready() == oldReady {
		t.Error("Ready channel not replaced")
	}
}

func TestClearDuringLoadFailsTheLoad(t *testing.T) {
	loader := newFakeLoader()
	loader.delay = 50 * time.Millisecond
	track := catalog([]string{"Rain"}, 1)[0]
	c := New(loader, testConfig())

	errc := make(chan error, 1)
	go func() {
		_, err := c.LoadWithRetry(context.Background(), track)
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	c.Clear()

	if err := <-errc; !errors.Is(err, audio.ErrLoad) {
		t.Errorf("error = %v, want ErrLoad", err)
	}
}

func TestLoadRespectsContext(t *testing.T) {
	loader := newFakeLoader()
	track := catalog([]string{"Rain"}, 1)[0]
	loader.failFirst[track.UniquePath] = -1
	cfg := testConfig()
	cfg.RetryDelay = time.Hour
	c := New(loader, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.LoadWithRetry(ctx, track); !errors.Is(err, audio.ErrLoad) {
		t.Fatalf("error = %v, want ErrLoad", err)
	}
	if got := loader.count(track.UniquePath); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestBackgroundStartsAfterAllPriorityLoads(t *testing.T) {
	loader := newFakeLoader()
	tracks := catalog([]string{"Brown Noise", "Rain"}, 3)
	// Rain 的第一首需要重试两次，优先阶段明显慢于 Brown Noise
	loader.failFirst["Rain/0.mp3"] = 2
	cfg := testConfig()
	cfg.RetryDelay = 20 * time.Millisecond
	c := New(loader, cfg)

	if err := c.Initialize(context.Background(), tracks); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for loader.count("Brown Noise/2.mp3") == 0 || loader.count("Rain/2.mp3") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("background loads never started")
		}
		time.Sleep(2 * time.Millisecond)
	}

	lastPriority := loader.lastIndex("Rain/0.mp3")
	for _, bg := range []string{"Brown Noise/2.mp3", "Rain/2.mp3"} {
		if got := loader.firstIndex(bg); got < lastPriority {
			t.Errorf("%s started at %d, before the last priority attempt at %d", bg, got, lastPriority)
		}
	}
}

func TestFailedLoadResetsProgress(t *testing.T) {
	loader := newFakeLoader()
	loader.progressBeforeFail = 100
	track := catalog([]string{"Rain"}, 1)[0]
	loader.failFirst[track.UniquePath] = -1
	cfg := testConfig()
	cfg.MaxRetries = 0
	c := New(loader, cfg)

	if _, err := c.LoadWithRetry(context.Background(), track); err == nil {
		t.Fatal("LoadWithRetry succeeded")
	}
	st := c.Status(track)
	if st.IsLoading || st.Error == "" || st.Progress != 0 {
		t.Errorf("status = %+v, want failed with progress 0", st)
	}
}
