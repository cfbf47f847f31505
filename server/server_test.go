package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"AmbientFM/core/audio"
	"AmbientFM/core/audiocache"
	"AmbientFM/core/catalog"
	"AmbientFM/core/crossfade"
	"AmbientFM/core/player"
	"AmbientFM/model"

	"github.com/gopxl/beep/v2"
	"github.com/gorilla/websocket"
)

const testRate = beep.SampleRate(8000)

type silentLoader struct{}

func (silentLoader) Load(ctx context.Context, track model.Track, progress func(int)) (*audio.Handle, error) {
	buf := beep.NewBuffer(beep.Format{SampleRate: testRate, NumChannels: 2, Precision: 2})
	buf.Append(beep.Take(testRate.N(2*time.Second), beep.Silence(-1)))
	return audio.NewHandle(track.UniquePath, buf), nil
}

func newTestServer(t *testing.T, withTracks bool) (*Server, *player.Player) {
	t.Helper()
	dev := &audio.ManualDevice{}
	graph := audio.NewGraph(testRate, func() audio.Device { return dev })
	cache := audiocache.New(silentLoader{}, audiocache.Config{RequiredReady: 1, RetryDelay: time.Millisecond, BackgroundConcurrency: 1})
	engine := crossfade.NewEngine(graph, cache, crossfade.Config{
		FadeIn: 5 * time.Millisecond, FadeOut: 5 * time.Millisecond, VolumeRamp: time.Millisecond,
	})
	supplier := catalog.SupplierFunc(func(ctx context.Context, category string) []model.Track {
		if !withTracks || category != "Rain" {
			return nil
		}
		return []model.Track{
			{Category: "Rain", UniquePath: "Rain/a.wav", Title: "a.wav"},
			{Category: "Rain", UniquePath: "Rain/b.wav", Title: "b.wav"},
		}
	})
	p := player.New(player.Config{DefaultVolume: 50, PlayRetries: 1}, cache, engine, supplier, []string{"Rain", "Brown Noise"})
	t.Cleanup(p.Close)
	if withTracks {
		if err := p.RetryInitialization(context.Background()); err != nil {
			t.Fatalf("RetryInitialization: %v", err)
		}
	}
	return New(p), p
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: invalid JSON %q", method, path, rec.Body.String())
		}
	}
	return rec, out
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := newTestServer(t, true)
	rec, body := do(t, s, http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	if body["isInitialized"] != true {
		t.Errorf("isInitialized = %v", body["isInitialized"])
	}
	lanes, _ := body["lanes"].([]any)
	if len(lanes) != 2 {
		t.Fatalf("lanes = %v", body["lanes"])
	}
	first := lanes[0].(map[string]any)
	if first["slug"] != "rain" || first["volume"] != float64(50) || first["isPlaying"] != false {
		t.Errorf("lane = %v", first)
	}
}

func TestToggleEndpoint(t *testing.T) {
	s, p := newTestServer(t, true)

	tests := []struct {
		name string
		path string
		code int
	}{
		{"unknown lane", "/api/lanes/forest/toggle", http.StatusNotFound},
		{"empty lane", "/api/lanes/brown-noise/toggle", http.StatusBadRequest},
		{"play", "/api/lanes/rain/toggle", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, s, http.MethodPost, tt.path, "")
			if rec.Code != tt.code {
				t.Errorf("code = %d, want %d (%v)", rec.Code, tt.code, body)
			}
			if tt.code != http.StatusOK && body["error"] == "" {
				t.Error("missing error message")
			}
		})
	}
	l, _ := p.Lane("rain")
	if !l.State().IsPlaying {
		t.Error("rain lane not playing after toggle")
	}
}

func TestVolumeEndpoint(t *testing.T) {
	s, p := newTestServer(t, true)

	tests := []struct {
		body string
		code int
	}{
		{`{"volume": 30}`, http.StatusOK},
		{`{"volume": 130}`, http.StatusBadRequest},
		{`{}`, http.StatusBadRequest},
		{`not json`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec, _ := do(t, s, http.MethodPut, "/api/lanes/rain/volume", tt.body)
		if rec.Code != tt.code {
			t.Errorf("body %s: code = %d, want %d", tt.body, rec.Code, tt.code)
		}
	}
	l, _ := p.Lane("rain")
	if v := l.State().Volume; v != 30 {
		t.Errorf("volume = %d, want 30", v)
	}
	if rec, _ := do(t, s, http.MethodPut, "/api/lanes/forest/volume", `{"volume": 1}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown lane code = %d", rec.Code)
	}
}

func TestShuffleEndpointNotReady(t *testing.T) {
	s, _ := newTestServer(t, false)
	rec, body := do(t, s, http.MethodPost, "/api/shuffle", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code = %d", rec.Code)
	}
	if body["error"] != "Please wait for all tracks to load before shuffling" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestShuffleEndpoint(t *testing.T) {
	s, _ := newTestServer(t, true)
	rec, body := do(t, s, http.MethodPost, "/api/shuffle", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d: %v", rec.Code, body)
	}
	if body["isShuffling"] != false {
		t.Errorf("isShuffling = %v", body["isShuffling"])
	}
}

func TestRetryEndpoint(t *testing.T) {
	s, p := newTestServer(t, false)
	rec, _ := do(t, s, http.MethodPost, "/api/retry", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("code = %d", rec.Code)
	}
	deadline := time.Now().Add(2 * time.Second)
	for p.Status().Error == "" {
		if time.Now().After(deadline) {
			t.Fatal("retry did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := p.Status().Error; got != "Failed to initialize. Please try again." {
		t.Errorf("error = %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, false)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("code = %d", rec.Code)
	}
}

func readStatus(t *testing.T, conn *websocket.Conn) StatusMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg StatusMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read status: %v", err)
	}
	return msg
}

func TestWebSocketPushesStatus(t *testing.T) {
	s, p := newTestServer(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	first := readStatus(t, conn)
	if first.Type != "status" || !first.Status.IsInitialized {
		t.Errorf("initial message = %+v", first)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.Hub().ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(2 * time.Millisecond)
	}

	if err := p.SetVolume("rain", 75); err != nil {
		t.Fatal(err)
	}
	for {
		msg := readStatus(t, conn)
		if v := msg.Status.Lanes[0].Volume; v == 75 {
			break
		} else if time.Now().After(deadline) {
			t.Fatalf("volume never pushed, last %d", v)
		}
	}
}

func ExampleStatusMessage() {
	data, _ := json.Marshal(StatusMessage{Type: "status", Status: model.PlayerStatus{IsInitialized: true}})
	fmt.Println(strings.Contains(string(data), `"isInitialized":true`))
	// Output: true
}
