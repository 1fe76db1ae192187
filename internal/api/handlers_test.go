package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/callscribe/server/internal/audio"
	"github.com/callscribe/server/internal/config"
	"github.com/callscribe/server/internal/recognition"
	"github.com/callscribe/server/internal/session"
	"github.com/callscribe/server/internal/storage/sqlite"
	"github.com/callscribe/server/internal/transcript"
	"github.com/callscribe/server/internal/websocket"
	"github.com/callscribe/server/pkg/logger"
)

func newTestServer(t *testing.T) (*httptest.Server, *sqlite.TranscriptStorage) {
	t.Helper()
	log := logger.NewNop()

	cfg := &config.Config{}
	cfg.Server.Port = 8000
	cfg.Recognition.ModelPath = "m.bin"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config validate failed: %v", err)
	}

	storage, err := sqlite.NewTranscriptStorage(filepath.Join(t.TempDir(), "api.db"), log)
	if err != nil {
		t.Fatalf("storage failed: %v", err)
	}
	t.Cleanup(func() { storage.Close() })

	wsServer := websocket.NewServer(log)
	go wsServer.Run()

	factory := audio.NewFactory(audio.FactoryConfig{
		Devices: []audio.Device{{ID: "default", Name: "Default", Input: "default"}},
	}, log)

	// Engine is never loaded, so session starts report the model as not ready.
	rec := recognition.NewEngine(recognition.Config{ModelPath: cfg.Recognition.ModelPath}, log)
	registry := session.NewRegistry(factory, rec, storage, wsServer, session.Config{
		Language: cfg.Recognition.DefaultLanguage,
	}, log)

	handler := NewHandler(registry, factory, storage, cfg, log, wsServer)
	router := NewRouter(handler, cfg, log)

	ts := httptest.NewServer(router.Routes())
	t.Cleanup(ts.Close)
	return ts, storage
}

func getJSON(t *testing.T, url string, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s status = %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
}

func TestStatusEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	var status struct {
		ModelReady bool   `json:"is_model_ready"`
		State      string `json:"state"`
	}
	getJSON(t, ts.URL+"/api/status", &status)

	if status.ModelReady {
		t.Error("model reported ready before loading")
	}
	if status.State != "idle" {
		t.Errorf("state = %q, want idle", status.State)
	}
}

func TestStartBeforeModelReady(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/start", "application/json",
		strings.NewReader(`{"device_id":"default"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestStartRequestValidation(t *testing.T) {
	ts, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"empty body", `{}`},
		{"both source kinds", `{"device_id":"default","file_path":"x.wav"}`},
		{"unknown language", `{"device_id":"default","language":"xx"}`},
		{"malformed json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/api/start", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestStopWithoutSession(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/stop", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCancelWithoutSession(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/cancel", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Cancelled bool `json:"cancelled"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Cancelled {
		t.Error("cancelled = true with no session")
	}
}

func TestDevicesAndLanguages(t *testing.T) {
	ts, _ := newTestServer(t)

	var devices struct {
		Devices []struct {
			ID string `json:"id"`
		} `json:"devices"`
	}
	getJSON(t, ts.URL+"/api/devices", &devices)
	if len(devices.Devices) != 1 || devices.Devices[0].ID != "default" {
		t.Errorf("devices = %+v", devices.Devices)
	}

	var languages struct {
		Languages []string `json:"languages"`
		Default   string   `json:"default"`
	}
	getJSON(t, ts.URL+"/api/languages", &languages)
	if len(languages.Languages) != 2 || languages.Default != "en" {
		t.Errorf("languages = %+v default = %q", languages.Languages, languages.Default)
	}
}

func TestStoredTranscriptEndpoints(t *testing.T) {
	ts, storage := newTestServer(t)

	segments := []transcript.Segment{
		{Start: 0, End: 2, Text: "hello there", Language: "en"},
		{Start: 2, End: 4, Text: "general greetings", Language: "en"},
	}
	id, err := storage.SaveTranscript("transcript_20260901_140000", "en", segments)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	var list struct {
		Count       int `json:"count"`
		Transcripts []struct {
			ID  int64  `json:"id"`
			Key string `json:"key"`
		} `json:"transcripts"`
	}
	getJSON(t, ts.URL+"/api/transcripts", &list)
	if list.Count != 1 || list.Transcripts[0].ID != id {
		t.Errorf("list = %+v", list)
	}

	var one struct {
		Transcript struct {
			Key string `json:"key"`
		} `json:"transcript"`
		Segments []transcript.Segment `json:"segments"`
	}
	getJSON(t, ts.URL+"/api/transcripts/1", &one)
	if one.Transcript.Key != "transcript_20260901_140000" {
		t.Errorf("key = %q", one.Transcript.Key)
	}
	if len(one.Segments) != 2 {
		t.Errorf("got %d segments, want 2", len(one.Segments))
	}

	resp, err := http.Get(ts.URL + "/api/transcripts/999")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing transcript status = %d, want 404", resp.StatusCode)
	}
}

func TestDeleteStoredTranscript(t *testing.T) {
	ts, storage := newTestServer(t)

	id, err := storage.SaveTranscript("transcript_delete", "en", []transcript.Segment{
		{Start: 0, End: 2, Text: "gone soon"},
	})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/transcripts/1", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", resp.StatusCode)
	}

	if _, _, err := storage.GetTranscript(id); err != sqlite.ErrNotFound {
		t.Errorf("after delete err = %v, want ErrNotFound", err)
	}

	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", resp.StatusCode)
	}
}

func TestExportTranscript(t *testing.T) {
	ts, storage := newTestServer(t)

	if _, err := storage.SaveTranscript("transcript_export", "en", []transcript.Segment{
		{Start: 0, End: 2, Text: "hello"},
		{Start: 2, End: 4, Text: "world"},
	}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	resp, err := http.Get(ts.URL + "/api/transcripts/1/export?format=txt")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("txt export status = %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(body); got != "hello world" {
		t.Errorf("txt export = %q, want %q", got, "hello world")
	}

	resp2, err := http.Get(ts.URL + "/api/transcripts/1/export?format=srt")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("srt export status = %d", resp2.StatusCode)
	}
	if ct := resp2.Header.Get("Content-Type"); ct != "application/x-subrip" {
		t.Errorf("srt content type = %q", ct)
	}

	resp3, err := http.Get(ts.URL + "/api/transcripts/1/export?format=pdf")
	if err != nil {
		t.Fatal(err)
	}
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusBadRequest {
		t.Errorf("bad format status = %d, want 400", resp3.StatusCode)
	}
}

func TestTranscriptEndpointIdle(t *testing.T) {
	ts, _ := newTestServer(t)

	var body struct {
		State    string               `json:"state"`
		Segments []transcript.Segment `json:"segments"`
	}
	getJSON(t, ts.URL+"/api/transcript", &body)
	if body.State != "idle" {
		t.Errorf("state = %q, want idle", body.State)
	}
	if len(body.Segments) != 0 {
		t.Errorf("segments = %+v, want empty", body.Segments)
	}
}
