package speech

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"narrator/internal/commentary"
	"narrator/internal/media/ffprobe"
	"narrator/internal/services"
)

type fakeService struct {
	mu     sync.Mutex
	voices map[string]string
	fail   string
}

func (f *fakeService) Synthesize(_ context.Context, text, voice, language string) ([]byte, error) {
	if text == f.fail {
		return nil, services.Transient(errors.New("503 from provider"))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.voices == nil {
		f.voices = map[string]string{}
	}
	f.voices[text] = voice + "/" + language
	return []byte(text), nil
}

// lengthMeasurer reports one second of audio per byte written.
type lengthMeasurer struct{}

func (lengthMeasurer) Inspect(_ context.Context, path string) (ffprobe.Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return ffprobe.Result{}, err
	}
	return ffprobe.Result{Format: ffprobe.Format{Duration: strconv.FormatInt(info.Size(), 10)}}, nil
}

func testScript() commentary.Script {
	return commentary.Script{
		Language: commentary.Urdu,
		Segments: []commentary.Segment{
			{Index: 0, Text: "abc", Start: 0, End: 5},
			{Index: 1, Text: "abcdefgh", Start: 6, End: 10, Voice: "onyx"},
			{Index: 2, Text: "ab", Start: 12, End: 14},
		},
	}
}

func TestSynthesizeReturnsClipsInSegmentOrder(t *testing.T) {
	dir := filepath.Join(t.TempDir(), AudioDir)
	service := &fakeService{}
	synth := NewSynthesizer(service, lengthMeasurer{}, Settings{Format: ".MP3", Concurrency: 3, Voices: map[string]string{"ur": "nova"}}, nil)

	clips, err := synth.Synthesize(context.Background(), testScript(), dir)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(clips) != 3 {
		t.Fatalf("clips = %d", len(clips))
	}
	want := []AudioClip{
		{Index: 0, Path: filepath.Join(dir, "clip_000.mp3"), Duration: 3, Start: 0, Window: 5},
		{Index: 1, Path: filepath.Join(dir, "clip_001.mp3"), Duration: 8, Start: 6, Window: 4},
		{Index: 2, Path: filepath.Join(dir, "clip_002.mp3"), Duration: 2, Start: 12, Window: 2},
	}
	for i := range want {
		if clips[i] != want[i] {
			t.Fatalf("clip %d = %+v, want %+v", i, clips[i], want[i])
		}
	}
	if !clips[1].Overruns() || clips[0].Overruns() || clips[2].Overruns() {
		t.Fatal("overrun flags wrong")
	}
	if service.voices["abc"] != "nova/ur" || service.voices["abcdefgh"] != "onyx/ur" {
		t.Fatalf("voices = %v", service.voices)
	}
	data, err := os.ReadFile(clips[1].Path)
	if err != nil || string(data) != "abcdefgh" {
		t.Fatalf("clip content = %q, %v", data, err)
	}
}

func TestSynthesizeRerunOverwritesClips(t *testing.T) {
	dir := t.TempDir()
	synth := NewSynthesizer(&fakeService{}, lengthMeasurer{}, Settings{}, nil)
	if err := os.WriteFile(filepath.Join(dir, "clip_000.mp3"), []byte("stale stale stale"), 0o644); err != nil {
		t.Fatal(err)
	}
	clips, err := synth.Synthesize(context.Background(), testScript(), dir)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if clips[0].Duration != 3 {
		t.Fatalf("stale clip kept: %+v", clips[0])
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 3 {
		t.Fatalf("expected only final clips, found %d entries", len(entries))
	}
}

func TestSynthesizeFailureIsClassified(t *testing.T) {
	synth := NewSynthesizer(&fakeService{fail: "abcdefgh"}, lengthMeasurer{}, Settings{Concurrency: 1}, nil)
	_, err := synth.Synthesize(context.Background(), testScript(), t.TempDir())
	if !errors.Is(err, services.ErrSynthesisService) {
		t.Fatalf("expected ErrSynthesisService, got %v", err)
	}
	if !services.Retryable(err) {
		t.Fatalf("transient provider failure should stay retryable: %v", err)
	}
}

func TestSynthesizeRejectsEmptyScript(t *testing.T) {
	synth := NewSynthesizer(&fakeService{}, lengthMeasurer{}, Settings{}, nil)
	if _, err := synth.Synthesize(context.Background(), commentary.Script{}, t.TempDir()); !errors.Is(err, services.ErrSynthesisService) {
		t.Fatalf("expected ErrSynthesisService, got %v", err)
	}
}

func TestSynthesizeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	synth := NewSynthesizer(cancelService{}, lengthMeasurer{}, Settings{}, nil)
	_, err := synth.Synthesize(ctx, testScript(), t.TempDir())
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}

type cancelService struct{}

func (cancelService) Synthesize(ctx context.Context, _, _, _ string) ([]byte, error) {
	return nil, ctx.Err()
}
