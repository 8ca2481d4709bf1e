package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"narrator/internal/acquisition"
	"narrator/internal/media/ffmpeg"
	"narrator/internal/services"
)

type fakeSampler struct {
	frames   int
	scoreErr error
}

func (f fakeSampler) SampleFrames(_ context.Context, _ string, dir string, fps float64) ([]ffmpeg.Frame, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	out := make([]ffmpeg.Frame, f.frames)
	for i := range out {
		path := filepath.Join(dir, fmt.Sprintf("frame_%05d.jpg", i+1))
		if err := os.WriteFile(path, []byte{0xff, 0xd8}, 0o644); err != nil {
			return nil, err
		}
		out[i] = ffmpeg.Frame{Index: i, Path: path, Timestamp: float64(i) / fps}
	}
	return out, nil
}

func (f fakeSampler) SceneScores(context.Context, string, float64) ([]ffmpeg.Score, error) {
	if f.scoreErr != nil {
		return nil, f.scoreErr
	}
	scores := make([]ffmpeg.Score, f.frames)
	for i := range scores {
		scores[i] = ffmpeg.Score{Index: i, Timestamp: float64(i), Value: float64(i%5) / 10}
	}
	return scores, nil
}

type fakeVision struct {
	mu       sync.Mutex
	detailed []FrameRequest
	fail     func(FrameRequest) error
}

func (f *fakeVision) Describe(_ context.Context, req FrameRequest) (FrameDescriptor, error) {
	if f.fail != nil {
		if err := f.fail(req); err != nil {
			return FrameDescriptor{}, err
		}
	}
	if req.Detailed {
		f.mu.Lock()
		f.detailed = append(f.detailed, req)
		f.mu.Unlock()
		return FrameDescriptor{Description: fmt.Sprintf("scene at %.0fs", req.Timestamp)}, nil
	}
	conf := 0.7 + req.Timestamp/100
	return FrameDescriptor{
		Labels:     []Label{{Name: "dog", Confidence: conf}, {Name: "blur", Confidence: 0.2}},
		Objects:    []Label{{Name: "ball", Confidence: 0.9, Area: 0.1}},
		Confidence: conf,
	}, nil
}

func testAsset() acquisition.VideoAsset {
	return acquisition.VideoAsset{Path: "/tmp/video.mp4", Duration: 30, Title: "Dog park"}
}

func TestAnalyzeProducesOrderedReport(t *testing.T) {
	workdir := t.TempDir()
	vision := &fakeVision{}
	analyzer := NewAnalyzer(fakeSampler{frames: 30}, vision, DefaultSettings(), nil)

	report, err := analyzer.Analyze(context.Background(), testAsset(), workdir)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if err := report.Validate(); err != nil {
		t.Fatalf("report invalid: %v", err)
	}
	if len(report.Frames) == 0 || len(report.Frames) > 12 {
		t.Fatalf("frames = %d", len(report.Frames))
	}
	for _, f := range report.Frames {
		for _, l := range f.Labels {
			if l.Confidence < 0.7 {
				t.Fatalf("low confidence label kept: %+v", l)
			}
		}
	}
	if len(report.Labels) != 1 || report.Labels[0].Name != "dog" {
		t.Fatalf("aggregated labels = %+v", report.Labels)
	}
	if len(vision.detailed) != 3 || len(report.Descriptions()) != 3 {
		t.Fatalf("detailed requests = %d, descriptions = %d", len(vision.detailed), len(report.Descriptions()))
	}
	for _, req := range vision.detailed {
		if req.Context == nil || len(req.Context.Labels) == 0 {
			t.Fatalf("detailed request missing aggregated context: %+v", req)
		}
	}

	saved, err := LoadReport(filepath.Join(workdir, ReportFile))
	if err != nil {
		t.Fatalf("LoadReport: %v", err)
	}
	if len(saved.Frames) != len(report.Frames) || saved.Title != "Dog park" {
		t.Fatalf("saved report mismatch: %+v", saved)
	}
}

func TestAnalyzeDetailedFramesAreMostConfident(t *testing.T) {
	vision := &fakeVision{}
	analyzer := NewAnalyzer(fakeSampler{frames: 30}, vision, DefaultSettings(), nil)

	report, err := analyzer.Analyze(context.Background(), testAsset(), t.TempDir())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	var lowestDescribed, highestPlain float64 = 2, -1
	for _, f := range report.Frames {
		if f.Description != "" {
			lowestDescribed = min(lowestDescribed, f.Confidence)
		} else {
			highestPlain = max(highestPlain, f.Confidence)
		}
	}
	if highestPlain > lowestDescribed {
		t.Fatalf("a less confident frame was described: described>=%v plain<=%v", lowestDescribed, highestPlain)
	}
}

func TestAnalyzeToleratesPartialFailure(t *testing.T) {
	vision := &fakeVision{fail: func(req FrameRequest) error {
		if !req.Detailed && req.Timestamp < 10 {
			return errors.New("vision unavailable")
		}
		return nil
	}}
	analyzer := NewAnalyzer(fakeSampler{frames: 30}, vision, DefaultSettings(), nil)

	report, err := analyzer.Analyze(context.Background(), testAsset(), t.TempDir())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	failed := 0
	for _, f := range report.Frames {
		if !f.OK() {
			failed++
			if f.Description != "" {
				t.Fatal("failed frame received a description")
			}
		}
	}
	if failed == 0 || len(report.Succeeded()) == 0 {
		t.Fatalf("expected a mix of failures and successes, failed=%d", failed)
	}
}

func TestAnalyzeAllFramesFail(t *testing.T) {
	vision := &fakeVision{fail: func(FrameRequest) error { return errors.New("vision down") }}
	analyzer := NewAnalyzer(fakeSampler{frames: 10}, vision, DefaultSettings(), nil)

	_, err := analyzer.Analyze(context.Background(), testAsset(), t.TempDir())
	if !errors.Is(err, services.ErrAnalysisService) {
		t.Fatalf("expected ErrAnalysisService, got %v", err)
	}
	if !strings.Contains(err.Error(), "vision down") {
		t.Fatalf("cause missing from %v", err)
	}
}

func TestAnalyzeSurvivesSceneScoreFailure(t *testing.T) {
	analyzer := NewAnalyzer(fakeSampler{frames: 20, scoreErr: errors.New("no scene filter")}, &fakeVision{}, DefaultSettings(), nil)

	report, err := analyzer.Analyze(context.Background(), testAsset(), t.TempDir())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	for _, f := range report.Frames {
		if f.SceneChange {
			t.Fatal("scene change reported without scores")
		}
	}
}

func TestAnalyzeNoFrames(t *testing.T) {
	analyzer := NewAnalyzer(fakeSampler{frames: 0}, &fakeVision{}, DefaultSettings(), nil)
	_, err := analyzer.Analyze(context.Background(), testAsset(), t.TempDir())
	if !errors.Is(err, services.ErrAnalysisService) {
		t.Fatalf("expected ErrAnalysisService, got %v", err)
	}
}

func TestAnalyzeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	vision := &fakeVision{fail: func(FrameRequest) error {
		cancel()
		return context.Canceled
	}}
	analyzer := NewAnalyzer(fakeSampler{frames: 5}, vision, DefaultSettings(), nil)
	_, err := analyzer.Analyze(ctx, testAsset(), t.TempDir())
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}
