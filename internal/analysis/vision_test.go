package analysis

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"narrator/internal/services/llm"
)

type fakeCompleter struct {
	reply string
	got   llm.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	f.got = req
	return f.reply, nil
}

func writeFrame(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frame_00001.jpg")
	if err := os.WriteFile(path, []byte{0xff, 0xd8, 0xff}, 0o644); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	return path
}

func TestLLMVisionLabelMode(t *testing.T) {
	client := &fakeCompleter{reply: "```json\n{\"labels\":[{\"name\":\"dog\",\"confidence\":0.92},{\"name\":\"sky\",\"confidence\":1.4}],\"objects\":[{\"name\":\"ball\",\"confidence\":0.8,\"area\":0.05}]}\n```"}
	vision := NewLLMVision(client)

	desc, err := vision.Describe(context.Background(), FrameRequest{Path: writeFrame(t), Timestamp: 3})
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if !client.got.JSON || len(client.got.Images) != 1 || client.got.Images[0].Detail != "low" {
		t.Fatalf("unexpected request %+v", client.got)
	}
	if len(desc.Labels) != 2 || desc.Labels[1].Confidence != 1 {
		t.Fatalf("labels not clamped: %+v", desc.Labels)
	}
	if desc.Confidence != 1 {
		t.Fatalf("confidence = %v", desc.Confidence)
	}
	if len(desc.Objects) != 1 || desc.Objects[0].Area != 0.05 {
		t.Fatalf("objects = %+v", desc.Objects)
	}
}

func TestLLMVisionDetailedModeIncludesContext(t *testing.T) {
	client := &fakeCompleter{reply: "  A dog chases a ball.  "}
	vision := NewLLMVision(client)

	desc, err := vision.Describe(context.Background(), FrameRequest{
		Path:     writeFrame(t),
		Title:    "Park day",
		Detailed: true,
		Context: &Aggregated{
			Labels:  []Label{{Name: "dog", Confidence: 0.95}},
			Objects: []Label{{Name: "ball", Confidence: 0.9, Area: 0.1}},
		},
	})
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if desc.Description != "A dog chases a ball." {
		t.Fatalf("description = %q", desc.Description)
	}
	prompt := client.got.User
	for _, want := range []string{"Park day", "dog (0.95)", "ball (confidence: 0.90, area: 0.10)", "No description available"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if client.got.JSON {
		t.Fatal("detailed mode must not request JSON")
	}
}

func TestLLMVisionMissingFrame(t *testing.T) {
	vision := NewLLMVision(&fakeCompleter{})
	if _, err := vision.Describe(context.Background(), FrameRequest{Path: filepath.Join(t.TempDir(), "missing.jpg")}); err == nil {
		t.Fatal("expected error for missing frame")
	}
}
