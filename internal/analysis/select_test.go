package analysis

import (
	"testing"

	"narrator/internal/media/ffmpeg"
)

func candidates(scores ...float64) []Candidate {
	out := make([]Candidate, len(scores))
	for i, s := range scores {
		out[i] = Candidate{Frame: ffmpeg.Frame{Index: i, Timestamp: float64(i)}, Score: s}
	}
	return out
}

func timestamps(cs []Candidate) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Frame.Timestamp
	}
	return out
}

func TestCandidatesMarksSceneChanges(t *testing.T) {
	frames := []ffmpeg.Frame{{Index: 0}, {Index: 1, Timestamp: 1}, {Index: 2, Timestamp: 2}}
	scores := []ffmpeg.Score{{Index: 0, Value: 0.9}, {Index: 1, Value: 0.5}, {Index: 2, Value: 0.1}}
	got := Candidates(frames, scores, 0.3)
	if got[0].SceneChange {
		t.Fatal("the first frame is never a scene change")
	}
	if !got[1].SceneChange || got[2].SceneChange {
		t.Fatalf("unexpected scene flags %+v", got)
	}
	if got[1].Score != 0.5 {
		t.Fatalf("score = %v", got[1].Score)
	}
}

func TestSelectKeyFramesRespectsLimitAndSpacing(t *testing.T) {
	cs := candidates(0.1, 0.9, 0.8, 0.7, 0.2, 0.6, 0.5, 0.4, 0.3, 0.05, 0.95, 0.1)
	got := SelectKeyFrames(cs, 4)
	if len(got) > 4 {
		t.Fatalf("selected %d frames, limit 4", len(got))
	}
	for i := range got {
		for j := i + 1; j < len(got); j++ {
			if d := got[j].Frame.Timestamp - got[i].Frame.Timestamp; d <= MinFrameSpacing {
				t.Fatalf("frames %v too close", timestamps(got))
			}
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].Frame.Timestamp < got[i-1].Frame.Timestamp {
			t.Fatalf("not in timeline order: %v", timestamps(got))
		}
	}
	// 0.95 at t=10 and 0.9 at t=1 must be chosen first.
	want := map[float64]bool{1: true, 10: true}
	for _, c := range got {
		delete(want, c.Frame.Timestamp)
	}
	if len(want) != 0 {
		t.Fatalf("highest scores missing from %v", timestamps(got))
	}
}

func TestSelectKeyFramesSceneChangesCappedAtHalf(t *testing.T) {
	cs := candidates(0, 0, 0, 0, 0, 0, 0, 0, 0, 0)
	for i := range cs {
		cs[i].SceneChange = true
	}
	got := SelectKeyFrames(cs, 4)
	scene := 0
	for _, c := range got {
		if c.SceneChange {
			scene++
		}
	}
	// every candidate is a scene change so all selections are, but only two
	// come from the scene pass; the rest must satisfy spacing.
	if len(got) > 4 {
		t.Fatalf("selected %d", len(got))
	}
	if got[0].Frame.Timestamp != 0 || got[1].Frame.Timestamp != 1 {
		t.Fatalf("scene pass should take the earliest changes, got %v", timestamps(got))
	}
	for _, c := range got[2:] {
		if c.Frame.Timestamp-1 <= MinFrameSpacing && c.Frame.Timestamp > 1 {
			t.Fatalf("motion fill ignored spacing: %v", timestamps(got))
		}
	}
	if scene != len(got) {
		t.Fatalf("scene flag lost: %v", got)
	}
}

func TestSelectKeyFramesEdgeCases(t *testing.T) {
	if got := SelectKeyFrames(nil, 12); got != nil {
		t.Fatalf("expected nil for no candidates, got %v", got)
	}
	if got := SelectKeyFrames(candidates(1, 2), 0); got != nil {
		t.Fatalf("expected nil for zero limit, got %v", got)
	}
	got := SelectKeyFrames(candidates(0.5), 12)
	if len(got) != 1 {
		t.Fatalf("single frame video should select its frame, got %v", got)
	}
}

func TestAggregateKeepsMaxConfidence(t *testing.T) {
	got := Aggregate(
		[]Label{{Name: "Dog", Confidence: 0.8}, {Name: "grass", Confidence: 0.75}},
		[]Label{{Name: "dog", Confidence: 0.95}, {Name: "Ball", Confidence: 0.9}},
	)
	if len(got) != 3 {
		t.Fatalf("expected 3 unique labels, got %+v", got)
	}
	if got[0].Name != "dog" || got[0].Confidence != 0.95 {
		t.Fatalf("expected dog 0.95 first, got %+v", got[0])
	}
	if got[2].Name != "grass" {
		t.Fatalf("expected ascending tail, got %+v", got)
	}
}

func TestFilterLabelsDropsLowConfidence(t *testing.T) {
	got := FilterLabels([]Label{{Name: "a", Confidence: 0.69}, {Name: "b", Confidence: 0.7}, {Name: " ", Confidence: 1}}, 0.7)
	if len(got) != 1 || got[0].Name != "b" {
		t.Fatalf("unexpected labels %+v", got)
	}
}
