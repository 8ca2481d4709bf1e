package compositor

import (
	"reflect"
	"testing"

	"narrator/internal/speech"
)

func TestNewPlanTruncatesWithoutShifting(t *testing.T) {
	clips := []speech.AudioClip{
		{Index: 0, Path: "a.mp3", Duration: 3, Start: 0, Window: 5},
		{Index: 1, Path: "b.mp3", Duration: 7.25, Start: 6, Window: 4},
		{Index: 2, Path: "c.mp3", Duration: 2, Start: 10, Window: 2},
	}
	plan := NewPlan(clips, 20)

	want := []Placement{
		{Index: 0, Path: "a.mp3", Offset: 0, Window: 5, ClipDuration: 3, Play: 3},
		{Index: 1, Path: "b.mp3", Offset: 6, Window: 4, ClipDuration: 7.25, Play: 4, Truncated: true},
		{Index: 2, Path: "c.mp3", Offset: 10, Window: 2, ClipDuration: 2, Play: 2},
	}
	if !reflect.DeepEqual(plan.Placements, want) {
		t.Fatalf("placements = %+v", plan.Placements)
	}
	if got := plan.Truncated(); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("truncated = %v", got)
	}
	for i := 1; i < len(plan.Placements); i++ {
		if plan.Placements[i].Offset < plan.Placements[i-1].End() {
			t.Fatalf("placement %d overlaps the previous one", i)
		}
	}
}

func TestNewPlanIsDeterministic(t *testing.T) {
	clips := []speech.AudioClip{
		{Index: 0, Duration: 1.23456, Start: 0.5, Window: 1},
		{Index: 1, Duration: 0.5, Start: 2, Window: 3},
	}
	first := NewPlan(clips, 10)
	second := NewPlan(clips, 10)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("plans differ: %+v vs %+v", first, second)
	}
	if first.Placements[0].Play != 1 || !first.Placements[0].Truncated {
		t.Fatalf("first placement = %+v", first.Placements[0])
	}
}

func TestNewPlanCutsAtVideoEnd(t *testing.T) {
	clips := []speech.AudioClip{
		{Index: 0, Duration: 4, Start: 8, Window: 4},
		{Index: 1, Duration: 1, Start: 12, Window: 1},
	}
	plan := NewPlan(clips, 10)
	if p := plan.Placements[0]; p.Play != 2 || !p.Truncated || p.Window != 2 {
		t.Fatalf("placement 0 = %+v", p)
	}
	if p := plan.Placements[1]; p.Play != 0 || !p.Truncated {
		t.Fatalf("placement 1 = %+v", p)
	}
	if len(plan.Audible()) != 1 {
		t.Fatalf("audible = %+v", plan.Audible())
	}
}
