package stage

import "testing"

func TestArtifactsNotes(t *testing.T) {
	var art Artifacts
	art.Note("cookies obtained")
	art.Note("segment 2 truncated")
	notes := art.TakeNotes()
	if len(notes) != 2 || notes[1] != "segment 2 truncated" {
		t.Fatalf("notes = %v", notes)
	}
	if len(art.TakeNotes()) != 0 {
		t.Fatal("notes not cleared")
	}
}

func TestHealthConstructors(t *testing.T) {
	if h := Healthy(Acquiring); !h.Ready || h.Name != "acquiring" {
		t.Fatalf("Healthy = %+v", h)
	}
	if h := Unhealthy(Scripting, "no api key"); h.Ready || h.Detail != "no api key" {
		t.Fatalf("Unhealthy = %+v", h)
	}
}
