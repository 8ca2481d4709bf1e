// Package compositor aligns narration clips to the video timeline and muxes
// the final deliverable.
//
// Alignment never shifts a window. A clip longer than its segment window is
// cut at the window end and reported as truncated; later segments keep their
// own start offsets. The original soundtrack is ducked while narration plays
// and left at full level elsewhere.
package compositor

import (
	"math"

	"narrator/internal/speech"
)

// Placement is where and for how long one clip plays.
type Placement struct {
	Index        int     `json:"index"`
	Path         string  `json:"path"`
	Offset       float64 `json:"offset"`
	Window       float64 `json:"window"`
	ClipDuration float64 `json:"clip_duration"`
	Play         float64 `json:"played"`
	Truncated    bool    `json:"truncated"`
}

// End is the timeline position where the clip stops playing.
func (p Placement) End() float64 { return p.Offset + p.Play }

// Plan is the deterministic alignment of clips onto a video.
type Plan struct {
	VideoDuration float64     `json:"video_duration"`
	Placements    []Placement `json:"placements"`
}

// Truncated lists the indexes of clips cut to their window.
func (p Plan) Truncated() []int {
	var out []int
	for _, pl := range p.Placements {
		if pl.Truncated {
			out = append(out, pl.Index)
		}
	}
	return out
}

// Audible returns placements that play for a positive time.
func (p Plan) Audible() []Placement {
	out := make([]Placement, 0, len(p.Placements))
	for _, pl := range p.Placements {
		if pl.Play > 0 {
			out = append(out, pl)
		}
	}
	return out
}

// NewPlan places every clip at its segment start and plays it for at most its
// window. A window running past the end of the video is cut at the video end.
func NewPlan(clips []speech.AudioClip, videoDuration float64) Plan {
	plan := Plan{VideoDuration: videoDuration, Placements: make([]Placement, 0, len(clips))}
	for _, clip := range clips {
		window := math.Max(clip.Window, 0)
		if videoDuration > 0 {
			window = math.Max(0, math.Min(window, videoDuration-clip.Start))
		}
		play := math.Min(clip.Duration, window)
		plan.Placements = append(plan.Placements, Placement{
			Index:        clip.Index,
			Path:         clip.Path,
			Offset:       round3(clip.Start),
			Window:       round3(window),
			ClipDuration: round3(clip.Duration),
			Play:         round3(math.Max(play, 0)),
			Truncated:    clip.Duration > window,
		})
	}
	return plan
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
