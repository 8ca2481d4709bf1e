package analysis

import (
	"math"
	"sort"

	"narrator/internal/media/ffmpeg"
)

// MinFrameSpacing is the minimum distance, in seconds, between a
// motion-selected frame and every other selected frame.
const MinFrameSpacing = 2.0

// Candidate is a sampled frame with its scene-change score.
type Candidate struct {
	Frame       ffmpeg.Frame
	Score       float64
	SceneChange bool
}

// Candidates joins sampled frames with their scores. Frames without a score
// get zero; a score at or above threshold marks a scene change.
func Candidates(frames []ffmpeg.Frame, scores []ffmpeg.Score, threshold float64) []Candidate {
	byIndex := make(map[int]float64, len(scores))
	for _, s := range scores {
		byIndex[s.Index] = s.Value
	}
	out := make([]Candidate, 0, len(frames))
	for _, f := range frames {
		score := byIndex[f.Index]
		out = append(out, Candidate{
			Frame:       f,
			Score:       score,
			SceneChange: f.Index > 0 && threshold > 0 && score >= threshold,
		})
	}
	return out
}

// SelectKeyFrames picks at most limit frames. Scene changes fill up to half the
// budget in timeline order; the rest is filled by descending score, skipping
// frames within MinFrameSpacing of any selected frame. The result is in
// timeline order.
func SelectKeyFrames(candidates []Candidate, limit int) []Candidate {
	if limit <= 0 || len(candidates) == 0 {
		return nil
	}
	ordered := append([]Candidate(nil), candidates...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Frame.Timestamp < ordered[j].Frame.Timestamp })

	selected := make([]Candidate, 0, limit)
	taken := make(map[int]bool, limit)
	sceneLimit := limit / 2
	for _, c := range ordered {
		if len(selected) >= sceneLimit {
			break
		}
		if c.SceneChange {
			selected = append(selected, c)
			taken[c.Frame.Index] = true
		}
	}

	byScore := append([]Candidate(nil), ordered...)
	sort.SliceStable(byScore, func(i, j int) bool { return byScore[i].Score > byScore[j].Score })
	for _, c := range byScore {
		if len(selected) >= limit {
			break
		}
		if taken[c.Frame.Index] || !spaced(c, selected) {
			continue
		}
		selected = append(selected, c)
		taken[c.Frame.Index] = true
	}

	sort.SliceStable(selected, func(i, j int) bool { return selected[i].Frame.Timestamp < selected[j].Frame.Timestamp })
	return selected
}

func spaced(c Candidate, selected []Candidate) bool {
	for _, s := range selected {
		if math.Abs(s.Frame.Timestamp-c.Frame.Timestamp) <= MinFrameSpacing {
			return false
		}
	}
	return true
}
