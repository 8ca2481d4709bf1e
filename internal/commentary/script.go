package commentary

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"narrator/internal/fileutil"
	"narrator/internal/textutil"
)

// ScriptFile is the script output inside the job working directory.
const ScriptFile = "script.json"

// endTolerance absorbs float noise when comparing segment ends to the video
// duration.
const endTolerance = 0.001

// Segment is one timed piece of narration.
type Segment struct {
	Index int     `json:"index"`
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Voice string  `json:"voice,omitempty"`
}

// Window is the time available to the segment, in seconds.
func (s Segment) Window() float64 { return s.End - s.Start }

// Script is the full narration for one job.
type Script struct {
	Style            Style     `json:"style"`
	Language         Language  `json:"language"`
	Segments         []Segment `json:"segments"`
	TargetSeconds    float64   `json:"target_seconds"`
	EstimatedSeconds float64   `json:"estimated_seconds"`
	WordCount        int       `json:"word_count"`
	Regenerated      bool      `json:"regenerated"`
}

// Text joins all segment texts.
func (s Script) Text() string {
	parts := make([]string, 0, len(s.Segments))
	for _, seg := range s.Segments {
		parts = append(parts, seg.Text)
	}
	return strings.Join(parts, " ")
}

// Validate checks the segments are non-empty, ordered, non-overlapping and
// inside [0, duration].
func (s Script) Validate(duration float64) error {
	if len(s.Segments) == 0 {
		return errors.New("script has no segments")
	}
	prevEnd := 0.0
	for i, seg := range s.Segments {
		switch {
		case strings.TrimSpace(seg.Text) == "":
			return fmt.Errorf("segment %d has no text", i)
		case seg.Start < 0:
			return fmt.Errorf("segment %d starts before zero", i)
		case seg.End <= seg.Start:
			return fmt.Errorf("segment %d has empty window [%.3f, %.3f]", i, seg.Start, seg.End)
		case seg.Start < prevEnd-endTolerance:
			return fmt.Errorf("segment %d overlaps the previous segment", i)
		case duration > 0 && seg.End > duration+endTolerance:
			return fmt.Errorf("segment %d ends at %.3fs after the video (%.3fs)", i, seg.End, duration)
		}
		prevEnd = seg.End
	}
	return nil
}

// Save writes the script atomically.
func (s Script) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(path, append(data, '\n'), 0o644)
}

// LoadScript reads a script written by Save.
func LoadScript(path string) (Script, error) {
	var s Script
	data, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("decode %s: %w", path, err)
	}
	return s, nil
}

// TargetDuration is how long the narration should run for a video of the
// given length: the larger of 80% of it and two seconds short of it.
func TargetDuration(videoSeconds float64) float64 {
	return math.Max(0, math.Max(videoSeconds*0.8, videoSeconds-2))
}

// WordBudget is the number of words that fit in seconds at the language's
// speaking rate.
func WordBudget(seconds float64, lang Language) int {
	return int(seconds / 60 * lang.WordsPerMinute())
}

// EstimateSeconds estimates how long text takes to speak.
func EstimateSeconds(text string, lang Language) float64 {
	return float64(textutil.WordCount(text)) / lang.WordsPerMinute() * 60
}

// Normalize orders raw segments and fits them to [0, duration]. Overlaps are
// resolved by moving a start to the previous end. Segments left with no text
// or no time are dropped.
func Normalize(raw []Segment, duration float64) []Segment {
	segs := make([]Segment, 0, len(raw))
	for _, seg := range raw {
		seg.Text = strings.Join(strings.Fields(seg.Text), " ")
		if seg.Text == "" || math.IsNaN(seg.Start) || math.IsNaN(seg.End) {
			continue
		}
		segs = append(segs, seg)
	}
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start })

	out := make([]Segment, 0, len(segs))
	prevEnd := 0.0
	for _, seg := range segs {
		seg.Start = math.Max(seg.Start, prevEnd)
		if duration > 0 {
			seg.End = math.Min(seg.End, duration)
		}
		seg.Start = round3(seg.Start)
		seg.End = round3(seg.End)
		if seg.End <= seg.Start {
			continue
		}
		seg.Index = len(out)
		out = append(out, seg)
		prevEnd = seg.End
	}
	return out
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
