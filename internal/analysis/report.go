package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"narrator/internal/fileutil"
)

// ReportFile is the analysis output inside the job working directory.
const ReportFile = "analysis.json"

// Label is a named detection with a confidence in [0, 1].
type Label struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	// Area is the normalized bounding-box area for objects.
	Area float64 `json:"area,omitempty"`
}

// FrameResult is the analysis of one key frame.
type FrameResult struct {
	Index       int     `json:"index"`
	Path        string  `json:"path"`
	Timestamp   float64 `json:"timestamp"`
	Score       float64 `json:"score"`
	SceneChange bool    `json:"scene_change"`
	Labels      []Label `json:"labels"`
	Objects     []Label `json:"objects"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// OK reports whether the frame was labelled successfully.
func (f FrameResult) OK() bool { return f.Error == "" }

// Report is the structured visual summary handed to the commentary stage.
type Report struct {
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Duration    float64       `json:"duration"`
	Frames      []FrameResult `json:"frames"`
	Labels      []Label       `json:"labels"`
	Objects     []Label       `json:"objects"`
}

// Succeeded returns the frames that were labelled.
func (r Report) Succeeded() []FrameResult {
	out := make([]FrameResult, 0, len(r.Frames))
	for _, f := range r.Frames {
		if f.OK() {
			out = append(out, f)
		}
	}
	return out
}

// Descriptions returns the detailed frame descriptions in timeline order.
func (r Report) Descriptions() []FrameResult {
	var out []FrameResult
	for _, f := range r.Frames {
		if strings.TrimSpace(f.Description) != "" {
			out = append(out, f)
		}
	}
	return out
}

// Validate checks the report is usable by the commentary stage.
func (r Report) Validate() error {
	if len(r.Succeeded()) == 0 {
		return errors.New("analysis report has no labelled frames")
	}
	for i := 1; i < len(r.Frames); i++ {
		if r.Frames[i].Timestamp < r.Frames[i-1].Timestamp {
			return fmt.Errorf("analysis frames out of order at %d", i)
		}
	}
	return nil
}

// Save writes the report atomically.
func (r Report) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(path, append(data, '\n'), 0o644)
}

// LoadReport reads a report written by Save.
func LoadReport(path string) (Report, error) {
	var r Report
	data, err := os.ReadFile(path)
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("decode %s: %w", path, err)
	}
	return r, nil
}

// FilterLabels drops labels below minConfidence and empty names.
func FilterLabels(labels []Label, minConfidence float64) []Label {
	out := make([]Label, 0, len(labels))
	for _, l := range labels {
		l.Name = strings.TrimSpace(l.Name)
		if l.Name == "" || l.Confidence < minConfidence {
			continue
		}
		out = append(out, l)
	}
	return out
}

// Aggregate keeps the highest-confidence entry per case-insensitive name and
// returns them by descending confidence.
func Aggregate(groups ...[]Label) []Label {
	best := make(map[string]Label)
	for _, labels := range groups {
		for _, l := range labels {
			key := strings.ToLower(l.Name)
			if cur, ok := best[key]; !ok || l.Confidence > cur.Confidence {
				best[key] = l
			}
		}
	}
	out := make([]Label, 0, len(best))
	for _, l := range best {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Name < out[j].Name
	})
	return out
}
