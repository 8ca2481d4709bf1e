package analysis

import (
	"context"
	"fmt"
	"os"
	"strings"

	"narrator/internal/services/llm"
)

// FrameRequest asks the vision service about one frame. Context is nil in
// label mode and carries the aggregated detections in detailed mode.
type FrameRequest struct {
	Path        string
	Timestamp   float64
	Title       string
	Description string
	Detailed    bool
	Context     *Aggregated
}

// Aggregated is the run-wide detection summary plus the current frame's own
// detections.
type Aggregated struct {
	Labels       []Label
	Objects      []Label
	FrameLabels  []Label
	FrameObjects []Label
}

// FrameDescriptor is a vision service answer.
type FrameDescriptor struct {
	Labels      []Label `json:"labels"`
	Objects     []Label `json:"objects"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description,omitempty"`
}

// VisionService labels and describes frames.
type VisionService interface {
	Describe(ctx context.Context, req FrameRequest) (FrameDescriptor, error)
}

// Completer is the chat completion call LLMVision depends on.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// LLMVision implements VisionService on an OpenAI-compatible vision model.
type LLMVision struct {
	client Completer
}

// NewLLMVision wraps a chat completion client.
func NewLLMVision(client Completer) *LLMVision {
	return &LLMVision{client: client}
}

const labelSystemPrompt = `You are a computer vision labeller. Respond with JSON only:
{"labels":[{"name":"...","confidence":0.0}],"objects":[{"name":"...","confidence":0.0,"area":0.0}]}
Labels describe the scene, setting and activity. Objects are distinct visible things with their
approximate share of the frame area between 0 and 1. Confidence is between 0 and 1. At most 20 of each.`

// Describe implements VisionService.
func (v *LLMVision) Describe(ctx context.Context, req FrameRequest) (FrameDescriptor, error) {
	data, err := os.ReadFile(req.Path)
	if err != nil {
		return FrameDescriptor{}, fmt.Errorf("read frame: %w", err)
	}
	if req.Detailed {
		content, err := v.client.Complete(ctx, llm.Request{
			User:      detailedPrompt(req),
			Images:    []llm.Image{{Data: data, Detail: "high"}},
			MaxTokens: 300,
		})
		if err != nil {
			return FrameDescriptor{}, err
		}
		return FrameDescriptor{Description: strings.TrimSpace(content)}, nil
	}

	zero := 0.0
	content, err := v.client.Complete(ctx, llm.Request{
		System:      labelSystemPrompt,
		User:        fmt.Sprintf("Label this frame taken at %.1fs.", req.Timestamp),
		Images:      []llm.Image{{Data: data, Detail: "low"}},
		JSON:        true,
		Temperature: &zero,
		MaxTokens:   500,
	})
	if err != nil {
		return FrameDescriptor{}, err
	}
	var desc FrameDescriptor
	if err := llm.DecodeLLMJSON(content, &desc); err != nil {
		return FrameDescriptor{}, fmt.Errorf("decode labels: %w", err)
	}
	desc.Labels = clampLabels(desc.Labels)
	desc.Objects = clampLabels(desc.Objects)
	for _, l := range desc.Labels {
		desc.Confidence = max(desc.Confidence, l.Confidence)
	}
	return desc, nil
}

func clampLabels(labels []Label) []Label {
	for i := range labels {
		labels[i].Confidence = min(max(labels[i].Confidence, 0), 1)
		labels[i].Area = min(max(labels[i].Area, 0), 1)
	}
	return labels
}

func detailedPrompt(req FrameRequest) string {
	var b strings.Builder
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Unknown"
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "No description available"
	}
	fmt.Fprintf(&b, "Analyze this frame in detail, considering both the visual content and the following context:\n\n")
	fmt.Fprintf(&b, "Video Title: %s\nDescription: %s\n\nEarlier labelling detected:", title, description)
	if agg := req.Context; agg != nil {
		writeLabels(&b, "Key elements across the video (with confidence):", agg.Labels)
		writeLabels(&b, "Objects across the video (with confidence and relative size):", agg.Objects)
		writeLabels(&b, "Elements in this frame:", agg.FrameLabels)
		writeLabels(&b, "Objects in this frame:", agg.FrameObjects)
	}
	b.WriteString(`

Describe:
1. The main subject of this frame in relation to the video's context
2. Actions, movements or interactions that are visible
3. Details that add to the video's narrative
4. Any labels above that look like misidentifications, with the correct reading

Keep the description natural and under 120 words.`)
	return b.String()
}

func writeLabels(b *strings.Builder, heading string, labels []Label) {
	if len(labels) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s", heading)
	for _, l := range labels {
		if l.Area > 0 {
			fmt.Fprintf(b, "\n- %s (confidence: %.2f, area: %.2f)", l.Name, l.Confidence, l.Area)
			continue
		}
		fmt.Fprintf(b, "\n- %s (%.2f)", l.Name, l.Confidence)
	}
}
