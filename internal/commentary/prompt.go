package commentary

import (
	"fmt"
	"strings"

	"narrator/internal/analysis"
)

const baseSystemPrompt = `You are a skilled video commentator who adapts to each video's content and context. Your commentary:
1. Focuses on the video's own subject matter and text
2. Matches its tone to the content's theme
3. References specific details that are visible on screen
4. Avoids generic reactions and repetition
5. Moves naturally between moments

You always answer with JSON only, in exactly this shape:
{"segments":[{"text":"...","start":0.0,"end":0.0}]}
start and end are seconds on the video timeline. Segments must not overlap and must end before the video does.`

func systemPrompt(style Style, lang Language) string {
	var b strings.Builder
	b.WriteString(baseSystemPrompt)
	b.WriteString("\n\n")
	b.WriteString(style.Guide())
	if lang == Urdu {
		b.WriteString(`

URDU NARRATION:
- Write every segment in Urdu script, not transliteration
- Adapt formality to the content: formal for serious topics, conversational for casual ones
- Use natural Urdu sentence structure and punctuation (۔ ، ؟)
- Openings such as "دیکھیے" and transitions such as "اس کے بعد" suit narration`)
	}
	return b.String()
}

type promptInput struct {
	Title       string
	Description string
	Duration    float64
	Target      float64
	MaxWords    int
	Language    Language
	Report      analysis.Report
	Retry       bool
}

func userPrompt(in promptInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create %s commentary for this video.\n\n", in.Language.Name())
	fmt.Fprintf(&b, "CONTENT TO NARRATE:\nTitle: %s\nDescription: %s\n\n", orDefault(in.Title, "Untitled"), orDefault(in.Description, "No description available"))
	fmt.Fprintf(&b, "STRICT DURATION CONSTRAINTS:\n- Video duration: %.1f seconds\n- Target narration: %.1f seconds\n- Maximum words: %d\n- Do not exceed these limits.\n", in.Duration, in.Target, in.MaxWords)
	if in.Retry {
		b.WriteString("- Your previous answer was too long to speak in time. Be noticeably shorter.\n")
	}

	if len(in.Report.Labels) > 0 {
		b.WriteString("\nELEMENTS SEEN ACROSS THE VIDEO:\n")
		for _, l := range limit(in.Report.Labels, 15) {
			fmt.Fprintf(&b, "- %s (%.2f)\n", l.Name, l.Confidence)
		}
	}
	if len(in.Report.Objects) > 0 {
		b.WriteString("\nOBJECTS:\n")
		for _, l := range limit(in.Report.Objects, 15) {
			fmt.Fprintf(&b, "- %s (%.2f)\n", l.Name, l.Confidence)
		}
	}

	b.WriteString("\nTIMELINE:\n")
	for _, f := range in.Report.Succeeded() {
		names := make([]string, 0, len(f.Labels))
		for _, l := range limit(f.Labels, 5) {
			names = append(names, l.Name)
		}
		fmt.Fprintf(&b, "- %.1fs: %s", f.Timestamp, orDefault(strings.Join(names, ", "), "no confident labels"))
		if f.SceneChange {
			b.WriteString(" [scene change]")
		}
		b.WriteString("\n")
		if desc := strings.TrimSpace(f.Description); desc != "" {
			fmt.Fprintf(&b, "  %s\n", desc)
		}
	}

	b.WriteString(`
REQUIREMENTS:
1. Keep the total narration shorter than the video
2. Place each segment near the moment it describes
3. Leave short pauses between segments
4. Use the video's own terminology`)
	return b.String()
}

func limit(labels []analysis.Label, n int) []analysis.Label {
	if len(labels) > n {
		return labels[:n]
	}
	return labels
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
