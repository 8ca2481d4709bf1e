package commentary

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Style is a commentary tone.
type Style string

const (
	StyleNews        Style = "news"
	StyleFunny       Style = "funny"
	StyleNature      Style = "nature"
	StyleInfographic Style = "infographic"
	StyleDocumentary Style = "documentary"
	StyleEnergetic   Style = "energetic"
	StyleAnalytical  Style = "analytical"
	StyleStoryteller Style = "storyteller"
)

// DefaultStyle is used when a job does not name one.
const DefaultStyle = StyleDocumentary

var styleGuides = map[Style]string{
	StyleNews: `NEWS APPROACH:
- Lead with the most important fact
- Keep sentences short and declarative
- Attribute claims to the video's own text
- Stay neutral and precise`,
	StyleFunny: `COMEDIC APPROACH:
- Find the genuinely amusing details on screen
- Use light, playful observations and timing
- Keep humor kind, never mocking people
- Land a punchline near the end`,
	StyleNature: `NATURE APPROACH:
- Speak with calm wonder about living things and landscapes
- Name species and behaviors accurately
- Let quiet moments breathe
- Connect what is seen to the wider natural world`,
	StyleInfographic: `INFOGRAPHIC APPROACH:
- Explain the key facts as if labelling a chart
- Use numbers, comparisons and simple structure
- One idea per segment
- Favor clarity over color`,
	StyleDocumentary: `DOCUMENTARY APPROACH:
- Present information with authority
- Provide context where relevant
- Use formal but engaging language
- Balance facts with narrative`,
	StyleEnergetic: `ENERGETIC APPROACH:
- Match the excitement of the content
- Build anticipation naturally
- Use dynamic expressions
- Keep the enthusiasm authentic`,
	StyleAnalytical: `ANALYTICAL APPROACH:
- Break down the key elements
- Point out patterns and connections
- Use precise language
- Stay objective while engaging`,
	StyleStoryteller: `STORYTELLING APPROACH:
- Create narrative flow with a beginning, middle and end
- Build emotional connection
- Use descriptive, evocative language
- Emphasize the human elements`,
}

// Styles returns the supported styles in name order.
func Styles() []Style {
	out := make([]Style, 0, len(styleGuides))
	for s := range styleGuides {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseStyle validates a style name. Empty selects DefaultStyle.
func ParseStyle(value string) (Style, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return DefaultStyle, nil
	}
	style := Style(value)
	if _, ok := styleGuides[style]; !ok {
		return "", fmt.Errorf("unsupported commentary style %q", value)
	}
	return style, nil
}

// Guide returns the style-specific prompt block.
func (s Style) Guide() string { return styleGuides[s] }

// Language is a supported narration language.
type Language string

const (
	English Language = "en"
	Urdu    Language = "ur"
)

// DefaultLanguage is used when a job does not name one.
const DefaultLanguage = English

var wordsPerMinute = map[Language]float64{
	English: 150,
	Urdu:    120,
}

// ParseLanguage accepts any BCP 47 tag whose base language is supported,
// such as "en", "en-GB" or "ur-PK". Empty selects DefaultLanguage.
func ParseLanguage(value string) (Language, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return DefaultLanguage, nil
	}
	tag, err := language.Parse(value)
	if err != nil {
		return "", fmt.Errorf("invalid language %q: %w", value, err)
	}
	base, _ := tag.Base()
	lang := Language(base.String())
	if _, ok := wordsPerMinute[lang]; !ok {
		return "", fmt.Errorf("unsupported language %q", value)
	}
	return lang, nil
}

// WordsPerMinute returns the speaking rate used for estimates.
func (l Language) WordsPerMinute() float64 {
	if wpm, ok := wordsPerMinute[l]; ok {
		return wpm
	}
	return wordsPerMinute[English]
}

// Name returns the English display name of the language.
func (l Language) Name() string {
	return display.English.Languages().Name(language.Make(string(l)))
}

// Provider names the chat model family a script is written with.
type Provider string

const (
	OpenAI   Provider = "openai"
	DeepSeek Provider = "deepseek"
)

// ParseProvider normalizes a provider name. Empty is returned unchanged and
// means the configured provider.
func ParseProvider(value string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(value)))
	switch p {
	case "", OpenAI, DeepSeek:
		return p, nil
	}
	return "", fmt.Errorf("unknown provider %q (want %s or %s)", value, OpenAI, DeepSeek)
}

// Supports reports whether p can write narration in lang. Urdu scripts need
// an OpenAI model.
func (p Provider) Supports(lang Language) bool {
	if lang == Urdu {
		return p == OpenAI
	}
	return true
}
