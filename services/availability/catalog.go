package availability

import "strings"

// Category tags a model by capability
type Category string

const (
	CategoryText       Category = "text"
	CategoryReasoning  Category = "reasoning"
	CategoryAudio      Category = "audio"
	CategoryImage      Category = "image"
	CategoryVideo      Category = "video"
	CategoryCode       Category = "code"
	CategoryMultimodal Category = "multimodal"
)

// DefaultGeminiModels is the primary provider catalog, free-tier friendly models first
var DefaultGeminiModels = []string{
	"gemini-1.5-flash",
	"gemini-1.5-pro",
	"gemini-2.0-flash",
	"gemini-2.5-flash",
	"gemini-2.5-pro",
}

var categoryKeywords = []struct {
	category Category
	keywords []string
}{
	{CategoryAudio, []string{"audio", "tts", "speech", "native-audio", "whisper"}},
	{CategoryImage, []string{"image", "imagen", "vision"}},
	{CategoryVideo, []string{"video", "veo"}},
	{CategoryCode, []string{"code", "coder"}},
	{CategoryReasoning, []string{"thinking", "reason", "-pro", "o1", "deepseek-r1"}},
}

// Catalog is an ordered list of candidate models, highest priority first
type Catalog struct {
	models []string
	index  map[string]int
}

// NewCatalog builds a catalog, dropping blanks and duplicates
func NewCatalog(models ...string) *Catalog {
	c := &Catalog{index: make(map[string]int, len(models))}
	for _, m := range models {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if _, dup := c.index[m]; dup {
			continue
		}
		c.index[m] = len(c.models)
		c.models = append(c.models, m)
	}
	return c
}

// Models returns the catalog in priority order
func (c *Catalog) Models() []string {
	out := make([]string, len(c.models))
	copy(out, c.models)
	return out
}

// Contains reports whether the model belongs to the catalog
func (c *Catalog) Contains(model string) bool {
	_, ok := c.index[model]
	return ok
}

// Len returns the number of models
func (c *Catalog) Len() int {
	return len(c.models)
}

// Categorize tags a model by the keywords in its name. Every model is at least text,
// and gemini family models are multimodal.
func Categorize(model string) []Category {
	name := strings.ToLower(strings.TrimPrefix(model, "models/"))
	categories := []Category{CategoryText}

	for _, ck := range categoryKeywords {
		for _, kw := range ck.keywords {
			if strings.Contains(name, kw) {
				categories = append(categories, ck.category)
				break
			}
		}
	}
	if strings.HasPrefix(name, "gemini") {
		categories = append(categories, CategoryMultimodal)
	}
	return categories
}
