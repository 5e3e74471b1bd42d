package models

// SubtitleSegment is one caption line as delivered by the subtitle source
type SubtitleSegment struct {
	Start    float64 `json:"start" validate:"gte=0"`
	Duration float64 `json:"duration" validate:"gte=0"`
	Text     string  `json:"text"`
}

// End returns the time at which the caption disappears
func (s SubtitleSegment) End() float64 {
	return s.Start + s.Duration
}

// TranslationSegment is a translated caption. Start and Duration are always
// copied from the source segment.
type TranslationSegment struct {
	Start      float64 `json:"start"`
	Duration   float64 `json:"duration"`
	Original   string  `json:"original"`
	Translated string  `json:"translated"`
}

// NewTranslationSegment builds a translated segment carrying the source timing verbatim
func NewTranslationSegment(src SubtitleSegment, translated string) TranslationSegment {
	return TranslationSegment{
		Start:      src.Start,
		Duration:   src.Duration,
		Original:   src.Text,
		Translated: translated,
	}
}
