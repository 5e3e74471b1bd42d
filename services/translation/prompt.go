package translation

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

const noteInstruction = "\nIMPORTANT: the text contains musical notes (♪) used as alignment markers. " +
	"Keep them in the same relative position in the translation; they separate phrases and must stay for synchronization."

// LanguageName returns the English name of a language code, or the code itself
// when it is not a known tag.
func LanguageName(code string) string {
	code = strings.TrimSpace(code)
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return code
}

// BuildPrompt renders the translation instruction for one unit
func BuildPrompt(text, targetLanguage, sourceLanguage string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Translate the following text into %s", LanguageName(targetLanguage))
	if sourceLanguage != "" && sourceLanguage != AutoDetect {
		fmt.Fprintf(&sb, " from %s", LanguageName(sourceLanguage))
	}
	sb.WriteString(".\nKeep the same tone and style. If it is a song or a poem, preserve rhyme and rhythm when possible.")
	if strings.Contains(text, MusicNote) {
		sb.WriteString(noteInstruction)
	}
	sb.WriteString("\nReturn ONLY the translation, without explanations or comments.\n\n")
	fmt.Fprintf(&sb, "Text: %s\n\nTranslation:", text)

	return sb.String()
}
