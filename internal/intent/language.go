package intent

import (
	"strings"

	"golang.org/x/text/language"

	"frontdesk/internal/domain"
)

// HintAuto asks the classifier to detect the language from the text.
const HintAuto = "auto"

var (
	baseChinese, _ = language.Chinese.Base()
	baseEnglish, _ = language.English.Base()
)

// ResolveLanguage returns the language for text given a caller hint. A hint
// whose base language is Chinese or English wins; "auto", empty, unparseable
// guessed-base ("und") or other-language hints fall back to DetectLanguage.
func ResolveLanguage(text, hint string) domain.Language {
	hint = strings.TrimSpace(hint)
	if hint == "" || strings.EqualFold(hint, HintAuto) {
		return DetectLanguage(text)
	}
	tag, err := language.Parse(strings.ReplaceAll(hint, "_", "-"))
	if err != nil {
		return DetectLanguage(text)
	}
	base, conf := tag.Base()
	if conf != language.Exact {
		return DetectLanguage(text)
	}
	switch base {
	case baseChinese:
		return domain.LanguageChinese
	case baseEnglish:
		return domain.LanguageEnglish
	}
	return DetectLanguage(text)
}

// DetectLanguage counts CJK unified ideographs (U+4E00..U+9FFF) against ASCII
// Latin letters. Ties, including empty text, resolve to Chinese.
func DetectLanguage(text string) domain.Language {
	var cjk, latin int
	for _, r := range text {
		switch {
		case r >= 0x4e00 && r <= 0x9fff:
			cjk++
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			latin++
		}
	}
	if latin > cjk {
		return domain.LanguageEnglish
	}
	return domain.LanguageChinese
}
