package parse

import "unicode"

// DetectLanguage resolves a language hint against the raw card text. Any
// Japanese script rune (kana or kanji) marks the card as Japanese; plain
// Latin text falls through to English.
func DetectLanguage(rawText string, hint LanguageHint) LanguageHint {
	if hint == LangJapanese || hint == LangEnglish {
		return hint
	}
	for _, r := range rawText {
		if unicode.In(r, unicode.Hiragana, unicode.Katakana, unicode.Han) {
			return LangJapanese
		}
	}
	return LangEnglish
}
