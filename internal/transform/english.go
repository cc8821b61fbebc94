package transform

import "unicode"

// englishThreshold is the letter-share above which text is treated as
// already English and translation is skipped.
const englishThreshold = 0.8

// looksEnglish reports whether most letters in the text are ASCII.
// Digits, punctuation and whitespace are ignored so markdown syntax
// does not skew the ratio.
func looksEnglish(text string) bool {
	var letters, ascii int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if r < 128 {
			ascii++
		}
	}
	if letters == 0 {
		return true
	}
	return float64(ascii)/float64(letters) > englishThreshold
}
