package ocr

import "regexp"

var (
	reEmailish = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	rePhoneish = regexp.MustCompile(`0\d{1,4}-\d{1,4}-\d{3,4}|\+\d{1,3}[\s\-]?\d+`)
	reOrgish   = regexp.MustCompile(`株式会社|有限会社|合同会社|Inc\.|LLC|Ltd\.|Corp\.`)
)

// naive heuristic confidence based on decoded text characteristics: each
// common card artifact (email-ish, phone-ish, organization-ish token) adds
// to a low base, plus a bump when there is enough content at all.
func heuristicConfidence(txt string) float64 {
	score := 0.2
	if reEmailish.MatchString(txt) {
		score += 0.2
	}
	if rePhoneish.MatchString(txt) {
		score += 0.15
	}
	if reOrgish.MatchString(txt) {
		score += 0.15
	}
	if len(txt) > 40 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
