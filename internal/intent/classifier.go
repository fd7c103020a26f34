package intent

import (
	"math"
	"strings"

	"frontdesk/internal/domain"
)

const confidenceStep = 0.1

// Classify assigns an intent to text. hint is "auto" (or empty) to detect the
// language, or a language tag such as "zh", "en-US" or "zh_CN".
//
// Every rule whose keyword set hits the lower-cased text is recorded once, in
// table order. The winner is the highest-ranked match; ties go to the earliest
// rule. Confidence grows by 0.1 per matched intent from 0.3, capped at 0.9.
func Classify(text, hint string) domain.ClassificationResult {
	lower := strings.ToLower(strings.TrimSpace(text))
	lang := ResolveLanguage(text, hint)

	var matched []domain.Intent
	for _, r := range rules {
		for _, kw := range r.Keywords {
			if strings.Contains(lower, kw) {
				matched = append(matched, r.Intent)
				break
			}
		}
	}

	if len(matched) == 0 {
		return domain.ClassificationResult{
			Intent:         domain.IntentGeneralInquiry,
			Confidence:     domain.MinConfidence,
			Language:       lang,
			MatchedIntents: []domain.Intent{},
		}
	}

	best := matched[0]
	bestRank := Rank(best)
	for _, in := range matched[1:] {
		if r := Rank(in); r > bestRank {
			best, bestRank = in, r
		}
	}

	return domain.ClassificationResult{
		Intent:         best,
		Confidence:     confidence(len(matched)),
		Language:       lang,
		MatchedIntents: matched,
	}
}

// confidence rounds to one decimal so 0.3+3*0.1 reads as 0.6, not 0.6000000000000001.
func confidence(matches int) float64 {
	c := domain.MinConfidence + confidenceStep*float64(matches)
	c = math.Round(c*10) / 10
	return math.Min(c, domain.MaxConfidence)
}
