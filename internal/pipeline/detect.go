package pipeline

import (
	"strings"

	"mailorder/internal/util"
)

var specialRequestPhrases = []string{"special request", "custom order", "specific requirements"}

// DetectSpecialRequest reports whether text asks for non-standard handling.
// It scans the whole message, not just the body.
func DetectSpecialRequest(text string) bool {
	folded := util.Fold(text)
	for _, phrase := range specialRequestPhrases {
		if strings.Contains(folded, phrase) {
			return true
		}
	}
	return false
}
