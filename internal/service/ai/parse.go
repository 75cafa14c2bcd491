package ai

import (
	"regexp"
	"strconv"
	"strings"

	"hwgrader/internal/models"

	"github.com/tidwall/gjson"
)

var (
	scorePattern    = regexp.MustCompile(`Score:\s*(\d+)`)
	feedbackPattern = regexp.MustCompile(`(?s)Feedback:\s*(.+)`)
)

// ParseEvaluation extracts a score and feedback from a model reply using the
// "Score:" and "Feedback:" lines. Only when no "Score:" line exists is a JSON
// object with "score" and "feedback" keys tried. A missing score becomes 0 and
// missing feedback becomes the whole reply, each marking the result partial.
func ParseEvaluation(reply string, maxScore int) models.Evaluation {
	reply = strings.TrimSpace(reply)
	eval := models.Evaluation{MaxScore: maxScore, Raw: reply, Outcome: models.OutcomeParsed}

	m := scorePattern.FindStringSubmatch(reply)
	if m == nil {
		if score, feedback, ok := parseJSONReply(reply); ok {
			eval.Score = clampScore(score, maxScore)
			eval.Feedback = feedback
			if feedback == "" {
				eval.Feedback = reply
				eval.Outcome = models.OutcomePartial
			}
			return eval
		}
		eval.Outcome = models.OutcomePartial
	} else {
		eval.Score = clampScore(atoiSaturating(m[1], maxScore), maxScore)
	}
	if m := feedbackPattern.FindStringSubmatch(reply); m != nil {
		eval.Feedback = strings.TrimSpace(m[1])
	} else {
		eval.Feedback = reply
		eval.Outcome = models.OutcomePartial
	}
	return eval
}

func parseJSONReply(reply string) (int64, string, bool) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return 0, "", false
	}
	body := reply[start : end+1]
	if !gjson.Valid(body) {
		return 0, "", false
	}
	score := gjson.Get(body, "score")
	if !score.Exists() || (score.Type != gjson.Number && score.Type != gjson.String) {
		return 0, "", false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(score.String()), 10, 64)
	if err != nil {
		return 0, "", false
	}
	return n, strings.TrimSpace(gjson.Get(body, "feedback").String()), true
}

// atoiSaturating parses a run of digits, treating overflow as max.
func atoiSaturating(digits string, max int) int64 {
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return int64(max)
	}
	return n
}

func clampScore(score int64, maxScore int) int {
	switch {
	case score < 0:
		return 0
	case score > int64(maxScore):
		return maxScore
	default:
		return int(score)
	}
}
