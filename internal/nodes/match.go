package nodes

import (
	"strings"
	"time"
	"unicode"

	"github.com/ShayCichocki/rise/pkg/models"
)

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "then": true,
	"that": true, "this": true, "from": true, "into": true, "please": true,
}

func keywords(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) >= 3 && !stopWords[f] {
			out = append(out, f)
		}
	}
	return out
}

func overlap(words []string, vocab map[string]bool) int {
	n := 0
	for _, w := range words {
		if vocab[w] {
			n++
		}
	}
	return n
}

func vocabulary(texts ...string) map[string]bool {
	v := make(map[string]bool)
	for _, t := range texts {
		for _, w := range keywords(t) {
			v[w] = true
		}
	}
	return v
}

// MatchPlan builds a one-step plan without a model: the request goes to the
// team whose name, description and tool names share the most keywords
// with it, using that team's best matching tool. The first team is used
// when nothing matches. An empty roster yields an empty plan.
func MatchPlan(request string, roster models.Roster, newID func() string) models.Plan {
	plan := models.Plan{
		ID:         newID(),
		Goal:       request,
		Complexity: EstimateComplexity(request),
		CreatedAt:  time.Now(),
	}
	if len(roster) == 0 {
		plan.Reason = "no teams available"
		return plan
	}

	words := keywords(request)
	best, bestScore := roster[0], -1
	for _, team := range roster {
		texts := append([]string{team.Name, team.Description}, team.Tools...)
		if score := overlap(words, vocabulary(texts...)); score > bestScore {
			best, bestScore = team, score
		}
	}

	step := models.PlanStep{
		ID:          "step-1",
		Description: request,
		Team:        best.Name,
		Status:      models.StepPending,
	}
	toolScore := 0
	for _, tool := range best.Tools {
		if score := overlap(words, vocabulary(tool)); score > toolScore {
			step.Tools, toolScore = []string{tool}, score
		}
	}
	plan.Steps = []models.PlanStep{step}
	return plan
}
