package agentloop

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/language"
)

// Reasons reported by Validator.IsSufficient.
const (
	ReasonTooShort         = "Observation too short"
	ReasonIsError          = "Observation is an error"
	ReasonCompletion       = "Completion indicators found"
	ReasonQuestionAnswered = "Question answered with relevant content"
	ReasonOperationDone    = "Operation completed successfully"
	ReasonRepeating        = "Repeating similar observations - should stop"
	ReasonAgentDone        = "Agent indicates task completion"
	ReasonInsufficient     = "Insufficient information"
)

// Reasons reported by Validator.ShouldForceFinal.
const (
	ReasonNearBudget  = "Near max iterations with valid data"
	ReasonStagnation  = "Stagnation detected: observations are not changing"
	ReasonAlternation = "Alternating between two actions"
)

// TruncationMarker is appended when ExtractAnswer shortens an observation.
const TruncationMarker = "\n\n[... truncated ...]"

// ValidatorConfig configures a Validator. Zero values select the defaults.
type ValidatorConfig struct {
	Languages []language.Tag

	MinObservationLength int     // default 10
	QuestionOverlap      float64 // default 0.5
	RepeatSimilarity     float64 // default 0.8
	StagnationSimilarity float64 // default 0.7
	NearBudgetMargin     int     // default 2
	NearBudgetMinLength  int     // default 50
	ExtractThreshold     int     // default 500
	ExtractLimit         int     // default 800
}

func (c ValidatorConfig) withDefaults() ValidatorConfig {
	if len(c.Languages) == 0 {
		c.Languages = DefaultLanguages
	}
	if c.MinObservationLength <= 0 {
		c.MinObservationLength = 10
	}
	if c.QuestionOverlap <= 0 {
		c.QuestionOverlap = 0.5
	}
	if c.RepeatSimilarity <= 0 {
		c.RepeatSimilarity = 0.8
	}
	if c.StagnationSimilarity <= 0 {
		c.StagnationSimilarity = 0.7
	}
	if c.NearBudgetMargin <= 0 {
		c.NearBudgetMargin = 2
	}
	if c.NearBudgetMinLength <= 0 {
		c.NearBudgetMinLength = 50
	}
	if c.ExtractThreshold <= 0 {
		c.ExtractThreshold = 500
	}
	if c.ExtractLimit <= 0 {
		c.ExtractLimit = 800
	}
	return c
}

// Validator judges observations: whether one already answers the task and
// whether the loop must stop.
type Validator struct {
	config       ValidatorConfig
	vocab        vocabulary
	labelPattern *regexp.Regexp
}

// NewValidator builds a Validator from config.
func NewValidator(config ValidatorConfig) *Validator {
	config = config.withDefaults()
	vocab := mergeVocabularies(config.Languages)

	labels := make([]string, len(vocab.resultLabels))
	for i, l := range vocab.resultLabels {
		labels[i] = regexp.QuoteMeta(l)
	}
	pattern := regexp.MustCompile(`(?is)(?:^|\n)\s*(?:` + strings.Join(labels, "|") + `)\s*:\s*(.+?)(?:\n\s*\n|\z)`)

	return &Validator{config: config, vocab: vocab, labelPattern: pattern}
}

// IsSufficient decides whether observation already answers task. The checks
// run in order and the first decisive one wins. history holds the cycles
// completed before this observation.
func (v *Validator) IsSufficient(task, observation, thought string, history []HistoryEntry) (bool, string) {
	obs := strings.TrimSpace(observation)
	if utf8.RuneCountInString(obs) < v.config.MinObservationLength {
		return false, ReasonTooShort
	}
	if v.IsPureError(obs) {
		return false, ReasonIsError
	}

	fo := newFolded(obs)
	combined := newFolded(obs + "\n" + thought)
	inProgress := combined.hasAny(v.vocab.progress)

	if combined.hasAny(v.vocab.completion) && !inProgress {
		return true, ReasonCompletion
	}

	ft := newFolded(task)
	if isQuestion(ft, v.vocab.interrogatives) {
		terms := v.significantTerms(ft)
		if len(terms) > 0 {
			hits := 0
			for _, term := range terms {
				if fo.has(term) {
					hits++
				}
			}
			if float64(hits)/float64(len(terms)) >= v.config.QuestionOverlap {
				return true, ReasonQuestionAnswered
			}
		}
	}

	if ft.hasAny(v.vocab.operations) && fo.hasAny(v.vocab.successPhrases) && !inProgress {
		return true, ReasonOperationDone
	}

	recent := recentObservations(history, 3)
	similar := 0
	for _, prev := range recent {
		if Jaccard(prev, obs) > v.config.RepeatSimilarity {
			similar++
		}
	}
	if similar >= 2 {
		return true, ReasonRepeating
	}

	if thought != "" && newFolded(thought).hasAny(v.vocab.thoughtDone) {
		return true, ReasonAgentDone
	}

	return false, ReasonInsufficient
}

// ShouldForceFinal decides whether the loop must conclude now. The checks
// are independent; the first that fires supplies the reason.
func (v *Validator) ShouldForceFinal(iteration, maxIterations int, history []HistoryEntry, lastObservation string) (bool, string) {
	last := strings.TrimSpace(lastObservation)
	if iteration >= maxIterations-v.config.NearBudgetMargin &&
		utf8.RuneCountInString(last) > v.config.NearBudgetMinLength &&
		!v.IsPureError(last) {
		return true, ReasonNearBudget
	}

	actions := recentActions(history, 5)
	if name, n, ok := repeatedAction(actions, 3); ok {
		return true, fmt.Sprintf("Loop detected: action '%s' repeated %d times", name, n)
	}

	if observations := recentObservations(history, 4); len(observations) == 4 {
		total := 0.0
		for _, o := range observations[1:] {
			total += Jaccard(observations[0], o)
		}
		if total/3 > v.config.StagnationSimilarity {
			return true, ReasonStagnation
		}
	}

	if isAlternating(recentActions(history, 4)) {
		return true, ReasonAlternation
	}

	return false, ""
}

// ExtractAnswer compresses a long observation into a usable answer: short
// observations are returned unchanged, labelled result segments are
// preferred, and anything else is truncated with TruncationMarker.
func (v *Validator) ExtractAnswer(observation, task string) string {
	if utf8.RuneCountInString(observation) < v.config.ExtractThreshold {
		return observation
	}
	if m := v.labelPattern.FindStringSubmatch(observation); m != nil {
		if segment := strings.TrimSpace(m[1]); segment != "" {
			if utf8.RuneCountInString(segment) > v.config.ExtractLimit {
				return truncateRunes(segment, v.config.ExtractLimit) + TruncationMarker
			}
			return segment
		}
	}
	return truncateRunes(observation, v.config.ExtractLimit) + TruncationMarker
}

// IsPureError reports whether an observation is an error rather than data:
// it opens with an error marker, or error vocabulary appears more than twice
// with no success vocabulary at all.
func (v *Validator) IsPureError(observation string) bool {
	f := newFolded(observation)
	if f.text == "" {
		return false
	}
	if f.startsWithAny(v.vocab.errorMarkers) {
		return true
	}
	return f.count(v.vocab.errorTerms) > 2 && f.count(v.vocab.successTerms) == 0
}

// significantTerms returns the task tokens longer than three characters that
// are not interrogatives.
func (v *Validator) significantTerms(f folded) []string {
	skip := make(map[string]struct{}, len(v.vocab.interrogatives))
	for _, w := range v.vocab.interrogatives {
		skip[w] = struct{}{}
	}
	seen := make(map[string]struct{})
	var terms []string
	for _, tok := range f.tokens {
		if utf8.RuneCountInString(tok) <= 3 {
			continue
		}
		if _, ok := skip[tok]; ok {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		terms = append(terms, tok)
	}
	return terms
}

// Jaccard returns the token-set similarity of two texts in [0,1]. Two empty
// texts are identical.
func Jaccard(a, b string) float64 {
	sa, sb := newFolded(a).set, newFolded(b).set
	if len(sa) == 0 && len(sb) == 0 {
		return 1
	}
	inter := 0
	for t := range sa {
		if _, ok := sb[t]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
