package agentloop

import (
	"math"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/language"
)

// ClassifierConfig configures a Classifier.
type ClassifierConfig struct {
	// Languages selects the keyword tables. Empty means DefaultLanguages.
	Languages []language.Tag
	// DirectQAThreshold is the confidence at or above which simple_qa tasks
	// bypass the tool loop.
	DirectQAThreshold float64
	// Policies overrides entries of the built-in policy table.
	Policies map[TaskType]ExecutionPolicy
}

// DefaultClassifierConfig returns the built-in configuration.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		Languages:         DefaultLanguages,
		DirectQAThreshold: 0.7,
	}
}

// classificationRule is one row of the ordered rule table. Rules are
// evaluated top to bottom and the first match wins.
type classificationRule struct {
	name       string
	taskType   TaskType
	confidence float64
	match      func(c *Classifier, f folded) bool
	// adjust may lower the confidence of a match.
	adjust func(c *Classifier, f folded) float64
}

var classificationRules = []classificationRule{
	{
		name: "conversational", taskType: TaskConversational, confidence: 1.0,
		match: func(c *Classifier, f folded) bool { return c.isConversational(f) },
	},
	{
		name: "security testing", taskType: TaskPentest, confidence: 0.9,
		match: func(c *Classifier, f folded) bool { return f.hasAny(c.vocab.pentest) },
	},
	{
		name: "file operation", taskType: TaskFileOperation, confidence: 0.9,
		match: func(c *Classifier, f folded) bool { return f.hasAny(c.vocab.file) },
	},
	{
		name: "code generation", taskType: TaskCodeGeneration, confidence: 0.85,
		match: func(c *Classifier, f folded) bool { return f.hasAny(c.vocab.code) },
	},
	{
		name: "web search", taskType: TaskWebSearch, confidence: 0.85,
		match: func(c *Classifier, f folded) bool { return f.hasAny(c.vocab.web) },
	},
	{
		name: "terminal command", taskType: TaskTerminalCommand, confidence: 0.85,
		match: func(c *Classifier, f folded) bool { return f.hasAny(c.vocab.terminal) },
	},
	{
		name: "question", taskType: TaskSimpleQA, confidence: 0.8,
		match: func(c *Classifier, f folded) bool { return c.isQuestion(f) },
		adjust: func(c *Classifier, f folded) float64 {
			if f.hasAny(c.vocab.technical) {
				return 0.6
			}
			return 0.8
		},
	},
}

var defaultPolicies = map[TaskType]ExecutionPolicy{
	TaskConversational:   {AllowedTools: []string{}, Temperature: 0.7, MaxIterations: 1},
	TaskSimpleQA:         {AllowedTools: []string{}, Temperature: 0.3, MaxIterations: 1},
	TaskFileOperation:    {AllowedTools: []string{"file_manager"}, Temperature: 0.1, MaxIterations: 3},
	TaskWebSearch:        {AllowedTools: []string{"web_search", "web_fetch"}, Temperature: 0.3, MaxIterations: 3},
	TaskTerminalCommand:  {AllowedTools: []string{"terminal"}, Temperature: 0.1, MaxIterations: 3},
	TaskCodeGeneration:   {AllowedTools: []string{"file_manager", "terminal"}, Temperature: 0.2, MaxIterations: 5},
	TaskPentest:          {AllowedTools: []string{"terminal", "web_search", "web_fetch", "file_manager"}, Temperature: 0.2, MaxIterations: 8},
	TaskComplexMultiStep: {AllowedTools: []string{}, Temperature: 0.3, MaxIterations: 10},
}

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

// Classifier assigns a TaskType to task text.
type Classifier struct {
	config    ClassifierConfig
	vocab     vocabulary
	greetings [][]string
	fillers   map[string]struct{}
	policies  map[TaskType]ExecutionPolicy
}

// maxGreetingFiller bounds the words that may follow a greeting ("thanks for
// the help") in a conversational task.
const maxGreetingFiller = 3

// NewClassifier builds a Classifier from config.
func NewClassifier(config ClassifierConfig) *Classifier {
	if len(config.Languages) == 0 {
		config.Languages = DefaultLanguages
	}
	if config.DirectQAThreshold <= 0 {
		config.DirectQAThreshold = 0.7
	}

	c := &Classifier{
		config:    config,
		vocab:     mergeVocabularies(config.Languages),
		fillers:   make(map[string]struct{}),
		policies:  make(map[TaskType]ExecutionPolicy, len(defaultPolicies)),
	}
	for _, g := range c.vocab.greetings {
		c.greetings = append(c.greetings, tokenize(g))
	}
	for _, w := range c.vocab.fillers {
		c.fillers[w] = struct{}{}
	}
	for t, p := range defaultPolicies {
		c.policies[t] = p
	}
	for t, p := range config.Policies {
		c.policies[t] = p
	}
	return c
}

// Classify assigns a category and confidence. It is deterministic and
// case-insensitive.
func (c *Classifier) Classify(task string) Classification {
	f := newFolded(task)
	for _, rule := range classificationRules {
		if !rule.match(c, f) {
			continue
		}
		confidence := rule.confidence
		if rule.adjust != nil {
			confidence = rule.adjust(c, f)
		}
		return Classification{Type: rule.taskType, Confidence: confidence, Reason: "matched " + rule.name + " patterns"}
	}

	complexity := c.Complexity(task)
	switch {
	case complexity > 0.7:
		return Classification{Type: TaskComplexMultiStep, Confidence: 0.5, Reason: "high complexity"}
	case complexity > 0.4:
		return Classification{Type: TaskSimpleQA, Confidence: 0.5, Reason: "moderate complexity"}
	default:
		return Classification{Type: TaskConversational, Confidence: 0.5, Reason: "low complexity"}
	}
}

// PolicyFor returns the execution policy for a task type. Unknown types get
// the complex_multi_step policy.
func (c *Classifier) PolicyFor(t TaskType) ExecutionPolicy {
	p, ok := c.policies[t]
	if !ok {
		p = c.policies[TaskComplexMultiStep]
	}
	p.AllowedTools = append([]string(nil), p.AllowedTools...)
	return p
}

// ShouldUseDirectResponse reports whether the task bypasses the tool loop:
// conversational tasks always do, simple_qa tasks when confident enough.
func (c *Classifier) ShouldUseDirectResponse(cls Classification) bool {
	switch cls.Type {
	case TaskConversational:
		return true
	case TaskSimpleQA:
		return cls.Confidence >= c.config.DirectQAThreshold
	}
	return false
}

// Complexity estimates task complexity in [0,1] from length, sentence count
// and sequencing/conditional connectives.
func (c *Classifier) Complexity(task string) float64 {
	f := newFolded(task)
	length := math.Min(float64(len([]rune(f.text)))/200, 1) * 0.4

	sentences := 0
	for _, s := range sentenceSplit.Split(f.text, -1) {
		if strings.TrimSpace(s) != "" {
			sentences++
		}
	}
	sentenceScore := math.Min(float64(sentences)/3, 1) * 0.3

	connectives := math.Min(float64(f.count(c.vocab.connectives))/2, 1) * 0.3

	return length + sentenceScore + connectives
}

func (c *Classifier) isConversational(f folded) bool {
	if len(f.tokens) == 0 {
		return false
	}
	// Greetings keep their apostrophes in the table ("what's up"), but
	// "whats up" and "what's up" both match.
	stripped := tokenize(strings.ReplaceAll(f.text, "'", ""))
	return c.greetingOnly(f.tokens) || c.greetingOnly(stripped)
}

// greetingOnly reports whether tokens open with a greeting followed by at
// most maxGreetingFiller filler words.
func (c *Classifier) greetingOnly(tokens []string) bool {
	for _, g := range c.greetings {
		if len(g) == 0 || len(g) > len(tokens) || !slices.Equal(g, tokens[:len(g)]) {
			continue
		}
		if rest := tokens[len(g):]; len(rest) <= maxGreetingFiller && c.allFillers(rest) {
			return true
		}
	}
	return false
}

func (c *Classifier) allFillers(words []string) bool {
	for _, w := range words {
		if _, ok := c.fillers[w]; !ok {
			return false
		}
	}
	return true
}

func (c *Classifier) isQuestion(f folded) bool {
	return isQuestion(f, c.vocab.interrogatives)
}

// isQuestion reports whether text ends with a question mark or opens with an
// interrogative.
func isQuestion(f folded, interrogatives []string) bool {
	if strings.HasSuffix(f.text, "?") {
		return true
	}
	return f.startsWithAny(interrogatives)
}
