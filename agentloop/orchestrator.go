package agentloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/martinemde/taskrouter/unifiedllm"
)

// loopWarningAction names the synthetic history entry injected when the
// model repeats an action.
const loopWarningAction = "system_loop_warning"

// ErrEmptyTask is returned by Run for blank tasks.
var ErrEmptyTask = errors.New("task is empty")

// Config holds orchestrator tunables.
type Config struct {
	HistoryWindow     int            `json:"history_window"`      // trailing entries sent per prompt
	IterationDelay    time.Duration  `json:"iteration_delay"`     // pause between iterations
	MaxTotalTokens    int            `json:"max_total_tokens"`    // 0 = unlimited
	DirectMaxTokens   int            `json:"direct_max_tokens"`   // output cap on the direct path
	LoopMaxTokens     int            `json:"loop_max_tokens"`     // output cap per loop step, 0 = provider default
	ExperienceResults int            `json:"experience_results"`  // similar experiences requested from the learner
	ToolOutputLimits  map[string]int `json:"tool_output_limits,omitempty"`
	ToolLineLimits    map[string]int `json:"tool_line_limits,omitempty"`
}

// directMaxTemperature caps the sampling temperature of direct answers.
const directMaxTemperature = 0.3

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		HistoryWindow:     3,
		DirectMaxTokens:   500,
		LoopMaxTokens:     1500,
		ExperienceResults: 3,
	}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConfig replaces the configuration.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.config = cfg }
}

// WithClassifier sets the classifier.
func WithClassifier(c *Classifier) Option {
	return func(o *Orchestrator) { o.classifier = c }
}

// WithValidator sets the validator.
func WithValidator(v *Validator) Option {
	return func(o *Orchestrator) { o.validator = v }
}

// WithLearner sets the learning collaborator.
func WithLearner(l Learner) Option {
	return func(o *Orchestrator) { o.learner = l }
}

// WithSessionStore sets the persistence collaborator.
func WithSessionStore(s SessionStore) Option {
	return func(o *Orchestrator) { o.sessions = s }
}

// WithEmitter sets the event emitter.
func WithEmitter(e *EventEmitter) Option {
	return func(o *Orchestrator) { o.emitter = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithRetryPolicy replaces the completion retry policy. Only failures the
// policy accepts are retried.
func WithRetryPolicy(p unifiedllm.RetryPolicy) Option {
	return func(o *Orchestrator) { o.retry = p }
}

// Orchestrator classifies tasks and drives the direct path or the ReAct
// loop. It holds no per-run state; runs on one Orchestrator must not overlap
// because the completer's token statistics are reset at the start of each.
type Orchestrator struct {
	client     Completer
	registry   *ToolRegistry
	classifier *Classifier
	validator  *Validator
	learner    Learner
	sessions   SessionStore
	emitter    *EventEmitter
	logger     *slog.Logger
	config     Config
	retry      unifiedllm.RetryPolicy
}

// NewOrchestrator creates an orchestrator over a completion service and a
// tool registry.
func NewOrchestrator(client Completer, registry *ToolRegistry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:   client,
		registry: registry,
		config:   DefaultConfig(),
		retry:    unifiedllm.RateLimitRetryPolicy(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = NewToolRegistry()
	}
	if o.classifier == nil {
		o.classifier = NewClassifier(DefaultClassifierConfig())
	}
	if o.validator == nil {
		o.validator = NewValidator(ValidatorConfig{})
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.config.HistoryWindow <= 0 {
		o.config.HistoryWindow = 3
	}
	if o.config.DirectMaxTokens <= 0 {
		o.config.DirectMaxTokens = 500
	}
	return o
}

// Classifier returns the classifier in use.
func (o *Orchestrator) Classifier() *Classifier { return o.classifier }

// Registry returns the tool registry in use.
func (o *Orchestrator) Registry() *ToolRegistry { return o.registry }

// Reset clears the completion service's cumulative token statistics.
func (o *Orchestrator) Reset() {
	o.client.ResetTokenStats()
}

// run is the state of a single Run call.
type run struct {
	id        string
	task      string
	cls       Classification
	policy    ExecutionPolicy
	state     *ExecutionState
	tools     []ToolDescriptor
	system    string
	lastGood  string
	result    *Result
	startedAt time.Time
	logger    *slog.Logger
}

func (r *run) toolNames() []string {
	names := make([]string, len(r.tools))
	for i, t := range r.tools {
		names[i] = t.Name
	}
	return names
}

func (r *run) allows(name string) bool {
	for _, t := range r.tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

// Run executes a task to termination. The answer is always in the Result,
// including for completion-service failures (Outcome error). The returned
// error is non-nil only for an empty task, a missing completer or context
// cancellation.
func (o *Orchestrator) Run(ctx context.Context, task string) (*Result, error) {
	if strings.TrimSpace(task) == "" {
		return nil, ErrEmptyTask
	}
	if o.client == nil {
		return nil, errors.New("orchestrator has no completion client")
	}

	o.client.ResetTokenStats()

	r := &run{
		id:        uuid.New().String(),
		task:      task,
		startedAt: time.Now(),
	}
	r.logger = o.logger.With("run_id", r.id)
	o.emit(EventRunStart, r, map[string]any{"task": task})

	r.cls = o.classifier.Classify(task)
	r.policy = o.classifier.PolicyFor(r.cls.Type)
	r.state = NewExecutionState(task, r.policy.MaxIterations)
	r.result = &Result{
		RunID:          r.id,
		Task:           task,
		TaskType:       r.cls.Type,
		Classification: r.cls,
		StartedAt:      r.startedAt,
	}
	r.logger.Info("task classified", "type", r.cls.Type, "confidence", r.cls.Confidence, "reason", r.cls.Reason)
	o.emit(EventClassified, r, map[string]any{
		"type":           string(r.cls.Type),
		"confidence":     r.cls.Confidence,
		"max_iterations": r.policy.MaxIterations,
	})

	var err error
	if o.classifier.ShouldUseDirectResponse(r.cls) {
		err = o.direct(ctx, r)
	} else {
		err = o.loop(ctx, r)
	}

	o.finish(ctx, r)
	return r.result, err
}

// direct answers with a single completion call and no tools.
func (o *Orchestrator) direct(ctx context.Context, r *run) error {
	lang := DetectLanguage(r.task, o.classifier.config.Languages)
	temperature := math.Min(r.policy.Temperature, directMaxTemperature)
	messages := []unifiedllm.Message{
		unifiedllm.SystemMessage(directSystemPrompt(r.cls.Type, lang)),
		unifiedllm.UserMessage(r.task),
	}

	if err := r.state.Advance(); err != nil {
		return err
	}
	resp, err := o.complete(ctx, r, messages, temperature, o.config.DirectMaxTokens)
	if err != nil {
		return o.serviceFailure(ctx, r, err)
	}

	answer := strings.TrimSpace(resp.Content)
	o.emit(EventDirectResponse, r, map[string]any{"language": lang.String(), "length": len(answer)})
	o.conclude(r, OutcomeDirect, answer, "direct response")
	return nil
}

// loop drives the ReAct iterations until a final answer, a forced
// conclusion, an error or exhaustion.
func (o *Orchestrator) loop(ctx context.Context, r *run) error {
	for _, d := range o.registry.List() {
		if r.policy.Allows(d.Name) {
			r.tools = append(r.tools, d)
		}
	}
	if len(r.tools) == 0 {
		msg := "Error: no tools available for this task"
		r.state.RecordError("no tools available for task type " + string(r.cls.Type))
		o.emit(EventError, r, map[string]any{"error": msg})
		o.conclude(r, OutcomeError, msg, "no tools")
		return nil
	}

	var experience Experience
	if o.learner != nil {
		exp, err := o.learner.RelevantExperience(ctx, r.task, o.config.ExperienceResults)
		if err != nil {
			r.logger.Warn("relevant experience lookup failed", "error", err)
		} else {
			experience = exp
		}
	}
	r.system = BuildSystemPrompt(r.tools, r.cls, r.policy, experience)

	for {
		if err := ctx.Err(); err != nil {
			return o.cancelled(r, err)
		}
		if err := r.state.Advance(); err != nil {
			break
		}
		iteration := r.state.Iteration
		o.emit(EventIterationStart, r, map[string]any{"iteration": iteration, "max_iterations": r.state.MaxIterations})

		if iteration > 1 && o.config.IterationDelay > 0 {
			timer := time.NewTimer(o.config.IterationDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return o.cancelled(r, ctx.Err())
			case <-timer.C:
			}
		}

		messages := []unifiedllm.Message{
			unifiedllm.SystemMessage(r.system),
			unifiedllm.UserMessage(BuildIterationPrompt(r.task, r.state.Window(o.config.HistoryWindow), iteration, r.state.MaxIterations)),
		}
		resp, err := o.complete(ctx, r, messages, r.policy.Temperature, o.config.LoopMaxTokens)
		if err != nil {
			return o.serviceFailure(ctx, r, err)
		}

		if o.config.MaxTotalTokens > 0 {
			if used := o.client.TokenStats().TotalTokens; used > o.config.MaxTotalTokens {
				r.logger.Warn("token budget exceeded", "used", used, "limit", o.config.MaxTotalTokens)
				o.emit(EventTokenBudget, r, map[string]any{"used": used, "limit": o.config.MaxTotalTokens})
				o.forceConclusion(r, OutcomeForcedConclusion, r.state.LastObservation(), "token budget exceeded")
				return nil
			}
		}

		step, perr := ParseStep(resp.Content)
		if perr != nil {
			r.state.RecordError(fmt.Sprintf("iteration %d: %v", iteration, perr))
			r.logger.Debug("unparseable step", "iteration", iteration, "error", perr)
			o.emit(EventParseError, r, map[string]any{"iteration": iteration, "error": perr.Error()})
			continue
		}

		if step.IsFinalAnswer() {
			o.conclude(r, OutcomeFinalAnswer, step.FinalAnswer, "final answer")
			return nil
		}

		if IsLooping(r.state.History, step.Action) {
			o.emit(EventLoopDetected, r, map[string]any{"iteration": iteration, "action": step.Action})
			if o.usable(r.lastGood) {
				o.forceConclusion(r, OutcomeForcedConclusion, r.lastGood, "loop detected")
				return nil
			}
			r.state.Append(HistoryEntry{
				Action:      loopWarningAction,
				Observation: fmt.Sprintf("You have already called %s repeatedly without useful results. Stop repeating it: choose a different tool or input, or give the Final Answer.", step.Action),
				Synthetic:   true,
			})
			continue
		}

		if force, reason := o.validator.ShouldForceFinal(iteration, r.state.MaxIterations, r.state.History, r.state.LastObservation()); force {
			o.emit(EventForceFinal, r, map[string]any{"iteration": iteration, "reason": reason})
			o.forceConclusion(r, OutcomeForcedConclusion, r.state.LastObservation(), reason)
			return nil
		}

		previous := r.state.History
		observation := o.execute(ctx, r, step)
		r.state.Append(HistoryEntry{Action: step.Action, Input: step.Input, Observation: observation})
		if !o.validator.IsPureError(observation) {
			r.lastGood = observation
		}

		if ok, reason := o.validator.IsSufficient(r.task, observation, step.Thought, previous); ok {
			o.emit(EventSufficient, r, map[string]any{"iteration": iteration, "reason": reason})
			o.forceConclusion(r, OutcomeForcedConclusion, observation, reason)
			return nil
		}
	}

	o.forceConclusion(r, OutcomeExhausted, "", "iteration budget exhausted")
	return nil
}

// complete calls the completion service, retrying per the retry policy.
func (o *Orchestrator) complete(ctx context.Context, r *run, messages []unifiedllm.Message, temperature float64, maxTokens int) (*unifiedllm.Response, error) {
	policy := o.retry
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		r.logger.Warn("completion retry", "attempt", attempt, "delay", delay, "error", err)
		o.emit(EventLLMRetry, r, map[string]any{"attempt": attempt, "delay_ms": delay.Milliseconds(), "error": err.Error()})
	}
	return unifiedllm.Retry(ctx, policy, func(ctx context.Context) (*unifiedllm.Response, error) {
		return o.client.Chat(ctx, messages, temperature, maxTokens)
	})
}

// serviceFailure ends the run after a completion failure. Failures are
// reported through the answer; only cancellation is returned as an error.
func (o *Orchestrator) serviceFailure(ctx context.Context, r *run, err error) error {
	if ctx.Err() != nil {
		return o.cancelled(r, ctx.Err())
	}
	var answer string
	if unifiedllm.IsRateLimit(err) {
		answer = fmt.Sprintf("Error: rate limit exceeded after %d attempts: %v", o.retry.Attempts(), err)
	} else {
		answer = fmt.Sprintf("Error: completion service failed: %v", err)
	}
	r.state.RecordError(err.Error())
	r.logger.Error("completion failed", "error", err)
	o.emit(EventError, r, map[string]any{"error": err.Error()})
	o.conclude(r, OutcomeError, answer, "completion service failure")
	return nil
}

func (o *Orchestrator) cancelled(r *run, err error) error {
	o.emit(EventError, r, map[string]any{"error": "context cancelled"})
	o.conclude(r, OutcomeError, "Error: task cancelled", "cancelled")
	return err
}

// execute runs the step's action and returns the observation text.
func (o *Orchestrator) execute(ctx context.Context, r *run, step *ParsedStep) string {
	name := step.Action
	o.emit(EventToolCallStart, r, map[string]any{"tool_name": name, "input": step.Input.String()})

	var observation string
	if !r.allows(name) {
		if o.registry.Has(name) {
			observation = fmt.Sprintf("Error: tool '%s' is not available for this task. Available tools: %s", name, strings.Join(r.toolNames(), ", "))
		} else {
			observation = fmt.Sprintf("Error: tool '%s' not found. Available tools: %s", name, strings.Join(r.toolNames(), ", "))
		}
		o.emit(EventToolCallEnd, r, map[string]any{"tool_name": name, "error": observation})
		return observation
	}

	outcome, err := o.registry.Execute(ctx, name, step.Input)
	var notFound *ToolNotFoundError
	switch {
	case errors.As(err, &notFound):
		observation = fmt.Sprintf("Error: tool '%s' not found. Available tools: %s", name, strings.Join(r.toolNames(), ", "))
	case err != nil:
		r.state.RecordError(err.Error())
		observation = "Error: " + err.Error()
	case !outcome.Success:
		msg := outcome.Error
		if msg == "" {
			msg = strings.TrimSpace(outcome.Output)
		}
		if msg == "" {
			msg = "tool reported failure"
		}
		r.state.RecordError(fmt.Sprintf("%s: %s", name, msg))
		observation = "Error: " + msg
	default:
		observation = TruncateToolOutput(outcome.Output, name, o.config.ToolOutputLimits, o.config.ToolLineLimits)
		if strings.TrimSpace(observation) == "" {
			observation = "(no output)"
		}
	}

	data := map[string]any{"tool_name": name, "success": err == nil && outcome.Success}
	if err != nil {
		data["error"] = err.Error()
	} else {
		// The event carries the full output; the observation may be truncated.
		data["output"] = outcome.Output
	}
	o.emit(EventToolCallEnd, r, data)
	return observation
}

// usable reports whether an observation can serve as a conclusion.
func (o *Orchestrator) usable(observation string) bool {
	trimmed := strings.TrimSpace(observation)
	return len(trimmed) >= o.validator.config.MinObservationLength && !o.validator.IsPureError(trimmed)
}

// ForceConclusion produces an answer without an explicit final-answer step:
// extracted from observation when it is usable, otherwise a summary of the
// actions attempted and the last observation.
func (o *Orchestrator) ForceConclusion(task string, history []HistoryEntry, observation string) string {
	if o.usable(observation) {
		return o.validator.ExtractAnswer(observation, task)
	}

	var actions []string
	last := ""
	for _, e := range history {
		if e.Synthetic {
			continue
		}
		actions = append(actions, e.Action)
		last = e.Observation
	}
	if len(actions) == 0 {
		return "I was unable to complete the task within the allowed steps."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "I could not reach a definitive answer. Actions attempted: %s.", strings.Join(actions, ", "))
	if last = strings.TrimSpace(last); last != "" {
		fmt.Fprintf(&sb, "\n\nLast observation: %s", truncateRunes(last, 300))
		if len([]rune(last)) > 300 {
			sb.WriteString("...")
		}
	}
	return sb.String()
}

func (o *Orchestrator) forceConclusion(r *run, outcome Outcome, observation, reason string) {
	r.logger.Info("forcing conclusion", "reason", reason, "iteration", r.state.Iteration)
	o.conclude(r, outcome, o.ForceConclusion(r.task, r.state.History, observation), reason)
}

func (o *Orchestrator) conclude(r *run, outcome Outcome, answer, reason string) {
	r.result.Answer = answer
	r.result.Outcome = outcome
	r.result.Reason = reason
}

// finish fills in the result and runs the post-termination side effects.
// Side-effect failures are logged and never change the answer.
func (o *Orchestrator) finish(ctx context.Context, r *run) {
	res := r.result
	res.Iterations = r.state.Iteration
	res.History = append([]HistoryEntry(nil), r.state.History...)
	res.Errors = append([]string(nil), r.state.Errors...)
	res.Usage = o.client.TokenStats()
	res.Duration = time.Since(r.startedAt)

	// Side effects outlive a cancelled run context.
	sideCtx := context.WithoutCancel(ctx)

	if o.learner != nil {
		report, err := o.learner.LearnFromTask(sideCtx, TaskRecord{
			Task:     r.task,
			TaskType: r.cls.Type,
			Actions:  r.state.Actions(),
			Outcome:  res.Answer,
			Success:  res.Outcome.Succeeded(),
			Errors:   res.Errors,
			Context: map[string]any{
				"run_id":     r.id,
				"outcome":    string(res.Outcome),
				"iterations": res.Iterations,
				"confidence": r.cls.Confidence,
			},
		})
		if err != nil {
			r.logger.Warn("learning store write failed", "error", err)
		} else {
			r.logger.Debug("experience recorded", "experience_id", report.ExperienceID, "lessons", report.LessonsCount)
		}
	}

	if o.sessions != nil {
		snapshot := Snapshot{
			RunID:          r.id,
			Task:           r.task,
			Classification: r.cls,
			Policy:         r.policy,
			State:          *r.state,
			Answer:         res.Answer,
			Outcome:        res.Outcome,
			Usage:          res.Usage,
			StartedAt:      r.startedAt,
			FinishedAt:     time.Now(),
		}
		if err := o.sessions.Save(sideCtx, r.id, snapshot); err != nil {
			r.logger.Warn("session save failed", "error", err)
		}
	}

	r.logger.Info("run finished", "outcome", res.Outcome, "iterations", res.Iterations, "total_tokens", res.Usage.TotalTokens)
	o.emit(EventRunEnd, r, map[string]any{
		"outcome":    string(res.Outcome),
		"iterations": res.Iterations,
		"reason":     res.Reason,
	})
}

func (o *Orchestrator) emit(kind EventKind, r *run, data map[string]any) {
	o.emitter.Emit(kind, r.id, data)
}
