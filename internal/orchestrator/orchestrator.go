// Package orchestrator implements the AgentOrchestrator of spec §4.K: the
// bounded turn loop that retrieves candidate tools, calls the model,
// executes any requested tool calls under the classify/rate-limit/circuit-
// breaker guards, consults the Supervisor on a cadence, and post-processes
// the final answer before it leaves the process. Grounded on the teacher's
// internal/agent/loop.go (turn loop structure, retryable-status backoff,
// history trimming) generalized from its fixed tool catalog to BM25-scoped
// retrieval per spec §4.E, and from its single confirmation step to the
// classify.ConfirmationGate of spec §4.I.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/haasonsaas/lucy/internal/backoff"
	"github.com/haasonsaas/lucy/internal/circuitbreaker"
	"github.com/haasonsaas/lucy/internal/classify"
	"github.com/haasonsaas/lucy/internal/config"
	"github.com/haasonsaas/lucy/internal/format"
	"github.com/haasonsaas/lucy/internal/lucyerr"
	"github.com/haasonsaas/lucy/internal/messagepool"
	"github.com/haasonsaas/lucy/internal/metrics"
	"github.com/haasonsaas/lucy/internal/ratelimit"
	"github.com/haasonsaas/lucy/internal/supervisor"
	"github.com/haasonsaas/lucy/internal/toolindex"
	"github.com/haasonsaas/lucy/internal/toolparams"
	"github.com/haasonsaas/lucy/pkg/lucy"
)

// maxLoopRepeats is how many identical tool-call signatures in a row break
// the turn loop (spec §4.K: "loop detection via signature hashing, three
// repeats breaks").
const maxLoopRepeats = 3

// ToolExecutor runs one tool call to completion. Implemented by the
// integration-wrapper layer, which is out of this module's scope (spec
// Non-goals: individual integration wrappers).
type ToolExecutor interface {
	Execute(ctx context.Context, call lucy.ToolCall) (lucy.ToolResult, error)
}

// Request is one turn-loop invocation's input.
type Request struct {
	TenantID         string
	Channel          string
	Message          string
	Intent           string
	Tier             lucy.Tier
	Model            string
	ConnectedApps    map[string]bool
	History          []lucy.LLMMessage
	CronMode         bool
	MaxTurns         int // 0 uses the configured default
	ProgressCallback func(text string)
}

// Outcome is the turn loop's terminal result.
type Outcome struct {
	Text           string
	PendingActions []*classify.PendingAction
	Turns          int
	Aborted        bool
	AskedUser      bool
}

// Orchestrator wires the turn loop's dependencies together.
type Orchestrator struct {
	llm        lucy.LLMClient
	tools      ToolExecutor
	index      *toolindex.CapabilityIndex
	limiter    *ratelimit.RateLimiter
	breakers   *circuitbreaker.Registry
	classifier *classify.Classifier
	gate       *classify.ConfirmationGate
	supervisor *supervisor.Supervisor
	metrics    *metrics.Collector
	pool       *messagepool.Pool
	cfg        config.ToolsConfig
	retrieval  config.RetrievalConfig
	llmModels  config.LLMConfig
	log        *slog.Logger
}

// New assembles an Orchestrator from its dependencies.
func New(
	llm lucy.LLMClient,
	tools ToolExecutor,
	index *toolindex.CapabilityIndex,
	limiter *ratelimit.RateLimiter,
	breakers *circuitbreaker.Registry,
	classifier *classify.Classifier,
	gate *classify.ConfirmationGate,
	sup *supervisor.Supervisor,
	metricsCollector *metrics.Collector,
	pool *messagepool.Pool,
	toolsCfg config.ToolsConfig,
	retrievalCfg config.RetrievalConfig,
	llmCfg config.LLMConfig,
) *Orchestrator {
	return &Orchestrator{
		llm:        llm,
		tools:      tools,
		index:      index,
		limiter:    limiter,
		breakers:   breakers,
		classifier: classifier,
		gate:       gate,
		supervisor: sup,
		metrics:    metricsCollector,
		pool:       pool,
		cfg:        toolsCfg,
		retrieval:  retrievalCfg,
		llmModels:  llmCfg,
		log:        slog.Default().With("component", "orchestrator"),
	}
}

// Run executes the bounded turn loop for req and returns its Outcome.
func (o *Orchestrator) Run(ctx context.Context, req Request) Outcome {
	maxTurns := req.MaxTurns
	if maxTurns <= 0 {
		maxTurns = o.cfg.MaxTurns
	}

	model := req.Model
	if model == "" {
		model = o.modelForTier(req.Tier)
	}

	history := append([]lucy.LLMMessage{}, req.History...)
	history = append(history, lucy.LLMMessage{Role: "user", Content: req.Message})

	var plan *supervisor.Plan
	if o.supervisor != nil {
		plan = o.supervisor.GeneratePlan(ctx, req.Intent, req.Message)
	}

	var (
		lastSignature  string
		repeatCount    int
		lastCheckpoint = time.Now()
		errorTotal     int
		consecutiveErr int
		started        = time.Now()
		pending        []*classify.PendingAction
	)

	for turn := 1; turn <= maxTurns; turn++ {
		workspaceID := req.TenantID
		candidates := o.retrieveTools(workspaceID, req.Message, req.ConnectedApps)

		turnStart := time.Now()
		resp, err := o.callModel(ctx, model, o.systemPrompt(req, plan), history, candidates)
		if o.metrics != nil {
			o.metrics.ObserveLLMTurnLatency(float64(time.Since(turnStart).Milliseconds()))
		}
		if err != nil {
			o.log.Error("llm turn call failed", "error", err, "turn", turn)
			return Outcome{Text: o.pool.Sample(messagepool.Apology), Turns: turn}
		}

		if len(resp.ToolCalls) == 0 {
			if turn == 1 && len(candidates) > 0 && claimsNoAccess(resp.Text) {
				history = append(history, lucy.LLMMessage{Role: "assistant", Content: resp.Text})
				history = append(history, lucy.LLMMessage{Role: "user", Content: correctiveMessage(candidates)})
				continue
			}
			return o.finalizeNoToolCalls(resp, req, turn)
		}

		signature := signatureOf(resp.ToolCalls)
		if signature == lastSignature {
			repeatCount++
		} else {
			repeatCount = 1
			lastSignature = signature
		}
		if repeatCount >= maxLoopRepeats {
			o.inc("tool_loops_total")
			o.log.Warn("tool call loop detected, breaking turn loop", "turn", turn, "signature", signature)
			return Outcome{Text: o.pool.Sample(messagepool.Apology), Turns: turn}
		}

		history = append(history, lucy.LLMMessage{Role: "assistant", Content: resp.Text, ToolCalls: resp.ToolCalls})

		results, newPending, hadError := o.executeToolCalls(ctx, req, resp.ToolCalls)
		pending = append(pending, newPending...)
		if hadError {
			errorTotal++
			consecutiveErr++
		} else {
			consecutiveErr = 0
		}
		history = append(history, lucy.LLMMessage{Role: "tool", ToolResults: results})
		history = trimHistory(history, o.cfg.PayloadMaxChars)

		if len(newPending) > 0 {
			return Outcome{Text: "", PendingActions: pending, Turns: turn}
		}

		if o.supervisor != nil && supervisor.CheckpointDue(lastCheckpoint, time.Now(), turn) {
			lastCheckpoint = time.Now()
			decision := o.supervisor.Evaluate(ctx, supervisor.EvaluateInput{
				PlanText:          planText(plan),
				LastThreeTurns:    lastTurns(history, 3),
				ErrorTotal:        errorTotal,
				ConsecutiveErrors: consecutiveErr,
				ElapsedS:          time.Since(started).Seconds(),
				CurrentModel:      model,
				ResponseLength:    len(resp.Text),
				Intent:            req.Intent,
			})
			switch decision {
			case supervisor.DecisionAbort:
				return Outcome{Text: o.pool.Sample(messagepool.Apology), Turns: turn, Aborted: true}
			case supervisor.DecisionAsk:
				return Outcome{Text: resp.Text, Turns: turn, AskedUser: true}
			case supervisor.DecisionEscalate:
				model = o.llmModels.ModelFrontier
			case supervisor.DecisionReplan:
				plan = o.supervisor.GeneratePlan(ctx, req.Intent, req.Message)
			case supervisor.DecisionIntervene:
				history = append(history, lucy.LLMMessage{Role: "system", Content: "Stay focused on the original goal and avoid unnecessary tool calls."})
			}
		}
	}

	return Outcome{Text: o.pool.Sample(messagepool.Apology), Turns: maxTurns}
}

func (o *Orchestrator) modelForTier(tier lucy.Tier) string {
	switch tier {
	case lucy.TierFast:
		return o.llmModels.ModelFast
	case lucy.TierCode:
		return o.llmModels.ModelCode
	case lucy.TierFrontier:
		return o.llmModels.ModelFrontier
	default:
		return o.llmModels.ModelDefault
	}
}

// retrieveTools runs a BM25 retrieval pass, expanding K on the second
// attempt if nothing scored (spec §4.E: "a second attempt at 2x K when the
// first pass comes back empty").
func (o *Orchestrator) retrieveTools(workspaceID, query string, connectedApps map[string]bool) []lucy.ToolDescriptor {
	if o.index == nil {
		return nil
	}
	idx := o.index.Get(workspaceID)

	start := time.Now()
	k := o.retrieval.DefaultK
	if k <= 0 {
		k = 12
	}
	result := idx.Retrieve(query, k, connectedApps)
	if len(result.Tools) == 0 {
		result = idx.Retrieve(query, k*2, connectedApps)
	}
	if o.metrics != nil {
		o.metrics.ObserveToolRetrievalLatency(float64(time.Since(start).Milliseconds()))
	}
	return result.Tools
}

func (o *Orchestrator) systemPrompt(req Request, plan *supervisor.Plan) string {
	var b strings.Builder
	b.WriteString("You are Lucy, an AI coworker embedded in a chat workspace. Be direct and helpful.")
	if plan != nil {
		b.WriteString("\n\nPlan:\nGoal: ")
		b.WriteString(plan.Goal)
		for _, step := range plan.Steps {
			fmt.Fprintf(&b, "\n%d. %s", step.Number, step.Description)
		}
	}
	return b.String()
}

func (o *Orchestrator) callModel(ctx context.Context, model, system string, history []lucy.LLMMessage, tools []lucy.ToolDescriptor) (*lucy.LLMResponse, error) {
	if o.limiter != nil && !o.limiter.AcquireModel(model, 30*time.Second) {
		return nil, lucyerr.New(lucyerr.KindRateLimited, "model rate limit exceeded: "+model)
	}

	breaker := o.breakers.Get("llm:" + model)
	policy := backoff.DefaultPolicy()

	var resp *lucy.LLMResponse
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		resp, lastErr = circuitbreaker.CallWithResult(ctx, breaker, func(callCtx context.Context) (*lucy.LLMResponse, error) {
			return o.llm.CreateMessage(callCtx, lucy.LLMRequest{
				Model:    model,
				System:   system,
				Messages: history,
				Tools:    tools,
			})
		})
		if lastErr == nil {
			return resp, nil
		}
		if !isRetryable(lastErr) {
			return nil, lastErr
		}
		wait := backoff.ComputeBackoff(policy, attempt)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}

func isRetryable(err error) bool {
	return lucyerr.KindOf(err).Retryable()
}

// noAccessPattern matches a first-turn model response that claims it lacks
// access or capability, even though candidate tools were retrieved for it.
var noAccessPattern = regexp.MustCompile(`(?i)(i don't have access|i do not have access|no access to|i can't access|i cannot access|i don't have the ability)`)

func claimsNoAccess(text string) bool {
	return noAccessPattern.MatchString(text)
}

// correctiveMessage lists the tools that were actually available, so a model
// that wrongly claimed "no access" on turn one can reconsider (spec §4.K
// step 4: "inject a corrective user message naming available tools").
func correctiveMessage(candidates []lucy.ToolDescriptor) string {
	var names []string
	for _, c := range candidates {
		names = append(names, c.Name)
	}
	return "You do have access to the following tools, use them if relevant: " + strings.Join(names, ", ")
}

func (o *Orchestrator) finalizeNoToolCalls(resp *lucy.LLMResponse, req Request, turn int) Outcome {
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		o.inc("no_text_fallbacks_total")
		text = o.pool.Sample(messagepool.Apology)
	}
	text = format.ForChannel(text, req.Channel)
	return Outcome{Text: text, Turns: turn}
}

// executeToolCalls runs every requested call through classify -> gate ->
// rate limit -> circuit breaker -> execute, in order (spec §4.K step 5).
// Calls that end up gated for user confirmation are returned as pending
// actions instead of executed.
func (o *Orchestrator) executeToolCalls(ctx context.Context, req Request, calls []lucy.ToolCall) ([]lucy.ToolResult, []*classify.PendingAction, bool) {
	var results []lucy.ToolResult
	var pending []*classify.PendingAction
	hadError := false

	for _, call := range calls {
		o.inc("tool_calls_total")

		if o.index != nil {
			if desc, ok := o.index.Get(req.TenantID).Lookup(call.Name); ok {
				if err := toolparams.Validate(desc.ParametersSchema, call.Parameters); err != nil {
					hadError = true
					o.inc("tool_errors_total")
					if o.metrics != nil {
						o.metrics.ToolErrorsByType.Inc(call.Name, string(lucyerr.KindInvalidParams))
					}
					results = append(results, errorResult(call, "invalid parameters: "+err.Error()))
					continue
				}
			}
		}

		actionType := o.classifier.Classify(call.Name, call.Parameters)
		gateResult := o.gate.Evaluate(req.TenantID, call.Name, call.Parameters, actionType, summarizeCall(call), req.CronMode)
		if gateResult.Gated {
			pending = append(pending, gateResult.Action)
			continue
		}

		api := ratelimit.ClassifyAPIFromTool(call.Name, call.Parameters)
		if api != "" && o.limiter != nil && !o.limiter.AcquireAPI(api, 10*time.Second) {
			hadError = true
			results = append(results, errorResult(call, "rate limited"))
			continue
		}

		timeout := o.timeoutFor(call.Name, api)
		callCtx, cancel := context.WithTimeout(ctx, timeout)

		breakerName := "tool:" + call.Name
		if api != "" {
			breakerName = "api:" + api
		}
		breaker := o.breakers.Get(breakerName)

		start := time.Now()
		result, err := circuitbreaker.CallWithResult(callCtx, breaker, func(execCtx context.Context) (lucy.ToolResult, error) {
			return o.tools.Execute(execCtx, call)
		})
		cancel()
		if o.metrics != nil {
			o.metrics.ObserveToolLatency(float64(time.Since(start).Milliseconds()))
		}

		if err != nil {
			hadError = true
			if lucyerr.KindOf(err) == lucyerr.KindUnknownTool {
				o.inc("unknown_tool_calls_total")
				if o.metrics != nil {
					o.metrics.UnknownToolNames.Inc(call.Name, req.TenantID)
				}
			} else {
				o.inc("tool_errors_total")
				if o.metrics != nil {
					o.metrics.ToolErrorsByType.Inc(call.Name, string(lucyerr.KindOf(err)))
				}
			}
			results = append(results, errorResult(call, err.Error()))
			continue
		}

		if result.Content != "" && len(result.Content) > o.cfg.ResultMaxChars {
			result.Content = result.Content[:o.cfg.ResultMaxChars]
			result.Truncated = true
		}
		if o.index != nil {
			o.index.Get(req.TenantID).RecordUsage(call.Name)
		}
		results = append(results, result)
	}

	return results, pending, hadError
}

func (o *Orchestrator) timeoutFor(toolName, api string) time.Duration {
	switch {
	case strings.HasPrefix(toolName, "lucy_"), strings.HasPrefix(toolName, "COMPOSIO_"):
		return o.cfg.MetaTimeout
	case api != "":
		return o.cfg.IntegrationTimeout
	default:
		return o.cfg.DefaultTimeout
	}
}

func (o *Orchestrator) inc(name string) {
	if o.metrics != nil {
		o.metrics.Inc(name)
	}
}

func errorResult(call lucy.ToolCall, message string) lucy.ToolResult {
	return lucy.ToolResult{ToolCallID: call.ID, Name: call.Name, Content: message, IsError: true}
}

func summarizeCall(call lucy.ToolCall) string {
	return fmt.Sprintf("%s(%d params)", call.Name, len(call.Parameters))
}

// signatureOf hashes a tool-call batch's (name, serialized-params) pairs so
// repeated identical batches can be detected without storing full history.
func signatureOf(calls []lucy.ToolCall) string {
	names := make([]string, len(calls))
	for i, c := range calls {
		params, _ := json.Marshal(c.Parameters)
		names[i] = c.Name + ":" + string(params)
	}
	sort.Strings(names)
	sum := sha256.Sum256([]byte(strings.Join(names, "|")))
	return hex.EncodeToString(sum[:])
}

// trimmedMarker is appended to a compressed tool result so the model can
// tell the value was shortened rather than genuinely short.
const trimmedMarker = " (trimmed)"

// historyTrimLimit is how long a compressed tool result's content is cut to.
const historyTrimLimit = 200

// trimHistory implements spec §4.K step 8: once the serialized history
// exceeds maxChars, compress the older half of tool-result messages down to
// historyTrimLimit chars with a "(trimmed)" marker, leaving the newer half
// of tool messages untouched.
func trimHistory(history []lucy.LLMMessage, maxChars int) []lucy.LLMMessage {
	if maxChars <= 0 || totalChars(history) <= maxChars {
		return history
	}

	toolIdx := make([]int, 0, len(history))
	for i, m := range history {
		if m.Role == "tool" {
			toolIdx = append(toolIdx, i)
		}
	}
	cutoff := len(toolIdx) / 2 // indices [0, cutoff) are the older half

	for i := 0; i < cutoff && totalChars(history) > maxChars; i++ {
		idx := toolIdx[i]
		history[idx] = compressToolMessage(history[idx])
	}
	return history
}

func totalChars(history []lucy.LLMMessage) int {
	total := 0
	for _, m := range history {
		total += len(m.Content)
		for _, r := range m.ToolResults {
			total += len(r.Content)
		}
	}
	return total
}

func compressToolMessage(m lucy.LLMMessage) lucy.LLMMessage {
	compressed := make([]lucy.ToolResult, len(m.ToolResults))
	for i, r := range m.ToolResults {
		if len(r.Content) > historyTrimLimit {
			r.Content = r.Content[:historyTrimLimit] + trimmedMarker
			r.Truncated = true
		}
		compressed[i] = r
	}
	m.ToolResults = compressed
	return m
}

func planText(plan *supervisor.Plan) string {
	if plan == nil {
		return ""
	}
	data, _ := json.Marshal(plan)
	return string(data)
}

func lastTurns(history []lucy.LLMMessage, n int) []string {
	var turns []string
	for i := len(history) - 1; i >= 0 && len(turns) < n; i-- {
		if history[i].Content != "" {
			turns = append([]string{history[i].Content}, turns...)
		}
	}
	return turns
}
