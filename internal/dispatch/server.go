// Package dispatch implements the Dispatch glue of spec §4.N: the gin HTTP
// surface that receives chat platform events, dedupes them, fast-paths
// trivial messages, classifies the rest into a route decision, and admits
// them to the PriorityRequestQueue — plus the health/metrics/SLO endpoints
// operators poll. Grounded on
// _examples/codeready-toolchain-tarsy/cmd/tarsy/main.go for the gin
// setup (SetMode, Default(), JSON health handler, Run(":"+port)) and the
// teacher's internal/channels adapters for the event-to-Message shape,
// narrowed to this module's single inbound event type.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/lucy/internal/circuitbreaker"
	"github.com/haasonsaas/lucy/internal/classify"
	"github.com/haasonsaas/lucy/internal/config"
	"github.com/haasonsaas/lucy/internal/dedupe"
	"github.com/haasonsaas/lucy/internal/fastpath"
	"github.com/haasonsaas/lucy/internal/metrics"
	"github.com/haasonsaas/lucy/internal/orchestrator"
	"github.com/haasonsaas/lucy/internal/queue"
	"github.com/haasonsaas/lucy/internal/router"
	"github.com/haasonsaas/lucy/internal/slo"
	"github.com/haasonsaas/lucy/internal/tasks"
	"github.com/haasonsaas/lucy/internal/toolindex"
	"github.com/haasonsaas/lucy/internal/workspace"
	"github.com/haasonsaas/lucy/pkg/lucy"
)

// ChatEventRequest is the inbound POST /chat/events body. EventID is
// whatever idempotency key the upstream chat-platform adapter supplies
// (e.g. the platform's own event id); when absent the dispatcher derives
// one from (tenant, channel, timestamp).
type ChatEventRequest struct {
	TenantID         string    `json:"tenant_id" binding:"required" validate:"required"`
	EventID          string    `json:"event_id"`
	Channel          string    `json:"channel" validate:"required"`
	ChannelID        string    `json:"channel_id" binding:"required" validate:"required"`
	Thread           string    `json:"thread"`
	ThreadID         string    `json:"thread_id"`
	Text             string    `json:"text" binding:"required" validate:"required"`
	Sender           string    `json:"sender"`
	EventTS          time.Time `json:"event_ts"`
	ThreadDepth      int       `json:"thread_depth"`
	HasThreadContext bool      `json:"has_thread_context"`
}

// Server wires the dispatch control flow's dependencies together and
// exposes a *gin.Engine ready to Run.
type Server struct {
	cfg         config.ServerConfig
	llmCfg      config.LLMConfig
	dedupe      *dedupe.Rejector
	debouncer   *dedupe.Debouncer[lucy.Message]
	fastpath    *fastpath.Evaluator
	queue       *queue.Queue
	taskManager *tasks.Manager
	gate        *classify.ConfirmationGate
	orchestrator *orchestrator.Orchestrator
	metrics     *metrics.Collector
	breakers    *circuitbreaker.Registry
	sloEval     *slo.Evaluator
	index       *toolindex.CapabilityIndex
	stores      workspace.StoreFactory
	chat        workspace.ChatClient
	validate    *validator.Validate
	log         *slog.Logger
}

// Dependencies bundles every collaborator a Server needs, wired up by
// cmd/lucy/main.go.
type Dependencies struct {
	Config       config.ServerConfig
	LLM          config.LLMConfig
	Dedupe       *dedupe.Rejector
	FastPath     *fastpath.Evaluator
	Queue        *queue.Queue
	TaskManager  *tasks.Manager
	Gate         *classify.ConfirmationGate
	Orchestrator *orchestrator.Orchestrator
	Metrics      *metrics.Collector
	Breakers     *circuitbreaker.Registry
	SLO          *slo.Evaluator
	Index        *toolindex.CapabilityIndex
	Stores       workspace.StoreFactory
	Chat         workspace.ChatClient
}

// NewServer assembles a Server from deps.
func NewServer(deps Dependencies) *Server {
	s := &Server{
		cfg:          deps.Config,
		llmCfg:       deps.LLM,
		dedupe:       deps.Dedupe,
		fastpath:     deps.FastPath,
		queue:        deps.Queue,
		taskManager:  deps.TaskManager,
		gate:         deps.Gate,
		orchestrator: deps.Orchestrator,
		metrics:      deps.Metrics,
		breakers:     deps.Breakers,
		sloEval:      deps.SLO,
		index:        deps.Index,
		stores:       deps.Stores,
		chat:         deps.Chat,
		validate:     validator.New(),
		log:          slog.Default().With("component", "dispatch"),
	}

	if deps.Config.Debounce.DebounceMs > 0 {
		s.debouncer = dedupe.NewDebouncer(
			dedupe.WithDebounceMs[lucy.Message](deps.Config.Debounce.DebounceMs),
			dedupe.WithBuildKey(func(m *lucy.Message) string { return m.ChannelID }),
			dedupe.WithOnFlush(func(items []*lucy.Message) error {
				latest := items[len(items)-1]
				if len(items) > 1 {
					s.log.Info("debounced burst collapsed", "channel_id", latest.ChannelID, "collapsed", len(items)-1)
				}
				s.processEvent(context.Background(), *latest, nil)
				return nil
			}),
		)
	}

	return s
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.handleHealth)
	r.GET("/health/slo", s.handleHealthSLO)
	r.GET("/health/index", s.handleHealthIndex)
	r.GET("/health/db", s.handleHealthDB)
	r.GET("/metrics", s.handleMetrics)
	r.GET("/metrics/prom", gin.WrapH(promhttp.Handler()))
	r.POST("/chat/events", s.handleChatEvent)
	r.POST("/actions/:action_id/resolve", s.handleResolveAction)

	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "lucy"})
}

// handleMetrics serves spec §6's GET /metrics snapshot object
// ({uptime_seconds, counters{}, labeled_counters{}, histograms{},
// circuit_breakers[]}), distinct from the raw Prometheus exposition format
// served at /metrics/prom for scraping (spec §4.D's dual in-process/
// Prometheus representation, surfaced over HTTP).
func (s *Server) handleMetrics(c *gin.Context) {
	snap := s.metrics.Snapshot()
	var breakers []circuitbreaker.Snapshot
	if s.breakers != nil {
		breakers = s.breakers.Snapshots()
	}
	c.JSON(http.StatusOK, gin.H{
		"uptime_seconds":   snap.UptimeS,
		"counters":         snap.Counters,
		"labeled_counters": snap.Labeled,
		"histograms":       snap.Histograms,
		"circuit_breakers": breakers,
	})
}

func (s *Server) handleHealthSLO(c *gin.Context) {
	report := s.sloEval.Evaluate(s.metrics.Snapshot())
	status := http.StatusOK
	if report.Overall == slo.StatusFail {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

func (s *Server) handleHealthIndex(c *gin.Context) {
	c.JSON(http.StatusOK, s.index.Snapshot())
}

// handleHealthDB reports the database as out of this module's scope (spec
// §1 Non-goals: "persistent database" is an external collaborator), always
// returning "not_configured" rather than pretending to probe one.
func (s *Server) handleHealthDB(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "not_configured"})
}

func (s *Server) handleChatEvent(c *gin.Context) {
	var req ChatEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	dedupeKey := req.EventID
	if dedupeKey == "" {
		dedupeKey = fmt.Sprintf("%s:%s:%d", req.TenantID, req.ChannelID, req.EventTS.UnixNano())
	}
	if s.dedupe.Seen(dedupeKey) {
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}

	msg := lucy.Message{
		Text:             req.Text,
		Channel:          req.Channel,
		ChannelID:        req.ChannelID,
		Thread:           req.Thread,
		ThreadID:         req.ThreadID,
		EventTS:          req.EventTS,
		Sender:           req.Sender,
		TenantID:         req.TenantID,
		ThreadDepth:      req.ThreadDepth,
		HasThreadContext: req.HasThreadContext,
	}

	if s.debouncer != nil {
		s.debouncer.Enqueue(&msg)
		c.JSON(http.StatusAccepted, gin.H{"status": "buffered"})
		return
	}

	s.processEvent(c.Request.Context(), msg, c)
}

// processEvent runs the fast-path/task-active/classify-and-enqueue control
// flow of spec §4.N for one inbound message. resp is nil when processEvent
// runs off a debounce flush (internal/dedupe.Debouncer's onFlush callback),
// which has no HTTP request left to answer; in that case the outcome only
// reaches the user through s.postResponse/the queued handler's own chat
// post, same as a background task's result.
func (s *Server) processEvent(ctx context.Context, msg lucy.Message, resp *gin.Context) {
	respond := func(status int, body gin.H) {
		if resp != nil {
			resp.JSON(status, body)
		}
	}

	if result := s.fastpath.Evaluate(msg.Text, msg.ThreadDepth, msg.HasThreadContext); result.IsFast {
		s.postResponse(ctx, msg, result.ResponseText)
		respond(http.StatusOK, gin.H{"status": "fast_path", "reason": result.Reason})
		return
	}

	if active := s.taskManager.GetActiveForThread(msg.ThreadID); active != nil {
		s.postResponse(ctx, msg, "Still working on that one — I'll post here when it's done.")
		respond(http.StatusOK, gin.H{"status": "task_active", "task_id": active.TaskID})
		return
	}

	decision := router.Classify(msg.Text, s.llmCfg)
	priority := queue.ClassifyPriority(decision.Tier)
	background := tasks.ShouldRunAsBackgroundTask(decision.Tier, msg.Text)

	requestID := uuid.NewString()
	handler := s.buildHandler(msg, decision, background)
	if !s.queue.Enqueue(msg.TenantID, priority, handler, requestID) {
		respond(http.StatusServiceUnavailable, gin.H{"status": "rejected", "reason": "queue_full"})
		return
	}
	respond(http.StatusAccepted, gin.H{"status": "accepted", "request_id": requestID, "tier": decision.Tier})
}

// buildHandler closes over one request's msg/decision and returns the
// queue.Handler the worker pool will invoke, running the orchestrator
// either inline or inside a background task (spec §4.N step 6, §2's
// control-flow summary: "worker pulls job → (if classified as background)
// spawn via TaskManager, else run AgentOrchestrator inline").
func (s *Server) buildHandler(msg lucy.Message, decision lucy.RouteDecision, background bool) queue.Handler {
	return func(ctx context.Context) error {
		if background {
			_, err := s.taskManager.StartTask(ctx, msg.TenantID, msg.ChannelID, msg.ThreadID, msg.Text,
				func(taskCtx context.Context) (string, error) {
					outcome := s.orchestrator.Run(taskCtx, orchestrator.Request{
						TenantID: msg.TenantID,
						Channel:  msg.Channel,
						Message:  msg.Text,
						Intent:   decision.Intent,
						Tier:     decision.Tier,
						Model:    decision.Model,
					})
					if len(outcome.PendingActions) > 0 {
						texts := make([]string, len(outcome.PendingActions))
						for i, action := range outcome.PendingActions {
							texts[i] = renderPendingActionText(action)
						}
						return strings.Join(texts, "\n\n"), nil
					}
					return outcome.Text, nil
				}, s.chat)
			return err
		}

		outcome := s.orchestrator.Run(ctx, orchestrator.Request{
			TenantID: msg.TenantID,
			Channel:  msg.Channel,
			Message:  msg.Text,
			Intent:   decision.Intent,
			Tier:     decision.Tier,
			Model:    decision.Model,
		})
		if len(outcome.PendingActions) > 0 {
			s.postPendingActions(ctx, msg, outcome.PendingActions)
			return nil
		}
		s.postResponse(ctx, msg, outcome.Text)
		return nil
	}
}

func (s *Server) postResponse(ctx context.Context, msg lucy.Message, text string) {
	if text == "" {
		return
	}
	if _, err := s.chat.PostMessage(ctx, msg.ChannelID, msg.ThreadID, text); err != nil {
		s.log.Warn("post response failed", "tenant_id", msg.TenantID, "error", err)
	}
}

// postPendingActions renders each gated tool call's approve/cancel blocks
// (classify.ConfirmationGate.Evaluate's GateResult.Blocks) into plain text
// and posts it to the thread, since workspace.ChatClient exchanges plain
// text rather than a chat platform's native block-kit payload. Spec §4.I/§6
// scenario 5: a pending_approval outcome must still reach the user, with
// the action_id a caller can resolve via POST /actions/:action_id/resolve.
func (s *Server) postPendingActions(ctx context.Context, msg lucy.Message, pending []*classify.PendingAction) {
	texts := make([]string, len(pending))
	for i, action := range pending {
		texts[i] = renderPendingActionText(action)
	}
	s.postResponse(ctx, msg, strings.Join(texts, "\n\n"))
}

// renderPendingActionText flattens one PendingAction's approve/cancel UI
// into a plain-text confirmation prompt.
func renderPendingActionText(action *classify.PendingAction) string {
	var b strings.Builder
	if action.ActionType == lucy.ActionDestructive {
		b.WriteString("⚠️ This action cannot be undone\n")
	}
	fmt.Fprintf(&b, "%s\n", action.Description)
	fmt.Fprintf(&b, "Reply `approve %s` or `cancel %s` to continue.", action.ActionID, action.ActionID)
	return b.String()
}

// handleResolveAction resolves a pending confirmation-gated action (spec
// §4.I: "execution resumes via a callback resolving the pending action").
// Actual tool resumption after approval is the orchestrator's concern on
// its next turn; this endpoint only records the human decision.
func (s *Server) handleResolveAction(c *gin.Context) {
	actionID := c.Param("action_id")
	var body struct {
		Approved bool `json:"approved"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	action, err := s.gate.Resolve(actionID, body.Approved)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"action_id": actionID, "approved": body.Approved, "tool": action.ToolName})
}
