// Package channelruntime drives one pipeline cycle: ingest, dedup,
// authorization, routing, command or content handling, delivery with
// bounded retry, and telemetry/health persistence. Cycles run one at a
// time against a single-writer state directory.
package channelruntime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/njfio/taubot/channelstore"
	"github.com/njfio/taubot/delivery"
	"github.com/njfio/taubot/envelope"
	"github.com/njfio/taubot/ingest"
	"github.com/njfio/taubot/internal/fsstore"
	"github.com/njfio/taubot/internal/redact"
	"github.com/njfio/taubot/internal/statepaths"
	"github.com/njfio/taubot/pairing"
	"github.com/njfio/taubot/routing"
)

const ReasonDeliveryUnavailable = "delivery_provider_unavailable"

type Config struct {
	StateDir string

	// FixturePath selects the fixture source; when empty, the runtime scans
	// per-transport ndjson files under the state dir's ingress directory.
	FixturePath string

	// PolicyPath overrides the default channel_policy.json in the state dir
	// (a .yaml path is accepted).
	PolicyPath string

	QueueLimit                     int
	ProcessedEventCap              int
	MaxAttachmentsPerEvent         int
	TypingPresenceMinResponseChars int
	Retry                          delivery.RetryConfig

	// DecisionActor is recorded when approvals are resolved from chat.
	DecisionActor string

	// KnownSecrets are literal credential strings that must never appear in
	// replies, logs, or reports.
	KnownSecrets []string
}

func (c Config) normalized() Config {
	if c.ProcessedEventCap <= 0 {
		c.ProcessedEventCap = 512
	}
	if c.MaxAttachmentsPerEvent <= 0 {
		c.MaxAttachmentsPerEvent = 4
	}
	if c.TypingPresenceMinResponseChars <= 0 {
		c.TypingPresenceMinResponseChars = 40
	}
	if c.PolicyPath == "" {
		c.PolicyPath = statepaths.ChannelPolicyFile(c.StateDir)
	}
	return c
}

// Responder produces the reply for an admitted content message. The LLM
// orchestration behind it is a collaborator, not part of this runtime.
type Responder interface {
	Respond(ctx context.Context, ev ingest.InboundEvent, sessionKey string) (string, error)
}

// EchoResponder is the offline default; it acknowledges deterministically.
type EchoResponder struct{}

func (EchoResponder) Respond(_ context.Context, ev ingest.InboundEvent, _ string) (string, error) {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return "received your message", nil
	}
	return "received: " + text, nil
}

type Options struct {
	Logger    *slog.Logger
	Source    ingest.Source
	Deliverer delivery.Deliverer
	Evaluator pairing.Evaluator
	Handlers  CommandHandlers
	Responder Responder
	Now       func() time.Time
}

type Runtime struct {
	cfg       Config
	logger    *slog.Logger
	source    ingest.Source
	deliverer delivery.Deliverer
	evaluator pairing.Evaluator
	handlers  CommandHandlers
	responder Responder
	redactor  *redact.Redactor
	now       func() time.Time
}

func New(cfg Config, opts Options) (*Runtime, error) {
	if strings.TrimSpace(cfg.StateDir) == "" {
		return nil, fmt.Errorf("channelruntime: state dir is required")
	}
	cfg = cfg.normalized()

	r := &Runtime{
		cfg:       cfg,
		logger:    opts.Logger,
		source:    opts.Source,
		deliverer: opts.Deliverer,
		evaluator: opts.Evaluator,
		handlers:  opts.Handlers,
		responder: opts.Responder,
		redactor:  redact.New(cfg.KnownSecrets),
		now:       opts.Now,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.source == nil {
		if cfg.FixturePath != "" {
			r.source = ingest.FixtureSource{Path: cfg.FixturePath}
		} else {
			r.source = ingest.DirSource{Dir: statepaths.IngressDir(cfg.StateDir)}
		}
	}
	if r.deliverer == nil {
		r.deliverer = &delivery.DryRunDeliverer{}
	}
	if r.responder == nil {
		r.responder = EchoResponder{}
	}
	if r.handlers.Approvals == nil {
		r.handlers.Approvals = &FileApprovalsHandler{}
	}
	if r.handlers.Doctor == nil {
		r.handlers.Doctor = StateDirDoctorHandler{StateDir: cfg.StateDir}
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r, nil
}

// CycleSummary is the per-invocation outcome; it is folded into the
// persisted state and the events log, never stored verbatim.
type CycleSummary struct {
	Discovered     int
	Queued         int
	Completed      int
	Denied         int
	Failed         int
	DuplicateSkips int
	Overflow       int
	MalformedLines int
	RetryAttempts  int
	HealthState    string
	FailureStreak  int
	ReasonCodes    []string
}

type cycleReport struct {
	ReportID       string   `json:"report_id"`
	At             string   `json:"at"`
	Discovered     int      `json:"discovered"`
	Queued         int      `json:"queued"`
	Completed      int      `json:"completed"`
	Denied         int      `json:"denied"`
	Failed         int      `json:"failed"`
	DuplicateSkips int      `json:"duplicate_skips"`
	Overflow       int      `json:"overflow"`
	HealthState    string   `json:"health_state"`
	FailureStreak  int      `json:"failure_streak"`
	ReasonCodes    []string `json:"reason_codes,omitempty"`
}

type cycleEnv struct {
	policy    pairing.PolicyFile
	secure    pairing.SecureMessaging
	evaluator pairing.Evaluator
	roots     *envelope.TrustRootSet
	replay    *envelope.ReplayTracker
	bindings  []routing.RouteBinding
	table     routing.RouteTable
	traces    *fsstore.JSONLWriter
	state     *RuntimeState
	nowMS     int64
}

type eventStatus string

const (
	statusCompleted eventStatus = "completed"
	statusDenied    eventStatus = "denied"
	statusFailed    eventStatus = "failed"
)

type eventOutcome struct {
	status  eventStatus
	reasons []string
}

// RunCycle executes one full pipeline cycle. Fatal I/O aborts the cycle
// with an error; per-event denials and delivery failures do not.
func (r *Runtime) RunCycle(ctx context.Context) (CycleSummary, error) {
	var summary CycleSummary

	if err := fsstore.EnsureDir(r.cfg.StateDir, 0); err != nil {
		return summary, err
	}
	state, err := LoadState(r.cfg.StateDir)
	if err != nil {
		return summary, err
	}

	policy, err := pairing.LoadPolicyFile(r.cfg.PolicyPath)
	if err != nil {
		return summary, fmt.Errorf("load channel policy: %w", err)
	}
	// The policy file's strictMode disables the permissive short-circuit
	// even on channels with no rules, so the evaluator is rebuilt per
	// cycle unless one was injected.
	evaluator := r.evaluator
	if evaluator == nil {
		evaluator = pairing.FileEvaluator{StateDir: r.cfg.StateDir, ForceStrict: policy.StrictMode}
	}
	roots, err := envelope.LoadTrustRoots(statepaths.TrustRootsFile(r.cfg.StateDir))
	if err != nil {
		return summary, err
	}
	bindingsFile, err := routing.LoadBindings(statepaths.RouteBindingsFile(r.cfg.StateDir))
	if err != nil {
		return summary, err
	}
	table, err := routing.LoadRouteTable(statepaths.RouteTableFile(r.cfg.StateDir))
	if err != nil {
		return summary, err
	}

	replay := envelope.NewReplayTracker()
	replay.Restore(state.ReplaySeen)

	events, stats, err := r.source.Collect(r.logger)
	if err != nil {
		return summary, fmt.Errorf("collect ingress events: %w", err)
	}
	summary.Discovered = len(events)
	summary.MalformedLines = stats.MalformedLines

	queue := ingest.BuildQueue(events, state.IsProcessed, r.cfg.QueueLimit)
	summary.Queued = len(queue.Admitted)
	summary.DuplicateSkips = queue.Duplicate
	summary.Overflow = queue.Overflow

	traces, err := fsstore.NewJSONLWriter(statepaths.RouteTracesLog(r.cfg.StateDir), fsstore.JSONLOptions{FlushEachWrite: true})
	if err != nil {
		return summary, err
	}
	defer traces.Close()

	env := &cycleEnv{
		policy:    policy,
		secure:    policy.Secure(),
		evaluator: evaluator,
		roots:     roots,
		replay:    replay,
		bindings:  bindingsFile.Bindings,
		table:     table,
		traces:    traces,
		state:     state,
		nowMS:     r.now().UnixMilli(),
	}

	seenReasons := map[string]bool{}
	addReasons := func(codes []string) {
		for _, code := range codes {
			if code == "" || seenReasons[code] {
				continue
			}
			seenReasons[code] = true
			summary.ReasonCodes = append(summary.ReasonCodes, code)
		}
	}

	for _, ev := range queue.Admitted {
		outcome, attempts, err := r.processEvent(ctx, ev, env)
		if err != nil {
			return summary, err
		}
		summary.RetryAttempts += attempts
		addReasons(outcome.reasons)
		switch outcome.status {
		case statusCompleted:
			summary.Completed++
			state.MarkProcessed(ev.DedupKey(), r.cfg.ProcessedEventCap)
		case statusDenied:
			summary.Denied++
			state.MarkProcessed(ev.DedupKey(), r.cfg.ProcessedEventCap)
		case statusFailed:
			summary.Failed++
		}
	}

	state.Health.LastCycleDiscovered = summary.Discovered
	state.Health.LastCycleCompleted = summary.Completed
	state.Health.LastCycleFailed = summary.Failed
	if summary.Failed > 0 {
		state.Health.FailureStreak++
	} else {
		state.Health.FailureStreak = 0
	}
	summary.FailureStreak = state.Health.FailureStreak
	summary.HealthState = ClassifyHealth(state.Health.FailureStreak)

	state.ReplaySeen = replay.Snapshot()
	if err := SaveState(r.cfg.StateDir, state); err != nil {
		return summary, err
	}
	if err := r.appendCycleReport(summary); err != nil {
		return summary, err
	}

	r.logger.Info("cycle_completed",
		"discovered", summary.Discovered,
		"queued", summary.Queued,
		"completed", summary.Completed,
		"denied", summary.Denied,
		"failed", summary.Failed,
		"duplicate_skips", summary.DuplicateSkips,
		"overflow", summary.Overflow,
		"health_state", summary.HealthState,
		"failure_streak", summary.FailureStreak,
	)
	return summary, nil
}

func (r *Runtime) processEvent(ctx context.Context, ev ingest.InboundEvent, env *cycleEnv) (eventOutcome, int, error) {
	store, err := channelstore.Open(statepaths.ChannelStoreRoot(r.cfg.StateDir), string(ev.Transport), ev.ConversationID)
	if err != nil {
		return eventOutcome{}, 0, err
	}
	if err := store.AppendLogEntry(channelstore.DirectionInbound, map[string]any{
		"event_id": ev.EventID,
		"actor_id": ev.ActorID,
		"kind":     ev.EventKind,
	}); err != nil {
		return eventOutcome{}, 0, err
	}

	decision, legacyFallback := r.authorize(ev, env)
	if legacyFallback {
		r.logger.Info("secure_envelope_fallback",
			"channel", ev.ChannelKey(),
			"event_id", ev.EventID,
			"legacy_fallback", true,
		)
	}
	if !decision.Allowed {
		reasons := []string{decision.ReasonCode}
		if IsCommand(ev.Text) {
			reasons = append(reasons, ReasonCommandRBACDenied)
		}
		if err := store.AppendLogEntry(channelstore.DirectionOutbound, map[string]any{
			"decision":     "deny",
			"reason_codes": reasons,
			"event_id":     ev.EventID,
		}); err != nil {
			return eventOutcome{}, 0, err
		}
		r.logger.Info("event_denied",
			"channel", ev.ChannelKey(),
			"event_id", ev.EventID,
			"reason_code", decision.ReasonCode,
		)
		return eventOutcome{status: statusDenied, reasons: reasons}, 0, nil
	}

	var reasons []string
	reasons = append(reasons, decision.ReasonCode)

	var reply string
	sessionKey := strings.TrimSpace(ev.ConversationID)
	if IsCommand(ev.Text) {
		res := DispatchCommand(ctx, r.handlers, r.cfg.StateDir, ev.Text, r.cfg.DecisionActor)
		reply = res.Reply
		reasons = append(reasons, res.ReasonCode)
	} else {
		for _, m := range UnderstandAttachments(ev.Attachments, r.cfg.MaxAttachmentsPerEvent) {
			reasons = append(reasons, m.ReasonCode)
			if m.Summary == "" {
				continue
			}
			if err := store.AppendContextEntry("system", m.Summary); err != nil {
				return eventOutcome{}, 0, err
			}
		}

		category := "text"
		if len(ev.Attachments) > 0 {
			category = "media"
		}
		resolution := routing.Resolve(env.bindings, env.table, routing.Query{
			Transport:      string(ev.Transport),
			AccountID:      ev.MetadataString("account_id"),
			ConversationID: ev.ConversationID,
			ActorID:        ev.ActorID,
			Phase:          routing.PhasePlanner,
			Category:       category,
		})
		sessionKey = resolution.SessionKey
		if err := env.traces.AppendJSON(routing.Trace{
			BindingID:    resolution.BindingID,
			SelectedRole: resolution.Role,
			SessionKey:   resolution.SessionKey,
		}); err != nil {
			return eventOutcome{}, 0, err
		}

		if err := store.AppendContextEntry("user", ev.Text); err != nil {
			return eventOutcome{}, 0, err
		}
		reply, err = r.responder.Respond(ctx, ev, sessionKey)
		if err != nil {
			r.logger.Warn("responder_failed", "event_id", ev.EventID, "error", r.redactor.Redact(err.Error()))
			return eventOutcome{status: statusFailed, reasons: append(reasons, "responder_failed")}, 0, nil
		}
		if err := store.AppendContextEntry("assistant", reply); err != nil {
			return eventOutcome{}, 0, err
		}
	}

	if micros, ok := UsageCostMicros(ev.Metadata); ok {
		env.state.Telemetry.UsageEvents++
		env.state.Telemetry.UsageCostMicros += micros
	}
	if ShouldEmitTyping(ev, len([]rune(reply)), r.cfg.TypingPresenceMinResponseChars) {
		env.state.Telemetry.recordTypingLifecycle(ev.Transport)
		for _, name := range TypingLifecycle {
			r.logger.Debug(name, "transport", string(ev.Transport), "conversation_id", ev.ConversationID)
		}
	}

	reply = r.redactor.Redact(reply)
	receipts, attempts, err := delivery.Send(ctx, r.deliverer, delivery.OutboundMessage{
		Transport:      ev.Transport,
		ConversationID: ev.ConversationID,
		ThreadID:       ev.ThreadID,
		Text:           reply,
		RetrySeed:      ev.DedupKey(),
	}, r.cfg.Retry)
	retries := attempts - 1
	if retries < 0 {
		retries = 0
	}
	if err != nil {
		reasons = append(reasons, ReasonDeliveryUnavailable)
		if err := store.AppendLogEntry(channelstore.DirectionOutbound, map[string]any{
			"status":      "failed",
			"reason_code": ReasonDeliveryUnavailable,
			"event_id":    ev.EventID,
			"session_key": sessionKey,
		}); err != nil {
			return eventOutcome{}, retries, err
		}
		r.logger.Warn("delivery_failed",
			"event_id", ev.EventID,
			"attempts", attempts,
			"error", r.redactor.Redact(err.Error()),
		)
		return eventOutcome{status: statusFailed, reasons: reasons}, retries, nil
	}

	if err := store.AppendLogEntry(channelstore.DirectionOutbound, map[string]any{
		"status":      "sent",
		"event_id":    ev.EventID,
		"session_key": sessionKey,
		"chunks":      len(receipts),
	}); err != nil {
		return eventOutcome{}, retries, err
	}
	r.logger.Info("event_completed",
		"channel", ev.ChannelKey(),
		"event_id", ev.EventID,
		"session_key", sessionKey,
		"chunks", len(receipts),
	)
	return eventOutcome{status: statusCompleted, reasons: reasons}, retries, nil
}

// authorize runs the secure envelope stage then, where applicable, the
// channel policy and pairing layers. A verified envelope supersedes the
// pairing layers entirely; in preferred mode a missing envelope falls back
// to legacy evaluation.
func (r *Runtime) authorize(ev ingest.InboundEvent, env *cycleEnv) (pairing.Decision, bool) {
	legacyFallback := false
	if env.secure.Mode != pairing.SecureDisabled {
		se, err := envelope.FromMetadata(ev.Metadata)
		if err != nil {
			return pairing.Deny(envelope.ReasonDenyInvalidSignature), false
		}
		if se != nil {
			if se.Channel != ev.ChannelKey() || se.ActorID != ev.ActorID || se.EventID != ev.EventID {
				return pairing.Deny(envelope.ReasonDenyInvalidSignature), false
			}
			ok, reason := envelope.Verify(envelope.VerifyInput{
				Envelope:             *se,
				Text:                 ev.Text,
				Channel:              ev.ChannelKey(),
				NowMS:                env.nowMS,
				TimestampSkewSeconds: env.secure.TimestampSkewSeconds,
				Roots:                env.roots,
				Replay:               env.replay,
				ReplayWindowSeconds:  env.secure.ReplayWindowSeconds,
			})
			if ok {
				return pairing.Allow(reason), false
			}
			return pairing.Deny(reason), false
		}
		if env.secure.Mode == pairing.SecureRequired {
			return pairing.Deny(envelope.ReasonDenyMissing), false
		}
		legacyFallback = true
	}

	dec, err := pairing.EvaluatePolicy(env.policy, env.evaluator, pairing.EventContext{
		Channel:     ev.ChannelKey(),
		ActorID:     ev.ActorID,
		IsGroup:     ev.IsGroup(),
		MentionsBot: ev.MentionsBot(),
		NowMS:       env.nowMS,
	})
	if err != nil {
		r.logger.Warn("pairing_rules_unreadable",
			"channel", ev.ChannelKey(),
			"error", r.redactor.Redact(err.Error()),
		)
	}
	return dec, legacyFallback
}

func (r *Runtime) appendCycleReport(summary CycleSummary) error {
	w, err := fsstore.NewJSONLWriter(statepaths.EventsLog(r.cfg.StateDir), fsstore.JSONLOptions{FlushEachWrite: true})
	if err != nil {
		return err
	}
	report := cycleReport{
		ReportID:       uuid.NewString(),
		At:             r.now().UTC().Format(time.RFC3339),
		Discovered:     summary.Discovered,
		Queued:         summary.Queued,
		Completed:      summary.Completed,
		Denied:         summary.Denied,
		Failed:         summary.Failed,
		DuplicateSkips: summary.DuplicateSkips,
		Overflow:       summary.Overflow,
		HealthState:    summary.HealthState,
		FailureStreak:  summary.FailureStreak,
		ReasonCodes:    summary.ReasonCodes,
	}
	if err := w.AppendJSON(report); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
