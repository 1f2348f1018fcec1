// Package agent implements the reply loop: the per-turn state machine that
// alternates between asking a Provider for the next assistant message and
// dispatching the tool calls it requests, until the provider stops asking
// for tools.
package agent

import (
	"github.com/agentforge/core/extension"
	"github.com/agentforge/core/permission"
	"github.com/agentforge/core/telemetry"
	"github.com/agentforge/core/tokenbudget"
	"github.com/agentforge/core/tools"
)

// deniedCannedMessage is surfaced as the tool-response text for a call the
// permission engine or the user refused to run. It is deliberately
// instructive: the model must not retry the same call in a later
// iteration.
const deniedCannedMessage = "the user has declined to run this tool; do not retry this exact call"

// chatModeCannedMessage is surfaced for every regular-bucket tool request
// while the loop's mode is chat.
const chatModeCannedMessage = permission.ChatModeExplanation

// Config configures a Loop.
type Config struct {
	SystemPrompt string
	// ContextLimit is the provider's advertised context window in tokens.
	ContextLimit int
	// EstimateFactor scales ContextLimit down to the token budgeter's
	// target; zero selects tokenbudget.DefaultEstimateFactor.
	EstimateFactor float64
	// Model selects the tokenizer used to estimate token costs.
	Model string
	// AutoSummarize enables automatically summarizing history on
	// ContextLengthExceeded instead of surfacing the decision to the
	// caller.
	AutoSummarize bool
	// FrontendTools names tools dispatched to the host application rather
	// than any registered extension.
	FrontendTools []tools.Name
}

// Loop drives single-turn conversations through the
// PREPARE -> COMPLETE -> DISPATCH -> SUMMARIZE -> PREPARE/DONE protocol.
type Loop struct {
	provider    Provider
	extensions  *extension.Manager
	permissions *permission.Engine
	counter     tokenbudget.Counter
	allowlist   *extension.AllowlistChecker
	logger      telemetry.Logger
	tracer      telemetry.Tracer

	systemPrompt   string
	contextLimit   int
	estimateFactor float64
	autoSummarize  bool
	frontendTools  map[tools.Name]struct{}
}

// Option configures a Loop at construction.
type Option func(*Loop)

// WithLogger sets the loop's logger.
func WithLogger(l telemetry.Logger) Option { return func(lo *Loop) { lo.logger = l } }

// WithTracer sets the loop's tracer.
func WithTracer(t telemetry.Tracer) Option { return func(lo *Loop) { lo.tracer = t } }

// WithAllowlist sets the command allow-list consulted when a confirmed
// enable_extension request spawns a new stdio extension.
func WithAllowlist(a *extension.AllowlistChecker) Option {
	return func(lo *Loop) { lo.allowlist = a }
}

// New constructs a Loop. provider, extensions, and permissions are
// required; counter defaults to a tiktoken counter for cfg.Model when nil.
func New(provider Provider, extensions *extension.Manager, permissions *permission.Engine, counter tokenbudget.Counter, cfg Config, opts ...Option) *Loop {
	if counter == nil {
		counter = tokenbudget.NewTiktokenCounter(cfg.Model)
	}
	frontend := make(map[tools.Name]struct{}, len(cfg.FrontendTools))
	for _, n := range cfg.FrontendTools {
		frontend[n] = struct{}{}
	}
	l := &Loop{
		provider:       provider,
		extensions:     extensions,
		permissions:    permissions,
		counter:        counter,
		logger:         telemetry.NewNoopLogger(),
		tracer:         telemetry.NewNoopTracer(),
		systemPrompt:   cfg.SystemPrompt,
		contextLimit:   cfg.ContextLimit,
		estimateFactor: cfg.EstimateFactor,
		autoSummarize:  cfg.AutoSummarize,
		frontendTools:  frontend,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}
