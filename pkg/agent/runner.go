package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shreyanshjain05/sparkthon/internal/observability"
	"github.com/shreyanshjain05/sparkthon/pkg/conversation"
	"github.com/shreyanshjain05/sparkthon/pkg/laneq"
	"github.com/shreyanshjain05/sparkthon/pkg/toolexec"
)

// SessionCreatingTool is the tool that establishes the cart session. Within
// a round it is dispatched before any other tool so later cart mutations can
// rely on the session id being known.
const SessionCreatingTool = "create_cart_session"

// RoundLimitError reports a turn aborted because the inference/tool cycle
// exceeded the configured round limit. Kept distinct from infrastructure
// failures so runaway tool-call chains are visible to operators.
type RoundLimitError struct {
	Rounds int
}

func (e *RoundLimitError) Error() string {
	return fmt.Sprintf("turn exceeded the maximum of %d tool rounds", e.Rounds)
}

// TurnResult is the outcome of one completed turn.
type TurnResult struct {
	Reply     string      `json:"reply"`
	Rounds    int         `json:"rounds"`
	ToolCalls int         `json:"tool_calls"`
	Usage     *TokenUsage `json:"usage,omitempty"`
	Aborted   bool        `json:"aborted,omitempty"`
}

// Runner is the turn controller: it converts one user message into exactly
// one assistant reply, interleaving inference with tool dispatch until the
// model answers without requesting tools.
type Runner struct {
	registry *toolexec.Registry
	queue    *laneq.Queue
	provider Provider
	logger   zerolog.Logger

	model        string
	temperature  float64
	maxTokens    int
	maxRounds    int
	maxRetries   int
	timeout      time.Duration
	systemPrompt string

	activeTurns map[string]context.CancelFunc
	turnsMu     sync.Mutex
}

// Config holds runner configuration
type Config struct {
	Registry         *toolexec.Registry
	Queue            *laneq.Queue
	Provider         Provider
	Logger           zerolog.Logger
	Model            string
	Temperature      float64
	MaxTokens        int
	MaxRounds        int
	MaxRetries       int
	InferenceTimeout time.Duration
	SystemPrompt     string
}

// NewRunner creates a turn controller.
func NewRunner(cfg Config) (*Runner, error) {
	observability.EnsureRegistered()

	if cfg.Registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("lane queue is required")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model cannot be empty")
	}
	if cfg.Temperature < 0 || cfg.Temperature > 1 {
		return nil, fmt.Errorf("temperature must be between 0 and 1")
	}

	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 10
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InferenceTimeout <= 0 {
		cfg.InferenceTimeout = 30 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}

	return &Runner{
		registry:     cfg.Registry,
		queue:        cfg.Queue,
		provider:     cfg.Provider,
		logger:       cfg.Logger,
		model:        cfg.Model,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		maxRounds:    cfg.MaxRounds,
		maxRetries:   cfg.MaxRetries,
		timeout:      cfg.InferenceTimeout,
		systemPrompt: cfg.SystemPrompt,
		activeTurns:  make(map[string]context.CancelFunc),
	}, nil
}

// RunTurn processes one user message to completion. Turns for the same
// conversation are serialized through its lane; different conversations run
// in parallel.
func (r *Runner) RunTurn(ctx context.Context, state *conversation.State, userMessage string) (TurnResult, error) {
	value, err := r.queue.Enqueue(ctx, state.Key(), func(taskCtx context.Context) (interface{}, error) {
		return r.executeTurn(taskCtx, state, userMessage)
	})
	if err != nil {
		return TurnResult{}, err
	}
	return value.(TurnResult), nil
}

// Abort cancels the in-flight turn for a conversation, if any.
func (r *Runner) Abort(key string) {
	r.turnsMu.Lock()
	cancel, exists := r.activeTurns[key]
	delete(r.activeTurns, key)
	r.turnsMu.Unlock()

	if exists {
		r.logger.Info().Str("key", key).Msg("Aborting in-flight turn")
		cancel()
	}
}

func (r *Runner) executeTurn(ctx context.Context, state *conversation.State, userMessage string) (TurnResult, error) {
	startTime := time.Now()
	turnID := uuid.NewString()
	logger := r.logger.With().Str("key", state.Key()).Str("turn_id", turnID).Logger()

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.turnsMu.Lock()
	r.activeTurns[state.Key()] = cancel
	r.turnsMu.Unlock()
	defer func() {
		r.turnsMu.Lock()
		delete(r.activeTurns, state.Key())
		r.turnsMu.Unlock()
	}()

	if state.Len() == 0 {
		state.Append(conversation.SystemMessage(r.systemPrompt))
	}

	// The user message stays in history even if the turn fails.
	state.Append(conversation.UserMessage(userMessage))
	state.IncrementTurn()

	tools := r.buildToolSpecs()
	totalToolCalls := 0
	var usage *TokenUsage

	for round := 1; round <= r.maxRounds; round++ {
		select {
		case <-turnCtx.Done():
			return TurnResult{Aborted: true}, nil
		default:
		}

		response, err := r.inferWithRetry(turnCtx, state.Messages(), tools, r.contextAnnotation(state.Context()))
		if err != nil {
			if turnCtx.Err() != nil {
				logger.Info().Msg("Turn cancelled")
				return TurnResult{Aborted: true}, nil
			}
			observability.RecordTurn("error", time.Since(startTime), round)
			logger.Error().Err(err).Int("round", round).Msg("Inference failed")
			return TurnResult{}, fmt.Errorf("inference failed: %w", err)
		}
		usage = response.Usage

		// No tool calls means the model answered; the turn is over. There
		// is deliberately no loop back into inference from here.
		if len(response.ToolCalls) == 0 {
			state.Append(conversation.AssistantMessage(response.Content, nil))
			observability.RecordTurn("success", time.Since(startTime), round)
			logger.Debug().Int("rounds", round).Int("tool_calls", totalToolCalls).Msg("Turn completed")
			return TurnResult{
				Reply:     response.Content,
				Rounds:    round,
				ToolCalls: totalToolCalls,
				Usage:     usage,
			}, nil
		}

		state.Append(conversation.AssistantMessage(response.Content, response.ToolCalls))

		results := r.dispatchTools(turnCtx, state, response.ToolCalls)
		for i, call := range response.ToolCalls {
			state.Append(conversation.ToolMessage(call.ID, call.Name, results[i].Payload()))
		}
		totalToolCalls += len(response.ToolCalls)
	}

	observability.RecordTurn("round_limit", time.Since(startTime), r.maxRounds)
	observability.RecordRoundLimitExceeded()
	logger.Error().Int("max_rounds", r.maxRounds).Msg("Turn exceeded round limit")
	return TurnResult{}, &RoundLimitError{Rounds: r.maxRounds}
}

// dispatchTools executes one round's tool calls. The session-creating tool
// runs first, sequentially, so its session id is recorded before any other
// tool runs; the rest run concurrently. Results come back in call order.
func (r *Runner) dispatchTools(ctx context.Context, state *conversation.State, calls []conversation.ToolCall) []toolexec.Result {
	results := make([]toolexec.Result, len(calls))

	var concurrent []int
	for i, call := range calls {
		if call.Name == SessionCreatingTool {
			results[i] = r.executeTool(ctx, state, call)
		} else {
			concurrent = append(concurrent, i)
		}
	}

	if len(concurrent) == 1 {
		i := concurrent[0]
		results[i] = r.executeTool(ctx, state, calls[i])
		return results
	}

	var wg sync.WaitGroup
	for _, i := range concurrent {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = r.executeTool(ctx, state, calls[i])
		}()
	}
	wg.Wait()

	return results
}

func (r *Runner) executeTool(ctx context.Context, state *conversation.State, call conversation.ToolCall) toolexec.Result {
	result := r.registry.Execute(ctx, call.Name, call.Arguments)

	if result.Success && call.Name == SessionCreatingTool {
		if output, ok := result.Output.(map[string]interface{}); ok {
			if sessionID, ok := output["session_id"].(string); ok && sessionID != "" {
				state.SetCartSession(sessionID)
			}
		}
	}

	return result
}

// contextAnnotation is injected into every inference call so the model
// always sees the current user and session ids. It is never persisted to
// the conversation history.
func (r *Runner) contextAnnotation(ctx conversation.Context) string {
	annotation := fmt.Sprintf("Current context: user_id=%s", ctx.UserID)
	if ctx.CartSessionID != "" {
		annotation += fmt.Sprintf(", session_id=%s", ctx.CartSessionID)
	}
	return annotation
}

func (r *Runner) buildToolSpecs() []ToolSpec {
	defs := r.registry.List()
	specs := make([]ToolSpec, 0, len(defs))
	for _, def := range defs {
		specs = append(specs, ToolSpec{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: toolexec.SchemaMap(def),
		})
	}
	return specs
}

// inferWithRetry calls the provider with a per-call timeout and exponential
// backoff on retryable errors.
func (r *Runner) inferWithRetry(ctx context.Context, messages []conversation.Message, tools []ToolSpec, annotation string) (*Response, error) {
	attempts := r.maxRetries + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		callStart := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		response, err := r.provider.Infer(callCtx, Request{
			Model:        r.model,
			Messages:     messages,
			Tools:        tools,
			Temperature:  r.temperature,
			MaxTokens:    r.maxTokens,
			SystemPrompt: r.systemPrompt + "\n\n" + annotation,
		})
		cancel()

		observability.RecordInference(r.provider.Name(), time.Since(callStart), err == nil)
		if err == nil {
			return response, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !IsRetryableError(err) {
			return nil, err
		}
		if attempt == attempts-1 {
			break
		}

		observability.RecordInferenceRetry()
		delay := time.Duration(1<<attempt) * time.Second
		r.logger.Info().Int("attempt", attempt+1).Dur("delay", delay).Err(err).Msg("Retrying inference")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("inference retries exhausted: %w", lastErr)
}
