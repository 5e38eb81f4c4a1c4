package chatter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"hive/pkg/bus"
	"hive/pkg/config"
	"hive/pkg/pending"
	"hive/pkg/protocol"
	"hive/pkg/statusreg"
	"hive/pkg/store"
)

// maxTurnIterations bounds the tool loop per human message. The LLM's own
// stopping behavior ends turns long before this; the cap guards against a
// model stuck re-calling tools.
const maxTurnIterations = 12

// sweepInterval is how often idle conversations and orphaned pending
// requests are cleared.
const sweepInterval = time.Minute

// Options tunes the orchestrator.
type Options struct {
	ToolTimeout      time.Duration
	TaskTimeout      time.Duration
	HistoryCap       int
	ConversationIdle time.Duration
}

// Chatter is the conversational orchestrator agent.
type Chatter struct {
	opts     Options
	manifest *config.Manifest
	bus      bus.Bus
	table    *pending.Table
	conv     *Conversations
	model    ModelClient
	reg      *statusreg.Registry
	store    *store.Store
	log      *store.Logger

	stop chan struct{}
}

// New wires the orchestrator. store may be nil.
func New(opts Options, manifest *config.Manifest, b bus.Bus, model ModelClient, st *store.Store, log *store.Logger) *Chatter {
	if opts.ToolTimeout <= 0 {
		opts.ToolTimeout = config.DefaultToolTimeout
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = config.DefaultTaskTimeout
	}
	if opts.HistoryCap <= 0 {
		opts.HistoryCap = config.DefaultHistoryCap
	}
	if opts.ConversationIdle <= 0 {
		opts.ConversationIdle = config.DefaultConversationIdle
	}
	return &Chatter{
		opts:     opts,
		manifest: manifest,
		bus:      b,
		table:    pending.New(log.Slog()),
		conv:     NewConversations(opts.HistoryCap, opts.ConversationIdle),
		model:    model,
		reg:      statusreg.New(0),
		store:    st,
		log:      log,
		stop:     make(chan struct{}),
	}
}

// Conversations exposes the history map (for tests and the sweeper).
func (c *Chatter) Conversations() *Conversations { return c.conv }

// Table exposes the correlation table (for tests).
func (c *Chatter) Table() *pending.Table { return c.table }

// Registry exposes the status registry (for tests).
func (c *Chatter) Registry() *statusreg.Registry { return c.reg }

// Subscribe joins every channel the orchestrator listens on: human input,
// its own agent channel plus each sibling channel for responses, the status
// channel, and broadcast.
func (c *Chatter) Subscribe(ctx context.Context) error {
	if err := c.bus.Subscribe(protocol.ChannelHumanInput, func(env protocol.Envelope) {
		go c.HandleInput(ctx, env)
	}); err != nil {
		return fmt.Errorf("subscribe human-input: %w", err)
	}

	responseChannels := append([]string{protocol.AgentChannel(protocol.AgentChatter)}, c.manifest.Channels()...)
	for _, channel := range responseChannels {
		if err := c.bus.Subscribe(channel, c.handleAgentEnvelope); err != nil {
			return fmt.Errorf("subscribe %s: %w", channel, err)
		}
	}

	if err := c.bus.Subscribe(protocol.ChannelStatus, c.reg.Handler()); err != nil {
		return fmt.Errorf("subscribe status: %w", err)
	}

	if err := c.bus.Subscribe(protocol.ChannelBroadcast, func(env protocol.Envelope) {
		var cmd protocol.Command
		if err := env.DecodePayload(&cmd); err == nil && cmd.Command == protocol.CommandShutdown {
			c.log.Info("shutdown broadcast received", "from", env.From)
			c.Stop()
		}
	}); err != nil {
		return fmt.Errorf("subscribe broadcast: %w", err)
	}
	return nil
}

// Run subscribes and blocks until the context ends or a shutdown broadcast
// arrives, sweeping idle state periodically.
func (c *Chatter) Run(ctx context.Context) error {
	if err := c.Subscribe(ctx); err != nil {
		return err
	}
	c.log.Info("chatter ready", "history_cap", c.opts.HistoryCap, "tool_timeout", c.opts.ToolTimeout)

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.stop:
			return nil
		case <-ticker.C:
			c.table.Sweep()
			if n := c.conv.Sweep(); n > 0 {
				c.log.Info("idle conversations evicted", "count", n)
			}
		}
	}
}

// Stop ends Run. Safe to call more than once.
func (c *Chatter) Stop() {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
}

// handleAgentEnvelope delivers response envelopes into the correlation
// table. Anything else on an agent channel is a request for that agent, not
// for us.
func (c *Chatter) handleAgentEnvelope(env protocol.Envelope) {
	if env.Type != protocol.TypeResponse || env.InResponseTo == "" {
		return
	}
	c.table.Deliver(env.InResponseTo, env.Payload)
}

// HandleInput runs one full turn for an inbound human-input envelope. It
// always answers: on any failure the user gets an apology with the error
// summary, and the conversation history survives for the next turn.
func (c *Chatter) HandleInput(ctx context.Context, env protocol.Envelope) {
	var input protocol.HumanInput
	if err := env.DecodePayload(&input); err != nil {
		c.log.Error("malformed human input discarded", "id", env.ID, "err", err)
		return
	}
	if input.UserID == "" || input.Content == "" {
		c.log.Error("human input missing user_id or content", "id", env.ID)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.log.Error("turn panicked", "user_id", input.UserID, "panic", r)
			c.publishReply(ctx, env, input.UserID, fmt.Sprintf("I encountered an error: %v", r), true)
		}
	}()

	c.log.Info("turn started", "user_id", input.UserID)
	c.conv.Append(input.UserID, Turn{Role: RoleUser, Blocks: []Block{TextBlock(input.Content)}})

	if err := c.runTurnLoop(ctx, env, input.UserID); err != nil {
		c.log.Error("turn failed", "user_id", input.UserID, "err", err)
		c.publishReply(ctx, env, input.UserID, fmt.Sprintf("I encountered an error: %v", err), true)
	}
}

// runTurnLoop iterates LLM calls until the model stops requesting tools.
func (c *Chatter) runTurnLoop(ctx context.Context, inbound protocol.Envelope, userID string) error {
	for i := 0; i < maxTurnIterations; i++ {
		reply, err := c.model.CreateTurn(ctx, TurnRequest{
			System: systemPrompt,
			Turns:  c.conv.History(userID),
			Tools:  Catalog(),
		})
		if err != nil {
			return fmt.Errorf("model call: %w", err)
		}

		calls := reply.ToolCalls()
		if len(calls) == 0 {
			text := reply.Text()
			c.conv.Append(userID, Turn{Role: RoleAssistant, Blocks: []Block{TextBlock(text)}})
			c.publishReply(ctx, inbound, userID, text, false)
			return nil
		}

		// The assistant turn (with its tool_use blocks) goes into history
		// before the results, matching the vendor protocol.
		c.conv.Append(userID, Turn{Role: RoleAssistant, Blocks: reply.Blocks})

		results := make([]Block, 0, len(calls))
		for _, call := range calls {
			content, err := c.executeTool(ctx, call.ToolName, call.ToolInput)
			if err != nil {
				c.log.Warn("tool call failed", "tool", call.ToolName, "err", err)
				results = append(results, ToolResultBlock(call.ToolID, err.Error(), true))
				continue
			}
			results = append(results, ToolResultBlock(call.ToolID, content, false))
		}
		c.conv.Append(userID, Turn{Role: RoleUser, Blocks: results})
	}
	return fmt.Errorf("tool loop exceeded %d iterations", maxTurnIterations)
}

// publishReply sends the user-visible reply on chatter-output and records
// it in the activity log.
func (c *Chatter) publishReply(ctx context.Context, inbound protocol.Envelope, userID, content string, isErr bool) {
	env, err := protocol.NewResponse(protocol.AgentChatter, userID, inbound.ID, protocol.ChatterOutput{
		UserID:    userID,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Error:     isErr,
	})
	if err != nil {
		c.log.Error("build reply envelope", "err", err)
		return
	}
	if err := c.bus.Publish(ctx, protocol.ChannelChatterOutput, env); err != nil {
		c.log.Error("publish reply", "user_id", userID, "err", err)
		return
	}
	c.store.RecordActivity(env)
}

// executeTool dispatches one tool call either locally or as a correlated
// bus request.
func (c *Chatter) executeTool(ctx context.Context, name string, input json.RawMessage) (string, error) {
	switch name {
	case ToolConsultPlanner:
		return c.consult(ctx, protocol.AgentPlanner, input)
	case ToolConsultResearcher:
		return c.consult(ctx, protocol.AgentResearcher, input)
	case ToolAssignTask:
		return c.assignTask(ctx, input)
	case ToolCheckAgentStatus:
		var in struct {
			Agent string `json:"agent"`
		}
		if err := json.Unmarshal(input, &in); err != nil || in.Agent == "" {
			return "", fmt.Errorf("check-agent-status requires an agent name")
		}
		return c.reg.Describe(in.Agent), nil
	case ToolEscalateToHuman:
		return formatEscalation(input)
	default:
		return "", fmt.Errorf("unknown tool %q", name)
	}
}

// consult publishes a question to a sibling agent and awaits its correlated
// response, bounded by the per-tool timeout.
func (c *Chatter) consult(ctx context.Context, target string, input json.RawMessage) (string, error) {
	var q protocol.Question
	if err := json.Unmarshal(input, &q); err != nil {
		return "", fmt.Errorf("parse %s question: %w", target, err)
	}
	if q.Question == "" {
		return "", fmt.Errorf("consult-%s requires a question", target)
	}

	env, err := protocol.New(protocol.AgentChatter, target, protocol.TypeQuestion, q)
	if err != nil {
		return "", err
	}

	// Track before publishing, or a fast response races the slot.
	resultCh := c.table.Track(env.ID, target, c.opts.ToolTimeout)
	if err := c.bus.Publish(ctx, protocol.AgentChannel(target), env); err != nil {
		c.table.Reject(env.ID, err)
		<-resultCh
		return "", fmt.Errorf("publish to %s: %w", target, err)
	}
	c.store.RecordActivity(env)
	c.log.Info("consulting agent", "target", target, "request_id", env.ID)

	select {
	case res := <-resultCh:
		if res.Err != nil {
			return "", res.Err
		}
		return string(res.Payload), nil
	case <-ctx.Done():
		c.table.Reject(env.ID, ctx.Err())
		return "", fmt.Errorf("consult %s: %w", target, ctx.Err())
	}
}

// assignTask publishes a task envelope to a worker and acknowledges
// immediately; the orchestrator does not wait for completion.
func (c *Chatter) assignTask(ctx context.Context, input json.RawMessage) (string, error) {
	var in struct {
		Agent             string `json:"agent"`
		CommandFile       string `json:"command_file"`
		Priority          string `json:"priority"`
		EstimatedDuration string `json:"estimated_duration"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("parse assign-task input: %w", err)
	}
	if in.CommandFile == "" {
		return "", fmt.Errorf("assign-task requires a command_file")
	}
	spec, ok := c.manifest.Lookup(in.Agent)
	if !ok || !spec.Worker {
		return "", fmt.Errorf("%q is not a known worker agent", in.Agent)
	}

	task := protocol.Task{
		TaskID:            uuid.NewString(),
		CommandFile:       in.CommandFile,
		Priority:          in.Priority,
		EstimatedDuration: in.EstimatedDuration,
		TimeoutMs:         c.opts.TaskTimeout.Milliseconds(),
	}
	env, err := protocol.New(protocol.AgentChatter, in.Agent, protocol.TypeTask, task)
	if err != nil {
		return "", err
	}
	if err := c.bus.Publish(ctx, spec.Channel, env); err != nil {
		return "", fmt.Errorf("publish task to %s: %w", in.Agent, err)
	}
	c.store.RecordActivity(env)
	c.log.Info("task assigned", "agent", in.Agent, "task_id", task.TaskID)

	return fmt.Sprintf("Task %s assigned to %s. Progress will stream on %s.",
		task.TaskID, in.Agent, protocol.ChannelProgress), nil
}
