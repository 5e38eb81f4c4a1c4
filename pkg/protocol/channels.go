package protocol

// Bus channel names. Per-channel delivery order is preserved by the bus;
// order across channels is not.
const (
	// ChannelHumanInput carries stamped browser messages from the gateway to
	// the chatter agent.
	ChannelHumanInput = "human-input"

	// ChannelChatterOutput carries user-visible replies from the chatter
	// agent back to the gateway.
	ChannelChatterOutput = "chatter-output"

	// ChannelStatus carries periodic worker heartbeats.
	ChannelStatus = "agent:status"

	// ChannelProgress carries streamed subprocess output.
	ChannelProgress = "agent:progress"

	// ChannelBroadcast carries system messages addressed to every agent,
	// such as a shutdown command.
	ChannelBroadcast = "broadcast"

	// ChannelSystem carries system notices forwarded to browser clients.
	ChannelSystem = "system"
)

// Well-known agent names.
const (
	AgentChatter    = "chatter"
	AgentPlanner    = "planner"
	AgentResearcher = "researcher"
	AgentFrontend   = "frontend"
	AgentBackend    = "backend"
	AgentArchivist  = "archivist"
)

// AgentChannel returns the channel a named agent listens on. Responses to an
// agent's requests are published on the requester's own agent channel,
// correlated by in_response_to.
func AgentChannel(name string) string {
	return "agent:" + name
}

// ConsultableAgents lists the sibling agents that take question envelopes.
// The chatter's tool catalog consults the planner and the researcher; no
// tool consults the archivist.
var ConsultableAgents = []string{AgentPlanner, AgentResearcher, AgentArchivist}

// WorkerAgents lists the agent identities that run a worker supervisor and
// accept task envelopes.
var WorkerAgents = []string{AgentFrontend, AgentBackend}
