package chatter

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tool names in the catalog. The LLM is prompted to choose among exactly
// these.
const (
	ToolConsultPlanner    = "consult-planner"
	ToolConsultResearcher = "consult-researcher"
	ToolAssignTask        = "assign-task"
	ToolCheckAgentStatus  = "check-agent-status"
	ToolEscalateToHuman   = "escalate-to-human"
)

// ToolDef describes one tool in the vendor-neutral form the ModelClient
// translates for its provider.
type ToolDef struct {
	Name        string
	Description string
	Properties  map[string]any
	Required    []string
}

// Catalog returns the fixed tool set offered on every LLM invocation.
func Catalog() []ToolDef {
	return []ToolDef{
		{
			Name:        ToolConsultPlanner,
			Description: "Ask the planner agent for strategic breakdown and coordination of work.",
			Properties: map[string]any{
				"question": map[string]any{"type": "string", "description": "What to ask the planner"},
				"context":  map[string]any{"type": "string", "description": "Relevant background"},
				"priority": map[string]any{"type": "string", "enum": []string{"low", "medium", "high"}},
			},
			Required: []string{"question"},
		},
		{
			Name:        ToolConsultResearcher,
			Description: "Ask the researcher agent to analyse the existing code snapshots.",
			Properties: map[string]any{
				"question": map[string]any{"type": "string", "description": "What to investigate"},
				"repos": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string", "enum": []string{"frontend", "backend", "both"}},
				},
				"focus_areas": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
			Required: []string{"question", "repos"},
		},
		{
			Name:        ToolAssignTask,
			Description: "Hand an implementation job to a worker agent. Returns immediately; the worker reports progress on the bus.",
			Properties: map[string]any{
				"agent":              map[string]any{"type": "string", "enum": []string{"frontend", "backend"}},
				"command_file":       map[string]any{"type": "string", "description": "Full markdown command document for the worker"},
				"priority":           map[string]any{"type": "string", "enum": []string{"low", "medium", "high"}},
				"estimated_duration": map[string]any{"type": "string"},
			},
			Required: []string{"agent", "command_file"},
		},
		{
			Name:        ToolCheckAgentStatus,
			Description: "Check whether an agent is alive and what it is doing.",
			Properties: map[string]any{
				"agent": map[string]any{"type": "string"},
			},
			Required: []string{"agent"},
		},
		{
			Name:        ToolEscalateToHuman,
			Description: "Ask the human operator to make a decision you cannot make alone.",
			Properties: map[string]any{
				"question":       map[string]any{"type": "string"},
				"context":        map[string]any{"type": "string"},
				"options":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"recommendation": map[string]any{"type": "string"},
			},
			Required: []string{"question", "context"},
		},
	}
}

// escalationInput mirrors the escalate-to-human tool schema.
type escalationInput struct {
	Question       string   `json:"question"`
	Context        string   `json:"context"`
	Options        []string `json:"options,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
}

// formatEscalation renders an escalation as the structured text the LLM
// includes in its next draft.
func formatEscalation(raw json.RawMessage) (string, error) {
	var in escalationInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return "", fmt.Errorf("parse escalation input: %w", err)
	}
	if in.Question == "" {
		return "", fmt.Errorf("escalation requires a question")
	}

	var b strings.Builder
	b.WriteString("DECISION NEEDED FROM HUMAN\n")
	fmt.Fprintf(&b, "Question: %s\n", in.Question)
	if in.Context != "" {
		fmt.Fprintf(&b, "Context: %s\n", in.Context)
	}
	if len(in.Options) > 0 {
		b.WriteString("Options:\n")
		for i, opt := range in.Options {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, opt)
		}
	}
	if in.Recommendation != "" {
		fmt.Fprintf(&b, "Recommendation: %s\n", in.Recommendation)
	}
	return b.String(), nil
}
