package chatter_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"hive/pkg/chatter"
)

// waitFor polls condition every tick until it returns true or timeout expires.
func waitFor(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("waitFor: condition not met within %v", timeout)
}

// scriptedModel implements chatter.ModelClient by returning canned replies
// in order and recording every request it saw.
type scriptedModel struct {
	mu       sync.Mutex
	script   []scriptStep
	requests []chatter.TurnRequest
}

type scriptStep struct {
	reply *chatter.ModelReply
	err   error
}

func newScriptedModel() *scriptedModel {
	return &scriptedModel{}
}

func (m *scriptedModel) reply(blocks ...chatter.Block) *scriptedModel {
	stop := chatter.StopEndTurn
	for _, b := range blocks {
		if b.Type == chatter.BlockToolUse {
			stop = chatter.StopToolUse
		}
	}
	m.script = append(m.script, scriptStep{reply: &chatter.ModelReply{Blocks: blocks, StopReason: stop}})
	return m
}

func (m *scriptedModel) fail(err error) *scriptedModel {
	m.script = append(m.script, scriptStep{err: err})
	return m
}

func (m *scriptedModel) CreateTurn(_ context.Context, req chatter.TurnRequest) (*chatter.ModelReply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.script) == 0 {
		return &chatter.ModelReply{Blocks: []chatter.Block{chatter.TextBlock("(script exhausted)")}, StopReason: chatter.StopEndTurn}, nil
	}
	step := m.script[0]
	m.script = m.script[1:]
	return step.reply, step.err
}

func (m *scriptedModel) requestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *scriptedModel) request(i int) chatter.TurnRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[i]
}

func toolUse(id, name, input string) chatter.Block {
	return chatter.Block{Type: chatter.BlockToolUse, ToolID: id, ToolName: name, ToolInput: []byte(input)}
}
