package chatter_test

import (
	"fmt"
	"testing"
	"time"

	"hive/pkg/chatter"
)

func TestHistoryCapDropsOldest(t *testing.T) {
	conv := chatter.NewConversations(5, time.Hour)

	for i := range 8 {
		conv.Append("u1", chatter.Turn{Role: chatter.RoleUser, Blocks: []chatter.Block{chatter.TextBlock(fmt.Sprintf("msg-%d", i))}})
	}

	turns := conv.History("u1")
	if len(turns) != 5 {
		t.Fatalf("len = %d, want cap 5", len(turns))
	}
	// Oldest three were dropped.
	if turns[0].Blocks[0].Text != "msg-3" {
		t.Errorf("first turn = %q, want msg-3", turns[0].Blocks[0].Text)
	}
	if turns[4].Blocks[0].Text != "msg-7" {
		t.Errorf("last turn = %q, want msg-7", turns[4].Blocks[0].Text)
	}
}

func TestHistoryIsACopy(t *testing.T) {
	conv := chatter.NewConversations(10, time.Hour)
	conv.Append("u1", chatter.Turn{Role: chatter.RoleUser, Blocks: []chatter.Block{chatter.TextBlock("original")}})

	turns := conv.History("u1")
	turns[0] = chatter.Turn{Role: chatter.RoleUser, Blocks: []chatter.Block{chatter.TextBlock("mutated")}}

	if conv.History("u1")[0].Blocks[0].Text != "original" {
		t.Error("History exposed internal storage")
	}
}

func TestSweepEvictsIdleConversations(t *testing.T) {
	conv := chatter.NewConversations(10, time.Hour)
	conv.Append("idle-user", chatter.Turn{Role: chatter.RoleUser, Blocks: []chatter.Block{chatter.TextBlock("hi")}})

	base := time.Now()
	conv.SetNowFunc(func() time.Time { return base.Add(30 * time.Minute) })
	conv.Append("active-user", chatter.Turn{Role: chatter.RoleUser, Blocks: []chatter.Block{chatter.TextBlock("hi")}})

	conv.SetNowFunc(func() time.Time { return base.Add(70 * time.Minute) })
	if n := conv.Sweep(); n != 1 {
		t.Errorf("Sweep = %d, want 1", n)
	}
	if conv.Len("idle-user") != 0 {
		t.Error("idle conversation survived the sweep")
	}
	if conv.Len("active-user") != 1 {
		t.Error("active conversation was evicted")
	}
}

func TestConversationsAreIndependent(t *testing.T) {
	conv := chatter.NewConversations(10, time.Hour)
	conv.Append("a", chatter.Turn{Role: chatter.RoleUser, Blocks: []chatter.Block{chatter.TextBlock("for a")}})
	conv.Append("b", chatter.Turn{Role: chatter.RoleUser, Blocks: []chatter.Block{chatter.TextBlock("for b")}})

	if conv.Users() != 2 {
		t.Errorf("Users = %d", conv.Users())
	}
	if conv.History("a")[0].Blocks[0].Text != "for a" {
		t.Error("histories crossed")
	}
}
