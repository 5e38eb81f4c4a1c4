package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hive/pkg/config"
	"hive/pkg/protocol"
)

func TestDefaults(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HistoryCap != 50 {
		t.Errorf("HistoryCap = %d", cfg.HistoryCap)
	}
	if cfg.TaskTimeout != 30*time.Minute {
		t.Errorf("TaskTimeout = %v", cfg.TaskTimeout)
	}
	if cfg.ToolTimeout != 5*time.Minute {
		t.Errorf("ToolTimeout = %v", cfg.ToolTimeout)
	}
	if cfg.ConversationIdle != time.Hour {
		t.Errorf("ConversationIdle = %v", cfg.ConversationIdle)
	}
	if cfg.CommandFile != ".claude-command.md" {
		t.Errorf("CommandFile = %q", cfg.CommandFile)
	}
	if len(cfg.ForwardChannels) != 2 || cfg.ForwardChannels[0] != "chatter-output" {
		t.Errorf("ForwardChannels = %v", cfg.ForwardChannels)
	}
}

func TestEnvOverridesToml(t *testing.T) {
	dir := t.TempDir()
	tomlPath := filepath.Join(dir, "hive.toml")
	tomlBody := "bus_url = \"toml-host:6379\"\nhistory_cap = 10\ntask_timeout = \"10m0s\"\n"
	if err := os.WriteFile(tomlPath, []byte(tomlBody), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("BUS_URL", "env-host:6379")
	t.Setenv("TASK_TIMEOUT", "45m")

	cfg, err := config.Load(tomlPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BusURL != "env-host:6379" {
		t.Errorf("BusURL = %q, want env value", cfg.BusURL)
	}
	if cfg.HistoryCap != 10 {
		t.Errorf("HistoryCap = %d, want toml value", cfg.HistoryCap)
	}
	if cfg.TaskTimeout != 45*time.Minute {
		t.Errorf("TaskTimeout = %v, want env value", cfg.TaskTimeout)
	}
}

func TestInvalidDurationDiagnostic(t *testing.T) {
	t.Setenv("TOOL_TIMEOUT", "five minutes")
	_, err := config.Load("")
	if err == nil || !strings.Contains(err.Error(), "TOOL_TIMEOUT") {
		t.Errorf("err = %v, want TOOL_TIMEOUT diagnostic", err)
	}
}

func TestRequireListsEveryMissingName(t *testing.T) {
	cfg := &config.Config{BusURL: "localhost:6379"}
	err := cfg.Require("BUS_URL", "ANTHROPIC_API_KEY", "AGENT_NAME")
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "ANTHROPIC_API_KEY") || !strings.Contains(msg, "AGENT_NAME") {
		t.Errorf("missing names not listed: %q", msg)
	}
	if strings.Contains(msg, "BUS_URL") {
		t.Errorf("present option listed as missing: %q", msg)
	}
}

func TestValidateRepoPath(t *testing.T) {
	cfg := &config.Config{RepoPath: t.TempDir()}
	if err := cfg.ValidateRepoPath(); err != nil {
		t.Errorf("ValidateRepoPath: %v", err)
	}

	cfg.RepoPath = filepath.Join(t.TempDir(), "nope")
	if err := cfg.ValidateRepoPath(); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestDefaultManifest(t *testing.T) {
	m := config.DefaultManifest()
	spec, ok := m.Lookup(protocol.AgentResearcher)
	if !ok {
		t.Fatal("researcher missing from default manifest")
	}
	if spec.Channel != "agent:researcher" {
		t.Errorf("channel = %q", spec.Channel)
	}
	if len(m.Channels()) != 5 {
		t.Errorf("channels = %v", m.Channels())
	}
}

func TestLoadManifestFillsChannels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.yaml")
	body := "agents:\n  - name: planner\n  - name: custom\n    channel: agent:custom-channel\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	m, err := config.LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	planner, _ := m.Lookup("planner")
	if planner.Channel != "agent:planner" {
		t.Errorf("planner channel = %q", planner.Channel)
	}
	custom, _ := m.Lookup("custom")
	if custom.Channel != "agent:custom-channel" {
		t.Errorf("custom channel = %q", custom.Channel)
	}
}

func TestLoadManifestMissingFileFallsBack(t *testing.T) {
	m, err := config.LoadManifest(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if len(m.Agents) != 5 {
		t.Errorf("agents = %d, want default manifest", len(m.Agents))
	}
}
