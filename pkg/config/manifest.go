package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"hive/pkg/protocol"
)

// AgentSpec describes one agent in the manifest.
type AgentSpec struct {
	Name        string `yaml:"name"`
	Channel     string `yaml:"channel,omitempty"`
	Description string `yaml:"description,omitempty"`
	Worker      bool   `yaml:"worker,omitempty"`
}

// Manifest lists the agents known to this deployment. The chatter agent
// subscribes to every manifest channel and looks up worker agents in it
// when assigning tasks.
type Manifest struct {
	Agents []AgentSpec `yaml:"agents"`
}

// DefaultManifest covers the standard five-agent deployment.
func DefaultManifest() *Manifest {
	specs := []AgentSpec{
		{Name: protocol.AgentPlanner, Description: "strategic breakdown and coordination"},
		{Name: protocol.AgentResearcher, Description: "analysis over existing code snapshots"},
		{Name: protocol.AgentArchivist, Description: "records and searches events"},
		{Name: protocol.AgentFrontend, Description: "frontend implementation worker", Worker: true},
		{Name: protocol.AgentBackend, Description: "backend implementation worker", Worker: true},
	}
	for i := range specs {
		specs[i].Channel = protocol.AgentChannel(specs[i].Name)
	}
	return &Manifest{Agents: specs}
}

// LoadManifest reads an agents.yaml file, or returns the default manifest
// when path is empty or the file does not exist.
func LoadManifest(path string) (*Manifest, error) {
	if path == "" {
		return DefaultManifest(), nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultManifest(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read agents manifest %s: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse agents manifest %s: %w", path, err)
	}
	for i := range m.Agents {
		if m.Agents[i].Name == "" {
			return nil, fmt.Errorf("agents manifest %s: agent %d has no name", path, i)
		}
		if m.Agents[i].Channel == "" {
			m.Agents[i].Channel = protocol.AgentChannel(m.Agents[i].Name)
		}
	}
	return &m, nil
}

// Channels returns every agent channel in the manifest.
func (m *Manifest) Channels() []string {
	out := make([]string, 0, len(m.Agents))
	for _, a := range m.Agents {
		out = append(out, a.Channel)
	}
	return out
}

// Lookup returns the spec for a named agent.
func (m *Manifest) Lookup(name string) (AgentSpec, bool) {
	for _, a := range m.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return AgentSpec{}, false
}
