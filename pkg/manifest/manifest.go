// Package manifest loads arbor.yaml, the optional application manifest
// carrying presentation metadata: app title and description plus
// per-command hints and parameter help. The manifest never defines
// behavior; handlers are registered in code and the manifest only
// decorates them.
package manifest

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/arbor/pkg/domain"
)

// DefaultFile is the manifest filename looked up by the CLI.
const DefaultFile = "arbor.yaml"

// CommandSpec decorates one registered command.
type CommandSpec struct {
	Summary string         `yaml:"summary,omitempty"`
	Hints   domain.Hints   `yaml:"hints,omitempty"`
	Params  []domain.Param `yaml:"params,omitempty"`
}

// Manifest is the parsed arbor.yaml document.
type Manifest struct {
	Title       string                 `yaml:"title,omitempty"`
	Description string                 `yaml:"description,omitempty"`
	Commands    map[string]CommandSpec `yaml:"commands,omitempty"`
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes a manifest document. Unknown fields are rejected so typos
// in hint names fail loudly instead of silently doing nothing.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Command returns the spec for name, if the manifest declares one.
func (m *Manifest) Command(name string) (CommandSpec, bool) {
	if m == nil || m.Commands == nil {
		return CommandSpec{}, false
	}
	spec, ok := m.Commands[name]
	return spec, ok
}

// Apply overlays the manifest's decoration onto cmd: summary and hints
// from the manifest win when set, and parameter help text is merged onto
// matching declared parameters. Code stays the source of truth for
// parameter names and types.
func (m *Manifest) Apply(cmd domain.Command) domain.Command {
	spec, ok := m.Command(cmd.Name)
	if !ok {
		return cmd
	}
	if spec.Summary != "" {
		cmd.Summary = spec.Summary
	}
	cmd.Hints = mergeHints(cmd.Hints, spec.Hints)

	if len(spec.Params) > 0 && len(cmd.Params) > 0 {
		merged := make([]domain.Param, len(cmd.Params))
		copy(merged, cmd.Params)
		for _, mp := range spec.Params {
			for i, p := range merged {
				if p.Name != mp.Name {
					continue
				}
				if mp.Help != "" {
					merged[i].Help = mp.Help
				}
				if mp.Default != nil {
					merged[i].Default = mp.Default
				}
			}
		}
		cmd.Params = merged
	}
	return cmd
}

func mergeHints(base, over domain.Hints) domain.Hints {
	if over.Hidden {
		base.Hidden = true
	}
	if over.Long {
		base.Long = true
	}
	if over.Auto {
		base.Auto = true
	}
	if over.Header {
		base.Header = true
	}
	if over.Button != "" {
		base.Button = over.Button
	}
	return base
}
