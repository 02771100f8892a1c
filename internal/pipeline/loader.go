package pipeline

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/capitalize-ai/essay-pipeline/internal/llm"
)

//go:embed essays.yaml
var builtinDefinitions []byte

type definitionsFile struct {
	Pipelines []pipelineSpec `yaml:"pipelines"`
}

type pipelineSpec struct {
	Name        string     `yaml:"name"`
	Initiator   string     `yaml:"initiator"`
	Terminal    string     `yaml:"terminal"`
	MaxRounds   int        `yaml:"max_rounds"`
	Sentinel    *string    `yaml:"sentinel"`
	Cyclic      bool       `yaml:"cyclic"`
	AllowRepeat bool       `yaml:"allow_repeat"`
	Roles       []roleSpec `yaml:"roles"`
}

type roleSpec struct {
	ID           string `yaml:"id"`
	Provider     string `yaml:"provider"`
	Instructions string `yaml:"instructions"`
}

// ParseDefinitionsYAML decodes and compiles pipeline definitions. Roles that
// name no provider use defaultProvider.
func ParseDefinitionsYAML(data []byte, defaultProvider llm.Provider) ([]*Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("pipeline: definitions payload is empty")
	}
	var file definitionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("pipeline: decode definitions: %w", err)
	}
	if len(file.Pipelines) == 0 {
		return nil, fmt.Errorf("pipeline: no pipelines defined")
	}

	defs := make([]*Definition, 0, len(file.Pipelines))
	for _, spec := range file.Pipelines {
		def, err := spec.compile(defaultProvider)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (s pipelineSpec) compile(defaultProvider llm.Provider) (*Definition, error) {
	sentinel := DefaultSentinel
	if s.Sentinel != nil {
		sentinel = *s.Sentinel
	}

	roles := make([]Role, 0, len(s.Roles))
	for _, rs := range s.Roles {
		provider := defaultProvider
		if rs.Provider != "" {
			p, err := llm.ParseProvider(rs.Provider)
			if err != nil {
				return nil, fmt.Errorf("pipeline: %s: role %s: %w", s.Name, rs.ID, err)
			}
			provider = p
		}
		roles = append(roles, Role{
			ID:           rs.ID,
			Instructions: rs.Instructions,
			Provider:     provider,
		})
	}

	return Compile(Definition{
		Name:        s.Name,
		Initiator:   s.Initiator,
		Roles:       roles,
		Terminal:    s.Terminal,
		MaxRounds:   s.MaxRounds,
		Sentinel:    sentinel,
		Cyclic:      s.Cyclic,
		AllowRepeat: s.AllowRepeat,
	})
}

// LoadDefinitionsFile loads definitions from an explicit file path.
func LoadDefinitionsFile(path string, defaultProvider llm.Provider) ([]*Definition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: read %s: %w", path, err)
	}
	defs, err := ParseDefinitionsYAML(content, defaultProvider)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %s: %w", path, err)
	}
	return defs, nil
}

// Builtin returns the essay writing and revision pipelines shipped with the service.
func Builtin(defaultProvider llm.Provider) ([]*Definition, error) {
	return ParseDefinitionsYAML(builtinDefinitions, defaultProvider)
}
