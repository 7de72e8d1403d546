package config

import (
	"errors"
	"fmt"
	"os"

	"companion-be/pkg/coordinator"
	"companion-be/pkg/dialogue"

	"gopkg.in/yaml.v3"
)

const defaultSystemPrompt = `You are a friendly robot companion standing in a public space.
You recognise returning visitors and talk with them briefly and warmly.
Never invent facts about a visitor that they have not told you.`

// Persona is the file-editable personality of the companion.
type Persona struct {
	Name         string              `yaml:"name"`
	SystemPrompt string              `yaml:"system_prompt"`
	Prompts      coordinator.Prompts `yaml:"prompts"`
}

func DefaultPersona() Persona {
	return Persona{
		Name:         "Nova",
		SystemPrompt: defaultSystemPrompt,
		Prompts:      coordinator.DefaultPrompts(),
	}
}

// LoadPersona reads a YAML persona file. A missing file yields the defaults;
// fields left out of the file keep their defaults too.
func LoadPersona(path string) (Persona, error) {
	p := DefaultPersona()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("read persona %s: %w", path, err)
	}

	var file Persona
	if err := yaml.Unmarshal(data, &file); err != nil {
		return p, fmt.Errorf("parse persona %s: %w", path, err)
	}
	if file.Name != "" {
		p.Name = file.Name
	}
	if file.SystemPrompt != "" {
		p.SystemPrompt = file.SystemPrompt
	}
	p.Prompts = file.Prompts.WithDefaults()
	return p, nil
}

func (p Persona) Dialogue() dialogue.Persona {
	return dialogue.Persona{Name: p.Name, SystemPrompt: p.SystemPrompt}
}
