// Package schema holds the whitelist of tables and rules that grounds SQL
// generation. Nothing outside the descriptor is shown to the model.
package schema

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultDocument []byte

type Column struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description,omitempty"`
}

type Table struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description,omitempty"`
	Columns     []Column `yaml:"columns" json:"columns"`
}

// Descriptor is the ordered table whitelist plus free-form business rules.
// It is built once at startup and read-only afterwards.
type Descriptor struct {
	Tables []Table `yaml:"tables" json:"tables"`
	Rules  string  `yaml:"rules" json:"rules,omitempty"`
}

// Provider supplies the descriptor used to ground generation.
type Provider interface {
	Describe() Descriptor
}

// Static is a Provider returning a fixed descriptor.
type Static struct {
	descriptor Descriptor
}

func NewStatic(descriptor Descriptor) *Static {
	return &Static{descriptor: descriptor}
}

func (s *Static) Describe() Descriptor {
	return s.descriptor
}

// Default returns the embedded inventory whitelist.
func Default() Descriptor {
	descriptor, err := Parse(defaultDocument)
	if err != nil {
		panic(fmt.Sprintf("embedded schema whitelist is invalid: %v", err))
	}
	return descriptor
}

// LoadFile reads a whitelist document from disk.
func LoadFile(path string) (Descriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("read schema file %s: %w", path, err)
	}
	descriptor, err := Parse(raw)
	if err != nil {
		return Descriptor{}, fmt.Errorf("parse schema file %s: %w", path, err)
	}
	return descriptor, nil
}

// Load returns the descriptor at path, or the embedded default when path is
// empty.
func Load(path string) (Descriptor, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

func Parse(raw []byte) (Descriptor, error) {
	var descriptor Descriptor
	if err := yaml.Unmarshal(raw, &descriptor); err != nil {
		return Descriptor{}, err
	}
	if err := descriptor.validate(); err != nil {
		return Descriptor{}, err
	}
	return descriptor, nil
}

func (d Descriptor) validate() error {
	if len(d.Tables) == 0 {
		return fmt.Errorf("at least one table is required")
	}
	seen := make(map[string]struct{}, len(d.Tables))
	for i, table := range d.Tables {
		name := strings.TrimSpace(table.Name)
		if name == "" {
			return fmt.Errorf("table %d has no name", i)
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			return fmt.Errorf("duplicate table %q", name)
		}
		seen[key] = struct{}{}
		for j, column := range table.Columns {
			if strings.TrimSpace(column.Name) == "" {
				return fmt.Errorf("table %q column %d has no name", name, j)
			}
		}
	}
	return nil
}

func (d Descriptor) TableNames() []string {
	names := make([]string, 0, len(d.Tables))
	for _, table := range d.Tables {
		names = append(names, table.Name)
	}
	return names
}

// Allows reports whether table is part of the whitelist. Matching ignores
// case.
func (d Descriptor) Allows(table string) bool {
	table = strings.TrimSpace(table)
	for _, candidate := range d.Tables {
		if strings.EqualFold(candidate.Name, table) {
			return true
		}
	}
	return false
}

// Text renders the descriptor the way prompts embed it.
func (d Descriptor) Text() string {
	var b strings.Builder
	for _, table := range d.Tables {
		b.WriteString("- ")
		b.WriteString(table.Name)
		if table.Description != "" {
			b.WriteString(": ")
			b.WriteString(table.Description)
		}
		b.WriteString("\n")
		for _, column := range table.Columns {
			b.WriteString("    - ")
			b.WriteString(column.Name)
			if column.Description != "" {
				b.WriteString(": ")
				b.WriteString(column.Description)
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
