// Package corpus loads manual sections and their example questions.
// Both inputs are JSON objects whose key order is significant: it fixes
// section iteration order for chunking and classifier tie-breaking.
package corpus

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"smartual/internal/domain"
)

//go:embed data/manual_data.json
var defaultManual []byte

//go:embed data/section_examples.json
var defaultExamples []byte

// Corpus is the immutable input of one engine build.
type Corpus struct {
	Sections []domain.Section
	Examples []domain.ExampleSet
}

// Default returns the built-in student manual.
func Default() (*Corpus, error) {
	return parse(defaultManual, defaultExamples, "embedded manual", "embedded examples")
}

// Load reads the manual and example files. An empty path selects the
// embedded default for that input.
func Load(manualPath, examplesPath string) (*Corpus, error) {
	manual, manualName, err := readOr(manualPath, defaultManual, "embedded manual")
	if err != nil {
		return nil, err
	}
	examples, examplesName, err := readOr(examplesPath, defaultExamples, "embedded examples")
	if err != nil {
		return nil, err
	}
	return parse(manual, examples, manualName, examplesName)
}

func readOr(path string, fallback []byte, name string) ([]byte, string, error) {
	if path == "" {
		return fallback, name, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("corpus: read %s: %w", path, err)
	}
	return data, path, nil
}

func parse(manual, examples []byte, manualName, examplesName string) (*Corpus, error) {
	sections, err := ParseSections(manual)
	if err != nil {
		return nil, fmt.Errorf("corpus: %s: %w", manualName, err)
	}
	sets, err := ParseExamples(examples)
	if err != nil {
		return nil, fmt.Errorf("corpus: %s: %w", examplesName, err)
	}
	c := &Corpus{Sections: sections, Examples: sets}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate reports ErrEmptyCorpus when no section has text and
// ErrNoExamples when there is nothing to classify against.
func (c *Corpus) Validate() error {
	hasText := false
	for _, s := range c.Sections {
		if strings.TrimSpace(s.Text) != "" {
			hasText = true
			break
		}
	}
	if !hasText {
		return domain.ErrEmptyCorpus
	}
	for _, e := range c.Examples {
		if len(e.Questions) > 0 {
			return nil
		}
	}
	return domain.ErrNoExamples
}

// Texts returns every string an encoder should be prepared on: section
// texts followed by example questions.
func (c *Corpus) Texts() []string {
	var out []string
	for _, s := range c.Sections {
		out = append(out, s.Text)
	}
	for _, e := range c.Examples {
		out = append(out, e.Questions...)
	}
	return out
}

// SectionNames lists section names in corpus order.
func (c *Corpus) SectionNames() []string {
	names := make([]string, len(c.Sections))
	for i, s := range c.Sections {
		names[i] = s.Name
	}
	return names
}

// ParseSections decodes a JSON object of section name to text, keeping key order.
func ParseSections(data []byte) ([]domain.Section, error) {
	var out []domain.Section
	err := walkObject(data, func(key string, value *yaml.Node) error {
		var text string
		if err := value.Decode(&text); err != nil {
			return fmt.Errorf("section %q: %w", key, err)
		}
		out = append(out, domain.Section{Name: key, Text: text})
		return nil
	})
	return out, err
}

// ParseExamples decodes a JSON object of section name to example questions,
// keeping key order.
func ParseExamples(data []byte) ([]domain.ExampleSet, error) {
	var out []domain.ExampleSet
	err := walkObject(data, func(key string, value *yaml.Node) error {
		var qs []string
		if err := value.Decode(&qs); err != nil {
			return fmt.Errorf("examples for %q: %w", key, err)
		}
		out = append(out, domain.ExampleSet{Section: key, Questions: qs})
		return nil
	})
	return out, err
}

// walkObject visits the top-level keys of a JSON (or YAML) mapping in
// document order. Duplicate keys are rejected.
func walkObject(data []byte, visit func(key string, value *yaml.Node) error) error {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return fmt.Errorf("empty document")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected an object", root.Line)
	}
	seen := make(map[string]struct{}, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		if _, dup := seen[key]; dup {
			return fmt.Errorf("line %d: duplicate key %q", root.Content[i].Line, key)
		}
		seen[key] = struct{}{}
		if err := visit(key, root.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}
