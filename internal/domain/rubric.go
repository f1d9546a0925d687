package domain

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CriterionSpec describes one scored dimension of the rubric.
type CriterionSpec struct {
	Key         Criterion `yaml:"key"`
	Title       string    `yaml:"title"`
	Description string    `yaml:"description"`
}

// NarrativeSpec describes one free-text section requested from the model.
type NarrativeSpec struct {
	Key         string `yaml:"key"`
	Instruction string `yaml:"instruction"`
}

// Scale is the inclusive integer range for every criterion score.
type Scale struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// Rubric is the versioned evaluation contract shared by the prompt builder and
// the response validator. Records store the version they were scored with.
type Rubric struct {
	Version   string          `yaml:"version"`
	Context   string          `yaml:"context"`
	Scale     Scale           `yaml:"scale"`
	Precision int             `yaml:"precision"`
	Criteria  []CriterionSpec `yaml:"criteria"`
	Narrative []NarrativeSpec `yaml:"narrative"`
}

// DefaultRubric returns the built-in hackathon rubric.
func DefaultRubric() *Rubric {
	return &Rubric{
		Version: "hackathon-2025.1",
		Context: "You are an impartial technical evaluator for a time-boxed hackathon. " +
			"Judge only the technical merits of the code, taking the limited development time into account. " +
			"Do not favour or penalise particular languages, frameworks, authors or organisations.",
		Scale:     Scale{Min: 1, Max: 10},
		Precision: 1,
		Criteria: []CriterionSpec{
			{Key: CriterionCodeQuality, Title: "Code quality & readability", Description: "Structure, naming, modularity, consistency and clarity of the code."},
			{Key: CriterionCompleteness, Title: "Functionality & completeness", Description: "How much of the intended functionality (or the problem statement) is actually implemented and wired together."},
			{Key: CriterionEfficiency, Title: "Efficiency & performance", Description: "Sensible algorithms, data structures and resource usage for the problem size."},
			{Key: CriterionErrorHandling, Title: "Error handling & robustness", Description: "Input validation, failure handling and behaviour on edge cases."},
			{Key: CriterionVersionControl, Title: "Version control practices", Description: "Commit history quality, repository hygiene, ignore files, documentation of setup."},
			{Key: CriterionTechnologyUse, Title: "Technology utilisation", Description: "Appropriate and effective use of languages, libraries, frameworks and platforms."},
		},
		Narrative: []NarrativeSpec{
			{Key: "summary_assessment", Instruction: "Two or three sentences summarising the verdict."},
			{Key: "technical_overview", Instruction: "What the project is and how it is built."},
			{Key: "description_of_judgement", Instruction: "How the scores were reached."},
			{Key: "conclusion", Instruction: "Final conclusion."},
			{Key: "whats_missing", Instruction: "Important gaps in the implementation."},
			{Key: "what_to_include", Instruction: "Features or practices that should be added."},
			{Key: "how_to_make_it_better", Instruction: "Concrete, prioritised improvements."},
			{Key: "why_a_winning_product", Instruction: "Strongest arguments for this entry winning."},
			{Key: "why_a_losing_product", Instruction: "Strongest arguments against this entry winning."},
		},
	}
}

// LoadRubric reads a YAML rubric file and validates it.
func LoadRubric(path string) (*Rubric, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rubric %s: %w", path, err)
	}
	return ParseRubric(data)
}

// ParseRubric decodes YAML and validates the result.
// Missing precision falls back to one decimal place.
func ParseRubric(data []byte) (*Rubric, error) {
	r := &Rubric{Precision: -1}
	if err := yaml.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parse rubric: %w", err)
	}
	if r.Precision < 0 {
		r.Precision = 1
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks the rubric is usable.
func (r *Rubric) Validate() error {
	if r.Version == "" {
		return fmt.Errorf("rubric: version is required")
	}
	if len(r.Criteria) == 0 {
		return fmt.Errorf("rubric %s: at least one criterion is required", r.Version)
	}
	if r.Scale.Min < 0 || r.Scale.Max <= r.Scale.Min {
		return fmt.Errorf("rubric %s: invalid scale %d-%d", r.Version, r.Scale.Min, r.Scale.Max)
	}
	if r.Precision < 0 || r.Precision > 3 {
		return fmt.Errorf("rubric %s: precision must be between 0 and 3", r.Version)
	}

	seen := make(map[Criterion]bool, len(r.Criteria))
	for _, c := range r.Criteria {
		if c.Key == "" {
			return fmt.Errorf("rubric %s: criterion with empty key", r.Version)
		}
		if seen[c.Key] {
			return fmt.Errorf("rubric %s: duplicate criterion %q", r.Version, c.Key)
		}
		seen[c.Key] = true
	}

	var probe Narrative
	seenNarrative := make(map[string]bool, len(r.Narrative))
	for _, n := range r.Narrative {
		if probe.Field(n.Key) == nil {
			return fmt.Errorf("rubric %s: unknown narrative section %q", r.Version, n.Key)
		}
		if seenNarrative[n.Key] {
			return fmt.Errorf("rubric %s: duplicate narrative section %q", r.Version, n.Key)
		}
		seenNarrative[n.Key] = true
	}
	return nil
}

// CriterionKeys returns the criterion keys in rubric order.
func (r *Rubric) CriterionKeys() []Criterion {
	keys := make([]Criterion, 0, len(r.Criteria))
	for _, c := range r.Criteria {
		keys = append(keys, c.Key)
	}
	return keys
}

// InRange reports whether score lies on the rubric scale.
func (r *Rubric) InRange(score int) bool {
	return score >= r.Scale.Min && score <= r.Scale.Max
}
