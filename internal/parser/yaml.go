package parser

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/harrison/foreman/internal/models"
)

// YAMLParser parses plan files in YAML format.
//
//	title: Widget rollout
//	repository: repos/widgets
//	phases:
//	  - title: Foundations
//	    mode: sequential
//	    pause_after: true
//	    tasks:
//	      - key: schema
//	        title: Add widget schema
//	        description: |
//	          Create the widgets table and indexes.
//	        depends_on: []
//	        parallel: false
type YAMLParser struct{}

// NewYAMLParser creates a YAML plan parser.
func NewYAMLParser() *YAMLParser {
	return &YAMLParser{}
}

type yamlPlan struct {
	Title      string      `yaml:"title"`
	Repository string      `yaml:"repository"`
	Phases     []yamlPhase `yaml:"phases"`
}

type yamlPhase struct {
	Title      string     `yaml:"title"`
	Mode       string     `yaml:"mode"`
	PauseAfter bool       `yaml:"pause_after"`
	Tasks      []yamlTask `yaml:"tasks"`
}

type yamlTask struct {
	Key         string   `yaml:"key"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	DependsOn   []string `yaml:"depends_on"`
	Parallel    bool     `yaml:"parallel"`
}

// Parse reads one YAML plan document.
func (p *YAMLParser) Parse(r io.Reader) (*PlanDocument, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	var raw yamlPlan
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	doc := &PlanDocument{
		Title:      strings.TrimSpace(raw.Title),
		Repository: strings.TrimSpace(raw.Repository),
	}
	for _, ph := range raw.Phases {
		mode := models.ExecutionMode(strings.ToLower(strings.TrimSpace(ph.Mode)))
		if mode == "" {
			mode = models.ModeSequential
		}
		phase := PhaseDocument{
			Title:      strings.TrimSpace(ph.Title),
			Mode:       mode,
			PauseAfter: ph.PauseAfter,
		}
		for _, t := range ph.Tasks {
			phase.Tasks = append(phase.Tasks, TaskDocument{
				Key:         strings.TrimSpace(t.Key),
				Title:       strings.TrimSpace(t.Title),
				Description: strings.TrimSpace(t.Description),
				DependsOn:   trimAll(t.DependsOn),
				Parallel:    t.Parallel,
			})
		}
		doc.Phases = append(doc.Phases, phase)
	}
	return doc, nil
}

func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
