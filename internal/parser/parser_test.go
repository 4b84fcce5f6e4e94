package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/foreman/internal/models"
)

const yamlPlanDoc = `
title: Widget rollout
repository: repos/widgets
phases:
  - title: Foundations
    mode: sequential
    pause_after: true
    tasks:
      - key: schema
        title: Add widget schema
        description: Create the widgets table and indexes.
  - title: Features
    mode: parallel
    tasks:
      - key: api
        title: Add widget API
        description: Expose CRUD endpoints.
        depends_on: [schema]
        parallel: true
      - key: ui
        title: Add widget UI
        description: Render the widget list.
        depends_on: [schema]
        parallel: true
`

func TestYAMLParserParsesFullPlan(t *testing.T) {
	doc, err := NewYAMLParser().Parse(strings.NewReader(yamlPlanDoc))
	require.NoError(t, err)
	require.NoError(t, doc.Validate())

	assert.Equal(t, "Widget rollout", doc.Title)
	assert.Equal(t, "repos/widgets", doc.Repository)
	require.Len(t, doc.Phases, 2)

	first := doc.Phases[0]
	assert.Equal(t, models.ModeSequential, first.Mode)
	assert.True(t, first.PauseAfter)
	require.Len(t, first.Tasks, 1)
	assert.Equal(t, "schema", first.Tasks[0].Key)

	second := doc.Phases[1]
	assert.Equal(t, models.ModeParallel, second.Mode)
	require.Len(t, second.Tasks, 2)
	assert.Equal(t, []string{"schema"}, second.Tasks[0].DependsOn)
	assert.True(t, second.Tasks[0].Parallel)
}

func TestYAMLParserDefaultsModeToSequential(t *testing.T) {
	doc, err := NewYAMLParser().Parse(strings.NewReader(`
title: T
repository: r
phases:
  - title: P
    tasks:
      - key: a
        title: A
        description: D
`))
	require.NoError(t, err)
	assert.Equal(t, models.ModeSequential, doc.Phases[0].Mode)
}

const markdownPlanDoc = "# Widget rollout\n" +
	"\n" +
	"Repository: repos/widgets\n" +
	"\n" +
	"## Phase 1: Foundations\n" +
	"\n" +
	"- mode: sequential\n" +
	"- pause after: yes\n" +
	"\n" +
	"### Task schema: Add widget schema\n" +
	"\n" +
	"Create the widgets table and indexes.\n" +
	"\n" +
	"```\nCREATE TABLE widgets (id TEXT);\n```\n" +
	"\n" +
	"## Phase 2: Features\n" +
	"\n" +
	"- mode: parallel\n" +
	"\n" +
	"### Task api: Add widget API\n" +
	"\n" +
	"Expose CRUD endpoints.\n" +
	"\n" +
	"- depends on: schema\n" +
	"- parallel: yes\n" +
	"\n" +
	"### Task ui: Add widget UI\n" +
	"\n" +
	"Render the widget list.\n" +
	"\n" +
	"- depends on: schema\n" +
	"- parallel: yes\n"

func TestMarkdownParserParsesFullPlan(t *testing.T) {
	doc, err := NewMarkdownParser().Parse(strings.NewReader(markdownPlanDoc))
	require.NoError(t, err)
	require.NoError(t, doc.Validate())

	assert.Equal(t, "Widget rollout", doc.Title)
	assert.Equal(t, "repos/widgets", doc.Repository)
	require.Len(t, doc.Phases, 2)

	first := doc.Phases[0]
	assert.Equal(t, "Foundations", first.Title)
	assert.Equal(t, models.ModeSequential, first.Mode)
	assert.True(t, first.PauseAfter)
	require.Len(t, first.Tasks, 1)
	assert.Equal(t, "schema", first.Tasks[0].Key)
	assert.Contains(t, first.Tasks[0].Description, "widgets table")
	assert.Contains(t, first.Tasks[0].Description, "CREATE TABLE widgets")

	second := doc.Phases[1]
	assert.Equal(t, models.ModeParallel, second.Mode)
	require.Len(t, second.Tasks, 2)
	assert.Equal(t, []string{"schema"}, second.Tasks[0].DependsOn)
	assert.True(t, second.Tasks[1].Parallel)
	// Metadata bullets must not leak into the description.
	assert.NotContains(t, second.Tasks[0].Description, "depends on")
}

func TestMarkdownParserRejectsMalformedHeadings(t *testing.T) {
	_, err := NewMarkdownParser().Parse(strings.NewReader("# T\n\n## Setup things\n"))
	assert.Error(t, err)

	_, err = NewMarkdownParser().Parse(strings.NewReader("# T\n\n## Phase 1: Setup\n\n### Do stuff\n"))
	assert.Error(t, err)
}

func TestMarkdownParserRejectsTaskBeforePhase(t *testing.T) {
	_, err := NewMarkdownParser().Parse(strings.NewReader("# T\n\n### Task a: Orphan\n"))
	assert.Error(t, err)
}

func TestValidateRejections(t *testing.T) {
	base := func() *PlanDocument {
		return &PlanDocument{
			Title:      "T",
			Repository: "r",
			Phases: []PhaseDocument{{
				Title: "P",
				Mode:  models.ModeSequential,
				Tasks: []TaskDocument{
					{Key: "a", Title: "A", Description: "d"},
					{Key: "b", Title: "B", Description: "d", DependsOn: []string{"a"}},
				},
			}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*PlanDocument)
		wantErr string
	}{
		{"valid", func(d *PlanDocument) {}, ""},
		{"missing title", func(d *PlanDocument) { d.Title = "" }, "title"},
		{"missing repository", func(d *PlanDocument) { d.Repository = "" }, "repository"},
		{"no phases", func(d *PlanDocument) { d.Phases = nil }, "no phases"},
		{"bad mode", func(d *PlanDocument) { d.Phases[0].Mode = "turbo" }, "execution mode"},
		{"missing key", func(d *PlanDocument) { d.Phases[0].Tasks[0].Key = "" }, "without a key"},
		{"missing description", func(d *PlanDocument) { d.Phases[0].Tasks[0].Description = "" }, "no description"},
		{"duplicate key", func(d *PlanDocument) { d.Phases[0].Tasks[1].Key = "a" }, "duplicate"},
		{"unknown dep", func(d *PlanDocument) { d.Phases[0].Tasks[1].DependsOn = []string{"zz"} }, "unknown task"},
		{"cycle", func(d *PlanDocument) { d.Phases[0].Tasks[0].DependsOn = []string{"b"} }, "cyclic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := base()
			tt.mutate(doc)
			err := doc.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestMaterializeAssignsIDsAndRewritesDeps(t *testing.T) {
	doc, err := NewYAMLParser().Parse(strings.NewReader(yamlPlanDoc))
	require.NoError(t, err)
	require.NoError(t, doc.Validate())

	plan, phases, tasks := doc.Materialize()

	assert.Equal(t, models.PlanStatusReady, plan.Status)
	assert.Equal(t, "repos/widgets", plan.RepositoryID)
	assert.Equal(t, 2, plan.TotalPhases)
	assert.Equal(t, 3, plan.TotalTasks)

	require.Len(t, phases, 2)
	assert.Equal(t, 1, phases[0].Order)
	assert.Equal(t, 2, phases[1].Order)
	assert.Equal(t, plan.ID, phases[0].PlanID)
	assert.True(t, phases[0].PauseAfter)

	require.Len(t, tasks, 3)
	byTitle := make(map[string]models.PlanTask)
	for _, task := range tasks {
		assert.NotEmpty(t, task.ID)
		assert.Equal(t, plan.ID, task.PlanID)
		assert.Equal(t, models.TaskStatusPending, task.Status)
		byTitle[task.Title] = task
	}

	schema := byTitle["Add widget schema"]
	api := byTitle["Add widget API"]
	require.Len(t, api.DependsOn, 1)
	assert.Equal(t, schema.ID, api.DependsOn[0], "depends_on keys are rewritten to task ids")
	assert.Equal(t, phases[1].ID, api.PhaseID)
}

func TestForFileDetection(t *testing.T) {
	tests := []struct {
		path     string
		wantYAML bool
		wantErr  bool
	}{
		{"plan.yaml", true, false},
		{"plan.yml", true, false},
		{"PLAN.MD", false, false},
		{"plan.markdown", false, false},
		{"plan.txt", false, true},
		{"plan", false, true},
	}

	for _, tt := range tests {
		p, err := ForFile(tt.path)
		if tt.wantErr {
			assert.Error(t, err, tt.path)
			continue
		}
		require.NoError(t, err, tt.path)
		_, isYAML := p.(*YAMLParser)
		assert.Equal(t, tt.wantYAML, isYAML, tt.path)
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlPlanDoc), 0644))

	doc, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Widget rollout", doc.Title)

	_, err = ParseFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("title: only a title\n"), 0644))
	_, err = ParseFile(bad)
	assert.Error(t, err)
}
