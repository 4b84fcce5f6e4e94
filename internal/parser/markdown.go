package parser

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/harrison/foreman/internal/models"
)

// MarkdownParser parses plan files in Markdown format.
//
// The document structure maps onto the plan structure:
//
//	# <plan title>
//
//	Repository: <repository id>
//
//	## Phase 1: <phase title>
//
//	- mode: parallel
//	- pause after: yes
//
//	### Task <key>: <task title>
//
//	Free paragraphs become the task description.
//
//	- depends on: key-a, key-b
//	- parallel: yes
type MarkdownParser struct {
	markdown goldmark.Markdown
}

// NewMarkdownParser creates a Markdown plan parser.
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{
		markdown: goldmark.New(),
	}
}

var (
	phaseHeadingRe = regexp.MustCompile(`^Phase\s+(\d+):\s+(.+)$`)
	taskHeadingRe  = regexp.MustCompile(`^Task\s+([A-Za-z0-9._-]+):\s+(.+)$`)
)

// Parse reads one Markdown plan document.
func (p *MarkdownParser) Parse(r io.Reader) (*PlanDocument, error) {
	source, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	root := p.markdown.Parser().Parse(text.NewReader(source))

	doc := &PlanDocument{}
	state := &mdState{doc: doc, phaseIdx: -1}

	err = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading:
			if err := state.onHeading(node, source); err != nil {
				return ast.WalkStop, err
			}
			return ast.WalkSkipChildren, nil

		case *ast.List:
			state.onList(node, source)
			return ast.WalkSkipChildren, nil

		case *ast.Paragraph:
			// Only top-level paragraphs; list item text is handled above.
			if node.Parent() == root {
				state.onParagraph(nodeLines(node, source))
			}
			return ast.WalkSkipChildren, nil

		case *ast.FencedCodeBlock:
			state.onCodeBlock(node, source)
			return ast.WalkSkipChildren, nil
		}

		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}

	state.flushTask()
	return doc, nil
}

// mdState tracks the phase and task being assembled during the walk.
type mdState struct {
	doc      *PlanDocument
	phaseIdx int
	task     *TaskDocument
	desc     strings.Builder
}

func (s *mdState) onHeading(h *ast.Heading, source []byte) error {
	title := extractText(h, source)

	switch h.Level {
	case 1:
		if s.doc.Title == "" {
			s.doc.Title = title
		}
	case 2:
		s.flushTask()
		m := phaseHeadingRe.FindStringSubmatch(title)
		if m == nil {
			return fmt.Errorf("phase heading %q must look like %q", title, "Phase 1: Title")
		}
		s.doc.Phases = append(s.doc.Phases, PhaseDocument{
			Title: strings.TrimSpace(m[2]),
			Mode:  models.ModeSequential,
		})
		s.phaseIdx = len(s.doc.Phases) - 1
	case 3:
		s.flushTask()
		m := taskHeadingRe.FindStringSubmatch(title)
		if m == nil {
			return fmt.Errorf("task heading %q must look like %q", title, "Task key: Title")
		}
		if s.phaseIdx < 0 {
			return fmt.Errorf("task %q appears before any phase heading", m[1])
		}
		s.task = &TaskDocument{
			Key:   strings.TrimSpace(m[1]),
			Title: strings.TrimSpace(m[2]),
		}
	}
	return nil
}

func (s *mdState) onList(list *ast.List, source []byte) {
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		line := strings.TrimSpace(nodeLines(item, source))
		if line == "" {
			continue
		}
		if s.task != nil {
			s.taskMetadata(line)
		} else if s.phaseIdx >= 0 {
			s.phaseMetadata(line)
		}
	}
}

func (s *mdState) taskMetadata(line string) {
	key, value, ok := splitMetadata(line)
	if !ok {
		// Ordinary bullet: part of the description.
		s.desc.WriteString("- " + line + "\n")
		return
	}
	switch key {
	case "depends on", "depends_on":
		for _, dep := range strings.Split(value, ",") {
			dep = strings.TrimSpace(dep)
			if dep != "" {
				s.task.DependsOn = append(s.task.DependsOn, dep)
			}
		}
	case "parallel":
		s.task.Parallel = parseBool(value)
	default:
		s.desc.WriteString("- " + line + "\n")
	}
}

func (s *mdState) phaseMetadata(line string) {
	key, value, ok := splitMetadata(line)
	if !ok {
		return
	}
	phase := &s.doc.Phases[s.phaseIdx]
	switch key {
	case "mode":
		phase.Mode = models.ExecutionMode(strings.ToLower(value))
	case "pause after", "pause_after":
		phase.PauseAfter = parseBool(value)
	}
}

func (s *mdState) onParagraph(content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	if s.task != nil {
		s.desc.WriteString(content + "\n")
		return
	}
	// A "Repository: x" paragraph before the first phase names the repo.
	if s.phaseIdx < 0 {
		if key, value, ok := splitMetadata(content); ok && key == "repository" && s.doc.Repository == "" {
			s.doc.Repository = value
		}
	}
}

func (s *mdState) onCodeBlock(block *ast.FencedCodeBlock, source []byte) {
	if s.task == nil {
		return
	}
	var buf bytes.Buffer
	buf.WriteString("```\n")
	for i := 0; i < block.Lines().Len(); i++ {
		seg := block.Lines().At(i)
		buf.Write(seg.Value(source))
	}
	buf.WriteString("```\n")
	s.desc.WriteString(buf.String())
}

func (s *mdState) flushTask() {
	if s.task == nil {
		s.desc.Reset()
		return
	}
	s.task.Description = strings.TrimSpace(s.desc.String())
	s.doc.Phases[s.phaseIdx].Tasks = append(s.doc.Phases[s.phaseIdx].Tasks, *s.task)
	s.task = nil
	s.desc.Reset()
}

// extractText extracts plain text from an AST node's direct text children.
func extractText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
		}
	}
	return strings.TrimSpace(buf.String())
}

// nodeLines returns the raw source text covered by a node, descending into
// the first text-bearing child for container nodes like list items.
func nodeLines(n ast.Node, source []byte) string {
	if n.Lines().Len() > 0 {
		var buf bytes.Buffer
		for i := 0; i < n.Lines().Len(); i++ {
			seg := n.Lines().At(i)
			buf.Write(seg.Value(source))
		}
		return strings.TrimSpace(buf.String())
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if childText := nodeLines(c, source); childText != "" {
			return childText
		}
	}
	return ""
}

// splitMetadata splits "key: value" lines, lowercasing the key.
func splitMetadata(line string) (key, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx <= 0 {
		return "", "", false
	}
	key = strings.ToLower(strings.TrimSpace(line[:idx]))
	value = strings.TrimSpace(line[idx+1:])
	if key == "" || value == "" {
		return "", "", false
	}
	return key, value, true
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "true", "y", "1":
		return true
	}
	return false
}
