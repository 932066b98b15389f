package evals

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// Output file names.
const (
	LeaderboardFile = "prompt_leaderboard.md"
	ResultsFile     = "results.json"
	detailPattern   = "best_prompt_%d.md"
)

// DefaultTopN is how many detail documents a run writes.
const DefaultTopN = 3

const (
	previewLimit = 50
	previewKeep  = 47
	ellipsis     = "..."
)

// Reporter outputs a ranked run.
type Reporter interface {
	// Report outputs the evaluation run. run.Results must already be ranked.
	Report(run *Run) error
}

// DetailFileName returns the name of the k-th (1-based) detail document.
func DetailFileName(k int) string {
	return fmt.Sprintf(detailPattern, k)
}

// DetailReporter writes one markdown document for each of the top N results.
type DetailReporter struct {
	dir  string
	topN int
}

// NewDetailReporter creates a detail reporter writing into dir.
func NewDetailReporter(dir string, topN int) *DetailReporter {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &DetailReporter{dir: dir, topN: topN}
}

func (r *DetailReporter) Report(run *Run) error {
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	n := min(r.topN, len(run.Results))
	for i := 0; i < n; i++ {
		path := filepath.Join(r.dir, DetailFileName(i+1))
		if err := os.WriteFile(path, []byte(RenderDetail(run.Results[i])), 0644); err != nil {
			return fmt.Errorf("write %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

// RenderDetail formats one result as a self-contained markdown document.
// The prompt and artifact appear verbatim.
func RenderDetail(res EvaluationResult) string {
	var b strings.Builder
	b.WriteString("# Best Prompt\n\n")
	b.WriteString("## Prompt\n")
	b.WriteString("```\n")
	b.WriteString(res.Prompt)
	b.WriteString("\n```\n\n")
	b.WriteString("## Codex Response\n")
	b.WriteString("```python\n")
	b.WriteString(res.Artifact)
	b.WriteString("\n```\n\n")
	fmt.Fprintf(&b, "**Score:** %d  \n", res.Score)
	fmt.Fprintf(&b, "**Evaluation:** %s\n", strings.Join(res.Diagnostics, "; "))
	return b.String()
}

// LeaderboardReporter writes the full ranking as a markdown table.
type LeaderboardReporter struct {
	dir string
}

// NewLeaderboardReporter creates a leaderboard reporter writing into dir.
func NewLeaderboardReporter(dir string) *LeaderboardReporter {
	return &LeaderboardReporter{dir: dir}
}

func (r *LeaderboardReporter) Report(run *Run) error {
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	path := filepath.Join(r.dir, LeaderboardFile)
	if err := os.WriteFile(path, []byte(RenderLeaderboard(LeaderboardRows(run.Results))), 0644); err != nil {
		return fmt.Errorf("write %s: %w", LeaderboardFile, err)
	}
	return nil
}

// LeaderboardRows projects ranked results into table rows.
func LeaderboardRows(ranked []EvaluationResult) []LeaderboardRow {
	rows := make([]LeaderboardRow, len(ranked))
	for i, res := range ranked {
		rows[i] = LeaderboardRow{
			Rank:    i + 1,
			Score:   res.Score,
			Preview: Preview(res.Prompt),
		}
	}
	return rows
}

// RenderLeaderboard formats rows as the leaderboard document.
func RenderLeaderboard(rows []LeaderboardRow) string {
	var b strings.Builder
	b.WriteString("# Prompt Leaderboard\n\n")
	b.WriteString("| Rank | Score | Prompt |\n")
	b.WriteString("|-----:|-----:|-------|\n")
	for _, row := range rows {
		fmt.Fprintf(&b, "| %d | %d | %s |\n", row.Rank, row.Score, row.Preview)
	}
	return b.String()
}

// Preview escapes table delimiters in a prompt, then shortens it to at
// most 50 characters. Truncation can split an escape sequence.
func Preview(prompt string) string {
	escaped := strings.ReplaceAll(prompt, "|", `\|`)
	runes := []rune(escaped)
	if len(runes) > previewLimit {
		return string(runes[:previewKeep]) + ellipsis
	}
	return escaped
}

// JSONReporter outputs the run as JSON.
type JSONReporter struct {
	outputPath string
	pretty     bool
}

// NewJSONReporter creates a JSON reporter. An empty path or "-" writes to stdout.
func NewJSONReporter(outputPath string, pretty bool) *JSONReporter {
	return &JSONReporter{
		outputPath: outputPath,
		pretty:     pretty,
	}
}

func (r *JSONReporter) Report(run *Run) error {
	var data []byte
	var err error

	if r.pretty {
		data, err = json.MarshalIndent(run, "", "  ")
	} else {
		data, err = json.Marshal(run)
	}
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	if r.outputPath == "" || r.outputPath == "-" {
		fmt.Println(string(data))
		return nil
	}

	dir := filepath.Dir(r.outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	return os.WriteFile(r.outputPath, data, 0644)
}

// ConsoleReporter prints a run summary and the leaderboard as a table.
type ConsoleReporter struct {
	w       io.Writer
	verbose bool
}

// NewConsoleReporter creates a console reporter. A nil writer means stdout.
func NewConsoleReporter(w io.Writer, verbose bool) *ConsoleReporter {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleReporter{w: w, verbose: verbose}
}

func (r *ConsoleReporter) Report(run *Run) error {
	fmt.Fprintln(r.w)
	fmt.Fprintf(r.w, "  Run ID:     %s\n", run.ID)
	switch {
	case run.Config.Offline:
		fmt.Fprintf(r.w, "  Source:     offline fallback\n")
	case run.Config.Model != "":
		fmt.Fprintf(r.w, "  Model:      %s (%s)\n", run.Config.Model, run.Config.Provider)
	}
	if run.Config.Runtime != "" {
		fmt.Fprintf(r.w, "  Runtime:    %s\n", run.Config.Runtime)
	}
	if !run.CompletedAt.IsZero() {
		fmt.Fprintf(r.w, "  Duration:   %s\n", run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	if s := run.Summary; s != nil {
		fmt.Fprintf(r.w, "  Prompts:    %d (fallbacks: %d)\n", s.TotalPrompts, s.Fallbacks)
		fmt.Fprintf(r.w, "  Avg Score:  %.2f / %d\n", s.AvgScore, MaxScore)
	}
	fmt.Fprintln(r.w)

	headers := []string{"Rank", "Score", "Prompt"}
	if r.verbose {
		headers = append(headers, "Evaluation")
	}
	table := NewTable(headers, r.w)
	for _, row := range LeaderboardRows(run.Results) {
		cells := []string{strconv.Itoa(row.Rank), strconv.Itoa(row.Score), row.Preview}
		if r.verbose {
			cells = append(cells, strings.Join(run.Results[row.Rank-1].Diagnostics, "; "))
		}
		if err := table.Append(cells); err != nil {
			return fmt.Errorf("append table row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render table: %w", err)
	}
	fmt.Fprintln(r.w)
	return nil
}

// NewTable builds the markdown-style table used for console output.
func NewTable(headers []string, w io.Writer) *tablewriter.Table {
	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		Behavior: tw.Behavior{TrimSpace: tw.Off},
	}
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{
				Left:   tw.On,
				Top:    tw.Off,
				Right:  tw.On,
				Bottom: tw.Off,
			},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}

// MultiReporter runs multiple reporters.
type MultiReporter struct {
	reporters []Reporter
}

// NewMultiReporter creates a reporter that outputs to multiple formats.
func NewMultiReporter(reporters ...Reporter) *MultiReporter {
	return &MultiReporter{reporters: reporters}
}

func (r *MultiReporter) Report(run *Run) error {
	var errs []string
	for _, reporter := range r.reporters {
		if err := reporter.Report(run); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("reporter errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
