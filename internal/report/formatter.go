package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aymerick/raymond"
	"github.com/mattn/go-runewidth"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/hookgate/hookgate/internal/engine"
)

// OutputFormat selects the verdict rendering.
type OutputFormat string

const (
	FormatMarkdown OutputFormat = "markdown"
	FormatJSON     OutputFormat = "json"
	FormatHTML     OutputFormat = "html"
	// FormatConcise is a short summary ideal for hook logs.
	FormatConcise OutputFormat = "concise"
)

// Formatter renders a verdict. All formats order hooks identically: by
// declaration order, as aggregated.
type Formatter struct {
	format OutputFormat
}

// NewFormatter creates a formatter for the given output format.
func NewFormatter(format OutputFormat) *Formatter {
	return &Formatter{format: format}
}

// Format renders the verdict.
func (f *Formatter) Format(v *Verdict) (string, error) {
	switch f.format {
	case FormatJSON:
		return f.formatJSON(v)
	case FormatHTML:
		return f.formatHTML(v)
	case FormatConcise:
		return f.formatConcise(v), nil
	case FormatMarkdown, "":
		return f.formatMarkdown(v), nil
	default:
		return "", fmt.Errorf("unknown output format %q", f.format)
	}
}

func (f *Formatter) formatJSON(v *Verdict) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal verdict: %w", err)
	}
	return string(data), nil
}

var titleCaser = cases.Title(language.Und)

func (f *Formatter) formatMarkdown(v *Verdict) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Gate Report\n\n")
	fmt.Fprintf(&b, "**Verdict**: %s\n\n", strings.ToUpper(string(v.Overall)))
	fmt.Fprintf(&b, "- Tool: %s %s\n", v.Tool, v.Version)
	fmt.Fprintf(&b, "- Scope: %s\n", v.Scope)
	fmt.Fprintf(&b, "- Generated: %s\n", v.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "- Duration: %s\n\n", v.Duration)

	fmt.Fprintf(&b, "## Hooks\n\n")
	for _, r := range v.Hooks {
		fmt.Fprintf(&b, "### %s — %s\n\n", r.HookID, titleCaser.String(string(r.Status)))
		if r.Cause != "" {
			fmt.Fprintf(&b, "Cause: %s\n\n", r.Cause)
		}
		if len(r.ModifiedFiles) > 0 {
			fmt.Fprintf(&b, "Modified files:\n\n")
			for _, p := range r.ModifiedFiles {
				fmt.Fprintf(&b, "- `%s`\n", p)
			}
			fmt.Fprintf(&b, "\n")
		}
		if r.Diagnostics != "" {
			fmt.Fprintf(&b, "```\n%s\n```\n\n", strings.TrimRight(r.Diagnostics, "\n"))
		}
	}

	return b.String()
}

// formatConcise emits one aligned line per hook, suited to pre-commit logs.
func (f *Formatter) formatConcise(v *Verdict) string {
	width := 0
	for _, r := range v.Hooks {
		if w := runewidth.StringWidth(r.HookID); w > width {
			width = w
		}
	}

	var b strings.Builder
	for _, r := range v.Hooks {
		line := runewidth.FillRight(r.HookID, width)
		fmt.Fprintf(&b, "%s  %s", line, statusBadge(r.Status))
		if len(r.ModifiedFiles) > 0 {
			fmt.Fprintf(&b, " (%d file(s) rewritten)", len(r.ModifiedFiles))
		}
		if r.Cause != "" {
			fmt.Fprintf(&b, " [%s]", r.Cause)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "gate: %s in %s\n", strings.ToUpper(string(v.Overall)), v.Duration)
	return b.String()
}

func statusBadge(s engine.Status) string {
	switch s {
	case engine.StatusSuccess:
		return "Passed"
	case engine.StatusFailure:
		return "Failed"
	case engine.StatusError:
		return "Errored"
	case engine.StatusSkipped:
		return "Skipped"
	default:
		return titleCaser.String(string(s))
	}
}

// htmlTemplate renders the verdict as a standalone page.
const htmlTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>hookgate report</title>
<style>
body { font-family: sans-serif; margin: 2em; }
.pass { color: #2e7d32; } .fail { color: #c62828; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ddd; padding: 6px 10px; text-align: left; }
pre { background: #f6f8fa; padding: 8px; overflow-x: auto; }
</style>
</head>
<body>
<h1>Gate Report <span class="{{verdict}}">{{upper verdict}}</span></h1>
<p>{{tool}} {{version}} &mdash; scope {{scope}} &mdash; {{generated}}</p>
<table>
<tr><th>Hook</th><th>Status</th><th>Modified files</th><th>Diagnostics</th></tr>
{{#each hooks}}
<tr>
<td>{{this.id}}</td>
<td>{{this.status}}</td>
<td>{{#if this.modified}}{{this.modified}}{{/if}}</td>
<td>{{#if this.diagnostics}}<pre>{{this.diagnostics}}</pre>{{/if}}</td>
</tr>
{{/each}}
</table>
</body>
</html>
`

func (f *Formatter) formatHTML(v *Verdict) (string, error) {
	rows := make([]map[string]interface{}, 0, len(v.Hooks))
	for _, r := range v.Hooks {
		rows = append(rows, map[string]interface{}{
			"id":          r.HookID,
			"status":      titleCaser.String(string(r.Status)),
			"modified":    strings.Join(r.ModifiedFiles, ", "),
			"diagnostics": r.Diagnostics,
		})
	}
	data := map[string]interface{}{
		"verdict":   string(v.Overall),
		"tool":      v.Tool,
		"version":   v.Version,
		"scope":     v.Scope,
		"generated": v.GeneratedAt.Format("2006-01-02 15:04:05"),
		"hooks":     rows,
	}

	out, err := raymond.Render(htmlTemplate, data)
	if err != nil {
		return "", fmt.Errorf("render HTML report: %w", err)
	}
	return out, nil
}

func init() {
	raymond.RegisterHelper("upper", func(s string) string {
		return strings.ToUpper(s)
	})
}
