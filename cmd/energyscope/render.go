package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"energyscope/internal/adapter/mcpserver"
	"energyscope/internal/domain"
)

// displaySources is how many sources the terminal shows before summarizing.
const displaySources = 3

var (
	colorHigh    = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#66bb6a"}
	colorMedium  = lipgloss.AdaptiveColor{Light: "#e65100", Dark: "#ffa726"}
	colorLow     = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	colorInfo    = lipgloss.AdaptiveColor{Light: "#0277bd", Dark: "#4fc3f7"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#e65100", Dark: "#ffa726"}

	styleBold    = lipgloss.NewStyle().Bold(true)
	styleMuted   = lipgloss.NewStyle().Foreground(colorMuted)
	styleInfo    = lipgloss.NewStyle().Foreground(colorInfo)
	styleWarning = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	styleError   = lipgloss.NewStyle().Foreground(colorLow).Bold(true)
	styleHeader  = lipgloss.NewStyle().Bold(true).Foreground(colorInfo).
			BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(colorMuted)
)

// confidenceStyle colors a confidence value by band.
func confidenceStyle(c float64) lipgloss.Style {
	switch mcpserver.ConfidenceBand(c) {
	case "high":
		return lipgloss.NewStyle().Foreground(colorHigh).Bold(true)
	case "medium":
		return lipgloss.NewStyle().Foreground(colorMedium).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(colorLow).Bold(true)
	}
}

// Renderer formats answers for the terminal.
type Renderer struct {
	md    *glamour.TermRenderer
	plain bool
	width int
}

// NewRenderer creates a Renderer. With plain set, markdown is printed as is.
func NewRenderer(width int, plain bool) *Renderer {
	if width <= 0 {
		width = 100
	}
	return &Renderer{plain: plain, width: width}
}

func (r *Renderer) markdown(content string) string {
	if r.plain {
		return content
	}
	if r.md == nil {
		md, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(r.width),
		)
		if err != nil {
			r.plain = true
			return content
		}
		r.md = md
	}
	out, err := r.md.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}

// Answer renders a synthesized response with its confidence band, the
// first sources, follow-up suggestions and warnings.
func (r *Renderer) Answer(resp *domain.SynthesizedResponse) string {
	var sb strings.Builder
	sb.WriteString(r.markdown(resp.Content))
	sb.WriteString("\n\n")

	band := mcpserver.ConfidenceBand(resp.Confidence)
	sb.WriteString(styleBold.Render("Confidence: "))
	sb.WriteString(confidenceStyle(resp.Confidence).Render(fmt.Sprintf("%.2f (%s)", resp.Confidence, band)))
	if len(resp.Specialists) > 0 {
		sb.WriteString(styleMuted.Render("  via " + strings.Join(resp.Specialists, ", ")))
	}
	sb.WriteString("\n")

	if len(resp.DataSources) > 0 {
		sb.WriteString(styleBold.Render("Sources:"))
		sb.WriteString("\n")
		shown := resp.DataSources
		if len(shown) > displaySources {
			shown = shown[:displaySources]
		}
		for _, s := range shown {
			sb.WriteString("  • " + s + "\n")
		}
		if more := len(resp.DataSources) - len(shown) + resp.SourcesOmitted; more > 0 {
			sb.WriteString(styleMuted.Render(fmt.Sprintf("  ... and %d more", more)))
			sb.WriteString("\n")
		}
	}

	if len(resp.Suggestions) > 0 {
		sb.WriteString(styleInfo.Render("You might also ask:"))
		sb.WriteString("\n")
		for _, s := range resp.Suggestions {
			sb.WriteString("  → " + s + "\n")
		}
	}

	for _, w := range resp.Warnings {
		sb.WriteString(styleWarning.Render("⚠ " + w))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Specialists renders the registered specialists as a list.
func (r *Renderer) Specialists(descs []domain.CapabilityDescriptor) string {
	var sb strings.Builder
	sb.WriteString(styleHeader.Render("Specialists"))
	sb.WriteString("\n")
	for _, d := range descs {
		intents := make([]string, len(d.SupportedIntents))
		for i, in := range d.SupportedIntents {
			intents[i] = string(in)
		}
		fmt.Fprintf(&sb, "  %s %s\n", styleBold.Render(d.DisplayName), styleMuted.Render("("+d.Name+", "+d.ModelID+")"))
		fmt.Fprintf(&sb, "    %s\n", d.Description)
		fmt.Fprintf(&sb, "    %s\n", styleMuted.Render("intents: "+strings.Join(intents, ", ")))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// History renders conversation entries, most recent first, with the query
// and answer truncated.
func (r *Renderer) History(entries []domain.ConversationEntry) string {
	if len(entries) == 0 {
		return styleMuted.Render("No conversation history yet.")
	}
	var sb strings.Builder
	sb.WriteString(styleHeader.Render("Recent questions"))
	sb.WriteString("\n")
	for _, e := range entries {
		answer, conf := "", 0.0
		if e.Response != nil {
			answer, conf = e.Response.Content, e.Response.Confidence
		}
		fmt.Fprintf(&sb, "  %s %s %s\n",
			styleMuted.Render(fmt.Sprintf("#%d %s", e.Seq, e.Timestamp.Format("15:04:05"))),
			styleBold.Render(truncateLine(e.Query, 60)),
			confidenceStyle(conf).Render(fmt.Sprintf("[%.2f]", conf)))
		fmt.Fprintf(&sb, "    %s\n", truncateLine(answer, 100))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Error renders an error line.
func (r *Renderer) Error(err error) string {
	return styleError.Render("Error: " + err.Error())
}

// truncateLine collapses whitespace and shortens s to n runes.
func truncateLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
