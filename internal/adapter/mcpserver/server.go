// Package mcpserver exposes the orchestrator as Model Context Protocol tools
// over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"energyscope/internal/domain"
	"energyscope/internal/infra/config"
	"energyscope/internal/infra/logger"
)

// Processor is the orchestrator surface the tools need.
type Processor interface {
	ProcessQuery(ctx context.Context, query string, qctx domain.QueryContext) (*domain.SynthesizedResponse, error)
	Specialists() iter.Seq[domain.CapabilityDescriptor]
	History(n int) iter.Seq[domain.ConversationEntry]
}

const defaultHistoryLimit = 10

// Server registers the energy tools on an MCP server.
type Server struct {
	// mu serializes orchestrator access; the conversation session has a
	// single owner.
	mu       sync.Mutex
	proc     Processor
	defaults domain.QueryContext
	mcp      *server.MCPServer
	logger   *slog.Logger
}

// New creates a Server. defaults supplies the user type and language used
// when a call does not set them.
func New(proc Processor, cfg config.MCPConfig, defaults domain.QueryContext, log *slog.Logger) *Server {
	s := &Server{
		proc:     proc,
		defaults: defaults,
		logger:   logger.OrNop(log).With("component", "mcp"),
	}
	s.mcp = server.NewMCPServer(
		cfg.Name,
		cfg.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions("Answers questions about the Swiss energy transition using scenario data, reports and policy context. Questions may be asked in English, German, French or Italian."),
	)
	s.mcp.AddTool(askTool(), s.handleAsk)
	s.mcp.AddTool(listSpecialistsTool(), s.handleListSpecialists)
	s.mcp.AddTool(historyTool(), s.handleHistory)
	return s
}

// MCP returns the underlying MCP server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// ServeStdio serves MCP over stdin/stdout until the input closes.
func (s *Server) ServeStdio() error {
	s.logger.Info("serving MCP over stdio")
	return server.ServeStdio(s.mcp)
}

func askTool() mcp.Tool {
	userTypes := make([]string, len(domain.UserTypes))
	for i, u := range domain.UserTypes {
		userTypes[i] = string(u)
	}
	return mcp.NewTool("ask_energy_question",
		mcp.WithDescription("Ask a question about Swiss energy scenarios, statistics, reports or policy. Returns a synthesized answer with confidence and sources."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The question, in English, German, French or Italian")),
		mcp.WithString("user_type", mcp.Description("Audience the answer is tailored to"), mcp.Enum(userTypes...)),
		mcp.WithString("language", mcp.Description("ISO 639-1 code of the answer language; defaults to the question's language"), mcp.Enum("en", "de", "fr", "it")),
	)
}

func listSpecialistsTool() mcp.Tool {
	return mcp.NewTool("list_specialists",
		mcp.WithDescription("List the specialists the orchestrator can route questions to, with the intents they handle."),
	)
}

func historyTool() mcp.Tool {
	return mcp.NewTool("conversation_history",
		mcp.WithDescription("Show the most recent questions and answers of this session, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of entries (default 10)")),
	)
}

func (s *Server) handleAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	qctx := s.defaults
	if raw := req.GetString("user_type", ""); raw != "" {
		u, ok := domain.ParseUserType(raw)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown user_type %q", raw)), nil
		}
		qctx.UserType = u
	}
	if raw := req.GetString("language", ""); raw != "" {
		lang, ok := domain.ParseLanguage(raw)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unsupported language %q", raw)), nil
		}
		qctx.Language = lang
	}

	s.mu.Lock()
	resp, err := s.proc.ProcessQuery(ctx, query, qctx)
	s.mu.Unlock()
	if err != nil {
		if errors.Is(err, domain.ErrInvalidQuery) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, err
	}

	payload, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(FormatAnswer(resp)),
			mcp.NewTextContent(string(payload)),
		},
	}, nil
}

func (s *Server) handleListSpecialists(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var sb strings.Builder
	for d := range s.proc.Specialists() {
		intents := make([]string, len(d.SupportedIntents))
		for i, in := range d.SupportedIntents {
			intents[i] = string(in)
		}
		fmt.Fprintf(&sb, "- %s (%s): %s [intents: %s; model: %s]\n",
			d.Name, d.DisplayName, d.Description, strings.Join(intents, ", "), d.ModelID)
	}
	return mcp.NewToolResultText(strings.TrimRight(sb.String(), "\n")), nil
}

func (s *Server) handleHistory(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", defaultHistoryLimit)
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var sb strings.Builder
	for e := range s.proc.History(limit) {
		conf := 0.0
		answer := ""
		if e.Response != nil {
			conf = e.Response.Confidence
			answer = e.Response.Content
		}
		fmt.Fprintf(&sb, "#%d [%s, %s] Q: %s\nA (%.2f): %s\n\n",
			e.Seq, e.UserType, e.Language, e.Query, conf, truncate(answer, 200))
	}
	if sb.Len() == 0 {
		return mcp.NewToolResultText("No conversation history yet."), nil
	}
	return mcp.NewToolResultText(strings.TrimRight(sb.String(), "\n")), nil
}

// FormatAnswer renders a response as plain markdown with a metadata footer.
func FormatAnswer(r *domain.SynthesizedResponse) string {
	var sb strings.Builder
	sb.WriteString(r.Content)
	fmt.Fprintf(&sb, "\n\nConfidence: %.2f (%s)", r.Confidence, ConfidenceBand(r.Confidence))
	if len(r.DataSources) > 0 {
		sb.WriteString("\nSources: " + strings.Join(r.DataSources, ", "))
		if r.SourcesOmitted > 0 {
			fmt.Fprintf(&sb, " (+%d more)", r.SourcesOmitted)
		}
	}
	if len(r.Specialists) > 0 {
		sb.WriteString("\nSpecialists: " + strings.Join(r.Specialists, ", "))
	}
	for _, w := range r.Warnings {
		sb.WriteString("\nWarning: " + w)
	}
	if len(r.Suggestions) > 0 {
		sb.WriteString("\nFollow-up questions:")
		for _, q := range r.Suggestions {
			sb.WriteString("\n- " + q)
		}
	}
	return sb.String()
}

// ConfidenceBand names the band a confidence falls into.
func ConfidenceBand(c float64) string {
	switch {
	case c > 0.7:
		return "high"
	case c > 0.4:
		return "medium"
	default:
		return "low"
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
