package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"slices"
	"strings"

	"energyscope/internal/domain"
)

// historyDisplay is how many turns the history command shows.
const historyDisplay = 10

// Answerer is the orchestrator surface the REPL drives.
type Answerer interface {
	ProcessQuery(ctx context.Context, query string, qctx domain.QueryContext) (*domain.SynthesizedResponse, error)
	Specialists() iter.Seq[domain.CapabilityDescriptor]
	History(n int) iter.Seq[domain.ConversationEntry]
	ClearHistory()
}

// exampleQueries are listed by the help command.
var exampleQueries = []string{
	"What is the electricity demand in 2050 in the ZERO scenario?",
	"Compare the ZERO and WWB scenarios for CO2 emissions",
	"Which assumptions does the Energy Perspectives methodology make?",
	"What policy supports the net-zero target?",
	"Wie hoch ist die Photovoltaik-Produktion im Jahr 2035?",
	`Translate "net-zero emissions" into French`,
}

// REPL is the interactive question loop.
type REPL struct {
	app    Answerer
	out    io.Writer
	render *Renderer
	qctx   domain.QueryContext
}

// NewREPL creates a REPL starting with the given user type and language.
func NewREPL(app Answerer, out io.Writer, render *Renderer, qctx domain.QueryContext) *REPL {
	if qctx.UserType == "" {
		qctx.UserType = domain.UserCitizen
	}
	return &REPL{app: app, out: out, render: render, qctx: qctx}
}

// errQuit ends the loop.
var errQuit = errors.New("quit")

// Run reads lines from in until EOF, exit or ctx is cancelled.
func (r *REPL) Run(ctx context.Context, in io.Reader) error {
	r.println(styleHeader.Render("energyscope: Swiss energy transition assistant"))
	r.println(styleMuted.Render("Ask a question, or type 'help' for commands."))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(r.out, r.prompt())
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out)
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(r.out)
				return nil
			}
			if err := r.Handle(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				if ctx.Err() != nil {
					return nil
				}
				r.println(r.render.Error(err))
			}
		}
	}
}

func (r *REPL) prompt() string {
	return styleInfo.Render("["+string(r.qctx.UserType)+r.langTag()+"]") + " > "
}

func (r *REPL) langTag() string {
	if r.qctx.Language == "" {
		return ""
	}
	return "/" + string(r.qctx.Language)
}

// Handle processes one input line: a command or a question.
func (r *REPL) Handle(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "exit", "quit":
		r.println("Goodbye.")
		return errQuit
	case "help":
		r.println(helpText())
		return nil
	case "agents":
		r.println(r.render.Specialists(slices.Collect(r.app.Specialists())))
		return nil
	case "history":
		r.println(r.render.History(slices.Collect(r.app.History(historyDisplay))))
		return nil
	case "clear":
		r.app.ClearHistory()
		r.println("Conversation history cleared.")
		return nil
	case "user":
		ut, ok := domain.ParseUserType(arg)
		if !ok {
			return fmt.Errorf("unknown user type %q (want: %s)", arg, userTypeList())
		}
		r.qctx.UserType = ut
		r.println("Answers are now tailored for a " + string(ut) + ".")
		return nil
	case "lang":
		if arg == "" || strings.EqualFold(arg, "auto") {
			r.qctx.Language = ""
			r.println("Answers follow the language of each question.")
			return nil
		}
		code, ok := domain.ParseLanguage(arg)
		if !ok {
			return fmt.Errorf("unsupported language %q (want: en, de, fr, it or auto)", arg)
		}
		r.qctx.Language = code
		r.println("Answers are now given in " + domain.LanguageNames[code] + ".")
		return nil
	}

	resp, err := r.app.ProcessQuery(ctx, line, r.qctx)
	if err != nil {
		return err
	}
	r.println(r.render.Answer(resp))
	return nil
}

// QueryContext returns the current user type and language.
func (r *REPL) QueryContext() domain.QueryContext { return r.qctx }

func (r *REPL) println(s string) { fmt.Fprintln(r.out, s) }

func userTypeList() string {
	names := make([]string, len(domain.UserTypes))
	for i, u := range domain.UserTypes {
		names[i] = string(u)
	}
	return strings.Join(names, ", ")
}

func helpText() string {
	var sb strings.Builder
	sb.WriteString(styleBold.Render("Commands:") + "\n")
	sb.WriteString("  help            Show this help\n")
	sb.WriteString("  agents          List the available specialists\n")
	sb.WriteString("  history         Show recent questions and answers\n")
	sb.WriteString("  clear           Forget the conversation history\n")
	sb.WriteString("  user <type>     Tailor answers for: " + userTypeList() + "\n")
	sb.WriteString("  lang <code>     Answer in en, de, fr or it (auto follows the question)\n")
	sb.WriteString("  exit            Quit\n\n")
	sb.WriteString(styleBold.Render("Example questions:") + "\n")
	for _, q := range exampleQueries {
		sb.WriteString("  " + q + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
