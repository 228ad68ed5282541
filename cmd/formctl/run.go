package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/rhuss/formchat/pkg/api"
	"github.com/rhuss/formchat/pkg/config"
	"github.com/rhuss/formchat/pkg/engine"
	"github.com/rhuss/formchat/pkg/form"
	"github.com/rhuss/formchat/pkg/judge"
	"github.com/rhuss/formchat/pkg/provider/openaicompat"
	"github.com/rhuss/formchat/pkg/session"
)

var (
	runVars        []string
	runJudge       string
	runConfig      string
	runMaxAttempts int
	runOut         string
)

var runCmd = &cobra.Command{
	Use:   "run <form.yaml>",
	Short: "Run a form as an interactive dialogue in the terminal",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	def, err := form.LoadFile(args[0], runMaxAttempts)
	if err != nil {
		return err
	}
	vars, err := parseVars(runVars)
	if err != nil {
		return err
	}

	j, closeJudge, err := buildJudge(runJudge, runConfig)
	if err != nil {
		return err
	}
	defer closeJudge()

	sink := &submissionSink{path: runOut, stdout: cmd.OutOrStdout()}
	eng, err := newLocalEngine(def, j, sink)
	if err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	status, err := converse(ctx, eng, def.ID, vars, rl, rl.Stdout())
	if err != nil {
		return err
	}
	if status != api.SessionStatusDone {
		fmt.Fprintf(cmd.ErrOrStderr(), "session ended: %s\n", status)
	}
	return sink.err
}

// lineReader is the part of readline.Instance the dialogue loop needs.
type lineReader interface {
	Readline() (string, error)
}

// converse starts a session and feeds respondent lines to the engine until
// the session reaches a terminal status. Interrupt or end of input
// abandons the session.
func converse(ctx context.Context, eng *engine.Engine, formID string, vars map[string]string, in lineReader, out io.Writer) (api.SessionStatus, error) {
	turn, err := eng.Start(ctx, &api.StartRequest{FormID: formID, Variables: vars})
	if err != nil {
		return "", err
	}
	printTurn(out, turn)

	for !turn.Status.Terminal() {
		line, err := in.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			turn, err = eng.Cancel(context.WithoutCancel(ctx), turn.SessionID)
			if err != nil {
				return "", err
			}
			printTurn(out, turn)
			break
		}
		if err != nil {
			return "", err
		}

		turn, err = eng.Reply(ctx, turn.SessionID, line)
		if err != nil {
			var apiErr *api.APIError
			if errors.As(err, &apiErr) && apiErr.Type == api.ErrorTypeInvalidRequest {
				fmt.Fprintf(out, "(%s)\n", apiErr.Message)
				continue
			}
			return "", err
		}
		printTurn(out, turn)
	}
	return turn.Status, nil
}

func printTurn(w io.Writer, turn *api.Turn) {
	for _, ev := range turn.Events {
		fmt.Fprintln(w, strings.TrimRight(ev.Text, "\n"))
	}
}

func newLocalEngine(def *form.Definition, j judge.Judge, saver engine.SubmissionSaver) (*engine.Engine, error) {
	catalog, err := form.NewCatalog(def)
	if err != nil {
		return nil, err
	}
	return engine.New(catalog, j, session.NewStore(), saver, engine.Config{PersistRetries: -1})
}

func buildJudge(kind, configPath string) (judge.Judge, func(), error) {
	switch kind {
	case "rules":
		return judge.Rules{}, func() {}, nil
	case "llm":
	default:
		return nil, nil, fmt.Errorf("unknown judge %q (want rules or llm)", kind)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	client, err := openaicompat.New(openaicompat.Config{
		Name:         cfg.Judge.Provider,
		BaseURL:      cfg.Judge.BackendURL,
		APIKey:       cfg.Judge.APIKey,
		Timeout:      cfg.Judge.Timeout,
		ModelMapping: cfg.Judge.ModelMapping,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating judge backend: %w", err)
	}
	j := judge.NewLLM(client, cfg.Judge.Model,
		judge.WithTimeout(cfg.Judge.Timeout),
		judge.WithMaxRetries(cfg.Judge.MaxRetries),
		judge.WithMinConfidence(cfg.Judge.MinConfidence),
	)
	return j, func() { client.Close() }, nil
}

// submissionSink writes the finished submission as indented JSON. An empty
// path discards it.
type submissionSink struct {
	path   string
	stdout io.Writer
	err    error
}

func (s *submissionSink) SaveSubmission(_ context.Context, sub *api.Submission) error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(sub, "", "  ")
	if err != nil {
		s.err = err
		return err
	}
	data = append(data, '\n')
	if s.path == "-" {
		_, s.err = s.stdout.Write(data)
		return s.err
	}
	s.err = os.WriteFile(s.path, data, 0o644)
	return s.err
}
