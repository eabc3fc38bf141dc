package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"taskcore/internal/completion"
	"taskcore/internal/engine"
)

func newRunCommand() *cobra.Command {
	var (
		channel     string
		senderKey   string
		replyTarget string
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "run <request text>",
		Short: "Start a task run and drive it to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			eng, err := buildEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer eng.Store().Close()

			var runner engine.RoundRunner
			if interactive {
				r, err := newInteractiveRoundRunner()
				if err != nil {
					return err
				}
				defer r.Close()
				runner = r
			} else {
				return errors.New("taskcore run: no non-interactive RoundRunner is wired in; pass --interactive, or supply one in an embedding program")
			}

			req := &engine.TaskRunRequest{
				Channel:         channel,
				SenderKey:       senderKey,
				ReplyTarget:     replyTarget,
				OriginalRequest: args[0],
				Runner:          runner,
				History: []completion.Message{
					{Role: "user", Content: args[0]},
				},
			}

			outcome, err := eng.RunTask(ctx, req)
			if err != nil {
				return fmt.Errorf("taskcore run: %w", err)
			}
			fmt.Printf("task %s completed (write_verified=%v)\n\n%s\n", outcome.TaskID, outcome.WriteVerified, outcome.FinalResponse)
			return nil
		},
	}

	cmd.Flags().StringVar(&channel, "channel", "cli", "originating channel recorded on the task row")
	cmd.Flags().StringVar(&senderKey, "sender", "operator", "sender key recorded on the task row")
	cmd.Flags().StringVar(&replyTarget, "reply-target", "operator", "reply target recorded on the task row")
	cmd.Flags().BoolVar(&interactive, "interactive", false, "drive rounds by prompting a human operator for each model reply, via a readline REPL")
	return cmd
}

// interactiveRoundRunner implements engine.RoundRunner by handing each
// round's prompt to a human operator over a readline REPL and taking
// whatever they type back as the round's reply. It exists because
// engine.RoundRunner is host-supplied — this module never ships a real
// model client — so the CLI needs some concrete way to exercise the engine
// beyond its scripted test fixture.
type interactiveRoundRunner struct {
	rl    *readline.Instance
	round int
}

func newInteractiveRoundRunner() (*interactiveRoundRunner, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "model> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdin:           readline.NewCancelableStdin(os.Stdin),
		Stdout:          os.Stdout,
		Stderr:          os.Stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("taskcore run: initialize readline: %w", err)
	}
	return &interactiveRoundRunner{rl: rl}, nil
}

func (r *interactiveRoundRunner) Close() error { return r.rl.Close() }

func (r *interactiveRoundRunner) RunRound(ctx context.Context, req *engine.TaskRunRequest) (string, error) {
	r.round++
	if last := len(req.History) - 1; last >= 0 {
		fmt.Printf("\n--- round %d ---\n%s: %s\n", r.round, req.History[last].Role, req.History[last].Content)
	}

	line, err := r.rl.Readline()
	if err == readline.ErrInterrupt {
		return "", errors.New("taskcore run: operator interrupted")
	}
	if err == io.EOF {
		return "", errors.New("taskcore run: operator closed input")
	}
	if err != nil {
		return "", fmt.Errorf("taskcore run: read operator reply: %w", err)
	}

	req.History = append(req.History, completion.Message{Role: "assistant", Content: line})
	return line, nil
}
