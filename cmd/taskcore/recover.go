package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"taskcore/internal/domain/task"
)

// recoveryCheck is one task's recoverable-state snapshot, gathered
// concurrently so a large backlog doesn't serialize on one round-trip per
// task.
type recoveryCheck struct {
	run         *task.Run
	eventCount  int
	lastEventAt string
}

func newRecoverCommand() *cobra.Command {
	var (
		autoApprove bool
		maxWorkers  int
	)

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "List tasks left in a non-terminal state and optionally cancel stale ones",
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
			store := eng.Store()
			defer store.Close()

			runs, err := store.ListRecoverableTasks(ctx)
			if err != nil {
				return fmt.Errorf("taskcore recover: list recoverable tasks: %w", err)
			}
			if len(runs) == 0 {
				fmt.Println("no recoverable tasks")
				return nil
			}

			checks, err := gatherRecoveryChecks(ctx, store, runs, maxWorkers)
			if err != nil {
				return fmt.Errorf("taskcore recover: %w", err)
			}

			for _, c := range checks {
				fmt.Printf("%s  status=%-9s attempts=%-2d events=%-3d last_event=%s  %q\n",
					c.run.ID, c.run.Status, c.run.AttemptCount, c.eventCount, c.lastEventAt, truncate(c.run.OriginalRequest, 60))
			}

			if !autoApprove {
				if !confirmCancel(len(checks)) {
					fmt.Println("leaving tasks as-is")
					return nil
				}
			}

			for _, c := range checks {
				if err := store.UpdateStatus(ctx, c.run.ID, task.StatusCancelled); err != nil {
					fmt.Printf("failed to cancel %s: %v\n", c.run.ID, err)
					continue
				}
				_ = store.AppendEvent(ctx, c.run.ID, task.EventFailed, map[string]string{"reason": "cancelled_by_operator"})
				fmt.Printf("cancelled %s\n", c.run.ID)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&autoApprove, "yes", false, "cancel the listed tasks without prompting for confirmation")
	cmd.Flags().IntVar(&maxWorkers, "workers", 8, "max concurrent store lookups while gathering task state")
	return cmd
}

// gatherRecoveryChecks fetches each run's event history concurrently,
// bounded to maxWorkers in flight, mirroring the orchestrator's
// errgroup-with-limit fan-out shape for bounded parallel work over an
// independent task list.
func gatherRecoveryChecks(ctx context.Context, store task.Store, runs []*task.Run, maxWorkers int) ([]recoveryCheck, error) {
	checks := make([]recoveryCheck, len(runs))
	g, gctx := errgroup.WithContext(ctx)
	if maxWorkers > 0 {
		g.SetLimit(maxWorkers)
	}

	for i, run := range runs {
		i, run := i, run
		g.Go(func() error {
			events, err := store.ListEvents(gctx, run.ID)
			if err != nil {
				return fmt.Errorf("list events for %s: %w", run.ID, err)
			}
			lastEventAt := "never"
			if n := len(events); n > 0 {
				lastEventAt = events[n-1].CreatedAt.Format("2006-01-02T15:04:05Z07:00")
			}
			checks[i] = recoveryCheck{run: run, eventCount: len(events), lastEventAt: lastEventAt}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return checks, nil
}

func confirmCancel(count int) bool {
	prompt := promptui.Prompt{
		Label:     fmt.Sprintf("cancel all %d listed task(s)? (y/N)", count),
		AllowEdit: true,
	}
	result, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) {
			return false
		}
		return false
	}
	return result == "y" || result == "Y" || result == "yes"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
