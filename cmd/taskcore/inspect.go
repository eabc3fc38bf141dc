package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"taskcore/internal/domain/task"
)

// isTTY reports whether both stdin and stdout are attached to a terminal —
// the Bubble Tea browser needs a real terminal, not a CI log or a pipe.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func newInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <task-id>",
		Short: "Browse a task's event and artifact history in a terminal UI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isTTY() {
				return fmt.Errorf("taskcore inspect: requires an interactive terminal")
			}
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

			model, err := newInspectModel(ctx, store, args[0])
			if err != nil {
				return err
			}
			_, err = tea.NewProgram(model).Run()
			return err
		},
	}
	return cmd
}

var focusedBorder = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("62"))

var unfocusedBorder = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("240"))

// inspectModel is a read-only Bubble Tea browser over one task's event log
// and artifact table, switching focus between the two with Tab and
// rendering the task's last response as markdown below both.
type inspectModel struct {
	run       *task.Run
	events    table.Model
	artifacts table.Model
	renderer  *glamour.TermRenderer
	focusIdx  int // 0 = events, 1 = artifacts
	width     int
	height    int
}

func newInspectModel(ctx context.Context, store task.Store, taskID string) (*inspectModel, error) {
	run, err := store.GetTaskRun(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("taskcore inspect: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("taskcore inspect: no task with id %q", taskID)
	}

	events, err := store.ListEvents(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("taskcore inspect: list events: %w", err)
	}
	artifacts, err := store.ListArtifacts(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("taskcore inspect: list artifacts: %w", err)
	}

	eventRows := make([]table.Row, 0, len(events))
	for _, e := range events {
		payload := ""
		if e.PayloadJSON != nil {
			payload = *e.PayloadJSON
		}
		eventRows = append(eventRows, table.Row{
			fmt.Sprintf("%d", e.ID),
			e.EventType,
			e.CreatedAt.Format("15:04:05"),
			payload,
		})
	}
	eventsTable := table.New(
		table.WithColumns([]table.Column{
			{Title: "#", Width: 4},
			{Title: "Event", Width: 22},
			{Title: "Time", Width: 10},
			{Title: "Payload", Width: 40},
		}),
		table.WithRows(eventRows),
		table.WithFocused(true),
	)

	artifactRows := make([]table.Row, 0, len(artifacts))
	for _, a := range artifacts {
		checksum := ""
		if a.Checksum != nil {
			checksum = *a.Checksum
		}
		verifiedAt := ""
		if a.VerifiedAt != nil {
			verifiedAt = a.VerifiedAt.Format("15:04:05")
		}
		artifactRows = append(artifactRows, table.Row{
			a.Path, fmt.Sprintf("%v", a.Verified), checksum, verifiedAt,
		})
	}
	artifactsTable := table.New(
		table.WithColumns([]table.Column{
			{Title: "Path", Width: 30},
			{Title: "Verified", Width: 10},
			{Title: "Checksum", Width: 20},
			{Title: "Verified At", Width: 12},
		}),
		table.WithRows(artifactRows),
	)

	renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle())
	if err != nil {
		renderer = nil
	}

	return &inspectModel{
		run:       run,
		events:    eventsTable,
		artifacts: artifactsTable,
		renderer:  renderer,
	}, nil
}

func (m *inspectModel) Init() tea.Cmd { return nil }

func (m *inspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "tab":
			m.focusIdx = (m.focusIdx + 1) % 2
			if m.focusIdx == 0 {
				m.events.Focus()
				m.artifacts.Blur()
			} else {
				m.artifacts.Focus()
				m.events.Blur()
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	if m.focusIdx == 0 {
		m.events, cmd = m.events.Update(msg)
	} else {
		m.artifacts, cmd = m.artifacts.Update(msg)
	}
	return m, cmd
}

func (m *inspectModel) View() string {
	header := fmt.Sprintf("task %s  status=%s  attempts=%d  provider_retries=%d\n%q",
		m.run.ID, m.run.Status, m.run.AttemptCount, m.run.ProviderRetryCount, m.run.OriginalRequest)

	eventsBox := unfocusedBorder
	artifactsBox := unfocusedBorder
	if m.focusIdx == 0 {
		eventsBox = focusedBorder
	} else {
		artifactsBox = focusedBorder
	}

	response := "(no response recorded yet)"
	if m.run.LastResponse != nil {
		response = *m.run.LastResponse
		if m.renderer != nil {
			if rendered, err := m.renderer.Render(response); err == nil {
				response = rendered
			}
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		eventsBox.Render(m.events.View()),
		artifactsBox.Render(m.artifacts.View()),
		response,
		"\n(tab: switch focus, q: quit)",
	)
}
