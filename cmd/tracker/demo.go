package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/antoniostano/tracker/internal/tasks"
)

func demoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Walk through conflicts and epic status derivation in memory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd.OutOrStdout())
		},
	}
}

func runDemo(out io.Writer) error {
	m := tasks.NewManager()
	at := func(raw string) (*time.Time, error) {
		ts, err := tasks.ParseTime(raw)
		if err != nil {
			return nil, err
		}
		return &ts, nil
	}

	startA, err := at("08.02.25 11:00")
	if err != nil {
		return err
	}
	a, err := m.AddTask(tasks.NewTask(tasks.Draft{Name: "A", Description: "first task", StartTime: startA, Duration: 180 * time.Minute}))
	if err != nil {
		return fmt.Errorf("add task A: %w", err)
	}
	fmt.Fprintf(out, "added %s; schedule size %d\n", describe(a), len(m.PrioritizedTasks()))

	startB, err := at("08.02.25 12:00")
	if err != nil {
		return err
	}
	_, err = m.AddTask(tasks.NewTask(tasks.Draft{Name: "B", Description: "overlaps A", StartTime: startB, Duration: time.Hour}))
	fmt.Fprintf(out, "add task B: %v; schedule size %d\n", err, len(m.PrioritizedTasks()))

	e, err := m.AddEpic(tasks.NewEpic("E", "demo epic"))
	if err != nil {
		return fmt.Errorf("add epic E: %w", err)
	}
	fmt.Fprintf(out, "added %s\n", describe(e))

	startS1, err := at("09.02.25 11:00")
	if err != nil {
		return err
	}
	s1, err := m.AddSubtask(tasks.NewSubtask(e.ID, tasks.Draft{Name: "S1", StartTime: startS1, Duration: time.Hour, Status: tasks.StatusDone}))
	if err != nil {
		return fmt.Errorf("add subtask S1: %w", err)
	}
	if err := printEpic(out, m, e.ID, "after S1"); err != nil {
		return err
	}

	startS2, err := at("09.02.25 13:00")
	if err != nil {
		return err
	}
	if _, err := m.AddSubtask(tasks.NewSubtask(e.ID, tasks.Draft{Name: "S2", StartTime: startS2, Duration: 30 * time.Minute})); err != nil {
		return fmt.Errorf("add subtask S2: %w", err)
	}
	if err := printEpic(out, m, e.ID, "after S2"); err != nil {
		return err
	}

	if err := m.RemoveSubtask(s1.ID); err != nil {
		return fmt.Errorf("remove subtask S1: %w", err)
	}
	if err := printEpic(out, m, e.ID, "after removing S1"); err != nil {
		return err
	}

	fmt.Fprintln(out, "prioritized:")
	for _, t := range m.PrioritizedTasks() {
		fmt.Fprintf(out, "  %s\n", describe(t))
	}
	return nil
}

func printEpic(out io.Writer, m *tasks.Manager, id int, label string) error {
	epic, err := m.GetEpic(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %s\n", label, describe(epic))
	return nil
}

func describe(t tasks.Task) string {
	window := "unscheduled"
	if end, err := t.EndTime(); err == nil {
		window = fmt.Sprintf("[%s, %s)", tasks.FormatTime(t.StartTime), tasks.FormatTime(end))
	}
	return fmt.Sprintf("%s %d %q %s %s", t.Kind, t.ID, t.Name, t.Status, window)
}
