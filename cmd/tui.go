package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dooseok913/music-front/internal/shared"
	"github.com/dooseok913/music-front/internal/tasks"
	"github.com/dooseok913/music-front/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI logs in when needed, synchronizes and lets the user browse the result.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	closeLog, err := r.logToFile(cmd.String("log-file"))
	if err != nil {
		return err
	}
	defer closeLog()

	engine, err := r.newEngine(true, 0)
	if err != nil {
		return err
	}

	model, err := r.runTUI(ctx, engine, ui.LoginAndSync)
	if err != nil {
		return err
	}
	return model.Err()
}

// runTUI runs a model in mode until the user quits.
func (r *Runner) runTUI(ctx context.Context, engine *tasks.LibraryEngine, mode ui.Mode) (*ui.Model, error) {
	model := ui.NewModel(ctx, engine, mode)
	if _, err := tea.NewProgram(model, tea.WithContext(ctx)).Run(); err != nil {
		return nil, fmt.Errorf("error running TUI: %w", err)
	}
	return model, nil
}

// logToFile swaps the runner's logger for one writing to path and returns a
// func that restores it.
func (r *Runner) logToFile(path string) (func(), error) {
	fileLogger, closer, err := shared.NewFileLogger(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file logger: %w", err)
	}
	fileLogger.SetLevel(r.logger.GetLevel())

	previous := r.logger
	r.SetLogger(fileLogger)
	return func() {
		r.SetLogger(previous)
		closer.Close()
	}, nil
}
