// Package sysexec runs the desktop helpers the assistant shells out to
// (pactl, playerctl, xdg-open, app binaries).
package sysexec

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner starts or runs external commands.
type Runner interface {
	// Run waits for the command and returns its stdout.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	// Start launches the command detached from the assistant.
	Start(name string, args ...string) error
}

// Exec is the os/exec backed Runner.
type Exec struct{}

func (Exec) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return out, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

func (Exec) Start(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}
	// Reap in the background; the app outlives this call.
	go cmd.Wait()
	return nil
}
