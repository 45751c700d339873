package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"jarvis/internal/ipc"
)

var socket string

func main() {
	root := &cobra.Command{
		Use:           "jarvis-ctl",
		Short:         "Control a running jarvis daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&socket, "socket", "s", ipc.DefaultSocket(), "Control socket path")

	root.AddCommand(
		command("trigger", "Open the attention window and listen once", cobra.NoArgs),
		command("say <text>", "Speak text", cobra.MinimumNArgs(1)),
		command("hear <text>", "Inject text as if it was heard", cobra.MinimumNArgs(1)),
		command("transcribe <file>", "Transcribe a wav/mp3/ogg/opus file", cobra.ExactArgs(1)),
		command("learn <wrong> <right>", "Add a transcription correction", cobra.ExactArgs(2)),
		command("ignore <phrase>", "Add a phrase to the ignore list", cobra.MinimumNArgs(1)),
		command("remember <fact>", "Store a fact in long-term memory", cobra.MinimumNArgs(1)),
		command("recall <query>", "Search long-term memory", cobra.MinimumNArgs(1)),
		command("status", "Show daemon state", cobra.NoArgs),
		command("shutdown", "Stop the daemon", cobra.NoArgs),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func command(use, short string, args cobra.PositionalArgs) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 90*time.Second)
			defer cancel()

			resp, err := ipc.Send(ctx, socket, ipc.Request{Cmd: cmd.Name(), Args: args})
			if err != nil {
				return fmt.Errorf("jarvis not running: %w", err)
			}
			if !resp.OK {
				return fmt.Errorf("%s: %s", cmd.Name(), resp.Output)
			}
			if resp.Output != "" {
				fmt.Println(resp.Output)
			}
			return nil
		},
	}
}
