// Command modular-world runs the shared 2D world server: rooms on an
// integer grid, live presence over websockets, persisted modules and chat.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "modular-world",
		Short: "Multi-user grid world server",
		Long: `modular-world serves a grid of rooms addressed by integer coordinates.

Players connect over a websocket, join a room, move, chat and edit the
room's modules. Modules and chat history are persisted in SQLite (or
PostgreSQL when DATABASE_URL is set). Running without a subcommand
starts the server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(loadConfig())
		},
	}

	rootCmd.AddCommand(
		serveCmd(),
		schemaCmd(),
		tokenCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
