// Command parley is a terminal client for the parley chat server.
package main

import (
	"os"

	"parley/parley/utils/color"

	"github.com/spf13/cobra"
)

type options struct {
	Server   string
	DeviceID string
	NoColor  bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:     "parley",
		Short:   "Chat with the parley server from a terminal",
		Version: "1.0",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.NoColor {
				color.Disable()
			}
		},
	}
	server := os.Getenv("PARLEY_SERVER")
	if server == "" {
		server = "http://localhost:4000"
	}
	cmd.PersistentFlags().StringVarP(&opts.Server, "server", "s", server, "Server URL")
	cmd.PersistentFlags().StringVar(&opts.DeviceID, "device", "", "Device id (defaults to the one stored in ~/.parley/device_id)")
	cmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "Disable colored output")

	cmd.AddCommand(newChatsCmd(opts))
	cmd.AddCommand(newNewCmd(opts))
	cmd.AddCommand(newChatCmd(opts))
	cmd.AddCommand(newDeleteCmd(opts))
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
