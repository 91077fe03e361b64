// Package commands implements the roomcli subcommands, following the
// teacher's cmd/ciphera/commands layout: one file per subcommand, shared
// state wired once in a PersistentPreRunE.
package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"ratchetroom/internal/roomapp"
)

var (
	home     string
	relayURL string
	address  string

	wireCtx *roomapp.Wire
)

// Execute builds and runs the root cobra command.
func Execute() error {
	root := &cobra.Command{
		Use:   "roomcli",
		Short: "Wallet-authenticated end-to-end encrypted chat core, demoed from the shell",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".roomcli")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}

			w, err := roomapp.NewWire(roomapp.Config{Home: home, RelayURL: relayURL, Address: address})
			if err != nil {
				return err
			}
			wireCtx = w
			return nil
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "config dir (default ~/.roomcli)")
	root.PersistentFlags().StringVar(&relayURL, "relay", "http://127.0.0.1:8090", "roomrelay base URL")
	root.PersistentFlags().StringVar(&address, "address", "", "this participant's wallet address")

	root.AddCommand(deriveRoomKeyCmd(), joinCmd(), sendCmd(), recvCmd(), directDemoCmd(), groupDemoCmd(), transferDemoCmd())
	return root.Execute()
}
