// Command roomcli is the reference CLI for the messaging core: deriving
// per-room identities from a wallet signature and driving the direct,
// group, and media-transfer flows end to end.
package main

import (
	"fmt"
	"os"

	"ratchetroom/cmd/roomcli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
