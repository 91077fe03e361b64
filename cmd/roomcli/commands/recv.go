package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"ratchetroom/internal/wire"
)

// recvCmd blocks on the relay for the next chat frame from peer, decrypts
// it against the session join persisted, and prints the plaintext.
func recvCmd() *cobra.Command {
	var peer string

	cmd := &cobra.Command{
		Use:   "recv",
		Short: "Block for and decrypt the next message from a peer",
		RunE: func(cmd *cobra.Command, args []string) error {
			if address == "" {
				return fmt.Errorf("recv: --address is required")
			}
			if peer == "" {
				return fmt.Errorf("recv: --peer is required")
			}
			ctx := context.Background()

			room, err := loadDirectRoom(ctx, peer)
			if err != nil {
				return fmt.Errorf("recv: %w", err)
			}

			_, raw, err := recvFrameType(ctx, wire.TypeChat)
			if err != nil {
				return fmt.Errorf("recv: await message: %w", err)
			}
			var inChat wire.DoubleRatchetMsg
			if err := json.Unmarshal(raw, &inChat); err != nil {
				return err
			}
			drMsg, err := wire.DecodeDoubleRatchetMsg(inChat)
			if err != nil {
				return fmt.Errorf("recv: decode frame: %w", err)
			}

			plaintext, err := room.DecryptDirect(peer, drMsg)
			if err != nil {
				return fmt.Errorf("recv: decrypt: %w", err)
			}

			snap, ok := room.SnapshotDirect(peer)
			if !ok {
				return fmt.Errorf("recv: lost session with %s mid-receive", peer)
			}
			if err := wireCtx.Rooms.Save(ctx, address, snap); err != nil {
				return fmt.Errorf("recv: persist session: %w", err)
			}

			fmt.Printf("%s received from %s: %q\n", address, peer, string(plaintext))
			return nil
		},
	}

	cmd.Flags().StringVar(&peer, "peer", "", "peer wallet address to receive from")
	return cmd
}
