package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"ratchetroom/internal/orchestrator"
	"ratchetroom/internal/protocol/doubleratchet"
	"ratchetroom/internal/wire"
)

// sendCmd encrypts one message against a session persisted by join and
// posts it to the relay, following the teacher's send.go/recv.go split of
// one subcommand per direction instead of an interactive chat loop.
func sendCmd() *cobra.Command {
	var (
		peer    string
		message string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Encrypt and send one message to a peer over a session established by join",
		RunE: func(cmd *cobra.Command, args []string) error {
			if address == "" {
				return fmt.Errorf("send: --address is required")
			}
			if peer == "" {
				return fmt.Errorf("send: --peer is required")
			}
			ctx := context.Background()

			room, err := loadDirectRoom(ctx, peer)
			if err != nil {
				return fmt.Errorf("send: %w", err)
			}

			msgAny, err := room.EncryptMessage([]byte(message))
			if err != nil {
				return fmt.Errorf("send: encrypt: %w", err)
			}
			msg, ok := msgAny.(doubleratchet.Message)
			if !ok {
				return fmt.Errorf("send: unexpected ciphertext type %T", msgAny)
			}

			frame := wire.EncodeDoubleRatchetMsg(address, msg)
			if err := sendFrame(ctx, peer, frame); err != nil {
				return fmt.Errorf("send: post frame: %w", err)
			}

			snap, ok := room.SnapshotDirect(peer)
			if !ok {
				return fmt.Errorf("send: lost session with %s mid-send", peer)
			}
			if err := wireCtx.Rooms.Save(ctx, address, snap); err != nil {
				return fmt.Errorf("send: persist session: %w", err)
			}

			fmt.Printf("%s -> %s: %s %q\n", address, peer, frame.Type, message)
			return nil
		},
	}

	cmd.Flags().StringVar(&peer, "peer", "", "peer wallet address to send to")
	cmd.Flags().StringVar(&message, "message", "", "plaintext to encrypt and send")
	return cmd
}

// loadDirectRoom restores the direct-mode session join persisted for
// (address, peer).
func loadDirectRoom(ctx context.Context, peer string) (*orchestrator.Room, error) {
	seed, err := loadOrDeriveSeed(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("load seed: %w", err)
	}
	snap, found, err := wireCtx.Rooms.Load(ctx, address, peer)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("no session with %s, run join first", peer)
	}

	room, err := orchestrator.RestoreDirect(seed, snap, orchestrator.NopEvents{}, nil)
	if err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}
	return room, nil
}
