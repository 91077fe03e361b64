package commands

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	rcrypto "ratchetroom/internal/crypto"
	"ratchetroom/internal/protocol/keyderive"
)

func deriveRoomKeyCmd() *cobra.Command {
	var (
		signatureHex string
		channel      string
	)

	cmd := &cobra.Command{
		Use:   "derive-room-key",
		Short: "Derive this wallet's deterministic room identity from a signature",
		RunE: func(cmd *cobra.Command, args []string) error {
			if signatureHex == "" {
				return fmt.Errorf("derive-room-key: --signature is required")
			}
			sig, err := hex.DecodeString(signatureHex)
			if err != nil {
				return fmt.Errorf("derive-room-key: decode signature: %w", err)
			}

			seed := keyderive.DeriveMasterSeed(sig)
			if err := wireCtx.Seeds.SaveSeed(context.Background(), address, seed); err != nil {
				return fmt.Errorf("derive-room-key: cache seed: %w", err)
			}

			channelHash := rcrypto.SHA256([]byte(channel))
			pair, err := keyderive.DeriveRoomKeyPair(seed, channelHash)
			if err != nil {
				return err
			}

			jwk := rcrypto.ExportJWK(pair.Public)
			fmt.Printf("room %q identity for %s:\n  x=%s\n  y=%s\n", channel, address, jwk.X, jwk.Y)
			return nil
		},
	}

	cmd.Flags().StringVar(&signatureHex, "signature", "", "hex-encoded wallet signature over the fixed derivation message")
	cmd.Flags().StringVar(&channel, "channel", "lobby", "room/channel name, hashed into the room identity")
	return cmd
}
