package commands

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	rcrypto "ratchetroom/internal/crypto"
	"ratchetroom/internal/orchestrator"
	"ratchetroom/internal/protocol/keyderive"
	"ratchetroom/internal/protocol/x3dh"
	"ratchetroom/internal/wire"
)

// joinCmd runs the X3DH handshake against one peer over the relay and
// persists the resulting Double Ratchet session, so send and recv can
// each start a fresh process against it afterward.
func joinCmd() *cobra.Command {
	var (
		signatureHex string
		channel      string
		peer         string
	)

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Exchange keys with a peer over the relay and persist the resulting session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if address == "" {
				return fmt.Errorf("join: --address is required")
			}
			if peer == "" {
				return fmt.Errorf("join: --peer is required")
			}
			ctx := context.Background()

			seed, err := loadOrDeriveSeed(ctx, signatureHex)
			if err != nil {
				return fmt.Errorf("join: %w", err)
			}

			channelHash := rcrypto.SHA256([]byte(channel))
			room := orchestrator.NewRoom(address, orchestrator.ModeDirect, orchestrator.NopEvents{}, nil)
			if err := room.DeriveRoomKeyPair(seed, channelHash); err != nil {
				return fmt.Errorf("join: derive room key pair: %w", err)
			}
			myPub, _ := room.MyPublicKey()

			// Both sides announce their identity key before either side
			// commits to a tiebreak decision.
			pubFrame := wire.EncodeEncryptionPubkey(address, myPub)
			if err := sendFrame(ctx, peer, pubFrame); err != nil {
				return fmt.Errorf("join: announce identity: %w", err)
			}
			fmt.Printf("%s -> %s: %s\n", address, peer, pubFrame.Type)

			_, raw, err := recvFrameType(ctx, wire.TypeEncryptionPubkey)
			if err != nil {
				return fmt.Errorf("join: await peer identity: %w", err)
			}
			var pubIn wire.EncryptionPubkey
			if err := json.Unmarshal(raw, &pubIn); err != nil {
				return err
			}
			peerAddr, peerPub, err := wire.DecodeEncryptionPubkey(pubIn)
			if err != nil {
				return fmt.Errorf("join: decode peer identity: %w", err)
			}
			fmt.Printf("%s <- %s: %s\n", address, peerAddr, pubIn.Type)

			initMsg, err := room.PeerPublicKeyObserved(peerAddr, peerPub)
			if err != nil {
				return fmt.Errorf("join: observe peer key: %w", err)
			}

			if initMsg != nil {
				initFrame := wire.X3DHInit{
					Type:               wire.TypeX3DHInit,
					FromAddress:        initMsg.FromAddress,
					IdentityPublicKey:  rcrypto.ExportJWK(initMsg.IdentityPublic),
					EphemeralPublicKey: rcrypto.ExportJWK(initMsg.EphemeralPublic),
				}
				if err := sendFrame(ctx, peer, initFrame); err != nil {
					return fmt.Errorf("join: send x3dh init: %w", err)
				}
				fmt.Printf("%s -> %s: %s\n", address, peer, initFrame.Type)

				_, raw, err := recvFrameType(ctx, wire.TypeX3DHResponse)
				if err != nil {
					return fmt.Errorf("join: await x3dh response: %w", err)
				}
				var respFrame wire.X3DHResponse
				if err := json.Unmarshal(raw, &respFrame); err != nil {
					return err
				}
				identityPub, err := rcrypto.ImportJWK(respFrame.IdentityPublicKey)
				if err != nil {
					return err
				}
				ephPub, err := rcrypto.ImportJWK(respFrame.EphemeralPublicKey)
				if err != nil {
					return err
				}
				if err := room.HandleX3DHResponse(x3dh.ResponseMessage{
					FromAddress:     respFrame.FromAddress,
					IdentityPublic:  identityPub,
					EphemeralPublic: ephPub,
				}); err != nil {
					return fmt.Errorf("join: handle x3dh response: %w", err)
				}
			} else {
				_, raw, err := recvFrameType(ctx, wire.TypeX3DHInit)
				if err != nil {
					return fmt.Errorf("join: await x3dh init: %w", err)
				}
				var initFrame wire.X3DHInit
				if err := json.Unmarshal(raw, &initFrame); err != nil {
					return err
				}
				identityPub, err := rcrypto.ImportJWK(initFrame.IdentityPublicKey)
				if err != nil {
					return err
				}
				ephPub, err := rcrypto.ImportJWK(initFrame.EphemeralPublicKey)
				if err != nil {
					return err
				}
				respMsg, err := room.HandleX3DHInit(x3dh.InitMessage{
					FromAddress:     initFrame.FromAddress,
					IdentityPublic:  identityPub,
					EphemeralPublic: ephPub,
				})
				if err != nil {
					return fmt.Errorf("join: handle x3dh init: %w", err)
				}
				respFrame := wire.X3DHResponse{
					Type:               wire.TypeX3DHResponse,
					FromAddress:        respMsg.FromAddress,
					IdentityPublicKey:  rcrypto.ExportJWK(respMsg.IdentityPublic),
					EphemeralPublicKey: rcrypto.ExportJWK(respMsg.EphemeralPublic),
				}
				if err := sendFrame(ctx, peer, respFrame); err != nil {
					return fmt.Errorf("join: send x3dh response: %w", err)
				}
				fmt.Printf("%s -> %s: %s\n", address, peer, respFrame.Type)
			}

			snap, ok := room.SnapshotDirect(peer)
			if !ok {
				return fmt.Errorf("join: no session established with %s", peer)
			}
			if err := wireCtx.Rooms.Save(ctx, address, snap); err != nil {
				return fmt.Errorf("join: persist session: %w", err)
			}
			fmt.Printf("session with %s ready\n", peer)
			return nil
		},
	}

	cmd.Flags().StringVar(&signatureHex, "signature", "", "hex-encoded wallet signature, only needed the first time this address joins")
	cmd.Flags().StringVar(&channel, "channel", "lobby", "room/channel name, hashed into the room identity")
	cmd.Flags().StringVar(&peer, "peer", "", "peer wallet address to establish a session with")
	return cmd
}

// loadOrDeriveSeed returns this address's cached MasterSeed, deriving and
// caching it from signatureHex on first use.
func loadOrDeriveSeed(ctx context.Context, signatureHex string) ([32]byte, error) {
	seed, ok, err := wireCtx.Seeds.LoadSeed(ctx, address)
	if err != nil {
		return [32]byte{}, fmt.Errorf("load seed: %w", err)
	}
	if ok {
		return seed, nil
	}
	if signatureHex == "" {
		return [32]byte{}, fmt.Errorf("no cached seed for %s, pass --signature once", address)
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return [32]byte{}, fmt.Errorf("decode signature: %w", err)
	}
	seed = keyderive.DeriveMasterSeed(sig)
	if err := wireCtx.Seeds.SaveSeed(ctx, address, seed); err != nil {
		return [32]byte{}, fmt.Errorf("cache seed: %w", err)
	}
	return seed, nil
}
