package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	rcrypto "ratchetroom/internal/crypto"
	"ratchetroom/internal/orchestrator"
	"ratchetroom/internal/protocol/doubleratchet"
	"ratchetroom/internal/protocol/keyderive"
	"ratchetroom/internal/protocol/x3dh"
	"ratchetroom/internal/transport"
	"ratchetroom/internal/wire"
)

// directDemoCmd runs a two-party direct-mode session entirely in one
// process: it derives both identities, exchanges the X3DH handshake and
// one chat message over an in-memory transport, and prints each frame as
// it crosses the wire so the tiebreak and ratchet output are visible.
func directDemoCmd() *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "direct-demo",
		Short: "Run a two-party X3DH + Double Ratchet handshake and message exchange locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			hub := transport.NewHub()

			aliceAddr, bobAddr := "0xalice", "0xbob"
			aliceRoom := orchestrator.NewRoom(aliceAddr, orchestrator.ModeDirect, orchestrator.NopEvents{}, nil)
			bobRoom := orchestrator.NewRoom(bobAddr, orchestrator.ModeDirect, orchestrator.NopEvents{}, nil)
			aliceLink := hub.Join(aliceAddr)
			bobLink := hub.Join(bobAddr)

			seedA := keyderive.DeriveMasterSeed([]byte("alice-demo-signature"))
			seedB := keyderive.DeriveMasterSeed([]byte("bob-demo-signature"))
			channelHash := rcrypto.SHA256([]byte("demo-room"))

			if err := aliceRoom.DeriveRoomKeyPair(seedA, channelHash); err != nil {
				return err
			}
			if err := bobRoom.DeriveRoomKeyPair(seedB, channelHash); err != nil {
				return err
			}

			alicePub, _ := aliceRoom.MyPublicKey()
			bobPub, _ := bobRoom.MyPublicKey()

			// Alice announces her arrival over the wire; bob answers with
			// his own key. Only once alice has actually observed bob's key
			// back does the tiebreak produce her X3DHInit.
			joinedFrame := wire.EncodeUserJoined(aliceAddr, alicePub)
			if err := sendJSON(ctx, aliceLink, bobAddr, joinedFrame); err != nil {
				return err
			}
			fmt.Printf("alice -> bob: %s\n", joinedFrame.Type)

			_, joinedRaw, err := bobLink.Recv(ctx)
			if err != nil {
				return err
			}
			var joinedIn wire.UserJoined
			if err := json.Unmarshal(joinedRaw, &joinedIn); err != nil {
				return err
			}
			fromAddr, fromPub, err := wire.DecodeUserJoined(joinedIn)
			if err != nil {
				return err
			}
			if _, err := bobRoom.PeerPublicKeyObserved(fromAddr, fromPub); err != nil {
				return err
			}

			hereFrame := wire.EncodeIAmHere(bobAddr, bobPub)
			if err := sendJSON(ctx, bobLink, aliceAddr, hereFrame); err != nil {
				return err
			}
			fmt.Printf("bob -> alice: %s\n", hereFrame.Type)

			_, hereRaw, err := aliceLink.Recv(ctx)
			if err != nil {
				return err
			}
			var hereIn wire.IAmHere
			if err := json.Unmarshal(hereRaw, &hereIn); err != nil {
				return err
			}
			hereAddr, herePub, err := wire.DecodeIAmHere(hereIn)
			if err != nil {
				return err
			}
			initMsg, err := aliceRoom.PeerPublicKeyObserved(hereAddr, herePub)
			if err != nil {
				return err
			}
			if initMsg == nil {
				return fmt.Errorf("direct-demo: tiebreak did not select alice as initiator for %q < %q", aliceAddr, bobAddr)
			}

			initFrame := wire.X3DHInit{
				Type:               wire.TypeX3DHInit,
				FromAddress:        initMsg.FromAddress,
				IdentityPublicKey:  rcrypto.ExportJWK(initMsg.IdentityPublic),
				EphemeralPublicKey: rcrypto.ExportJWK(initMsg.EphemeralPublic),
			}
			if err := sendJSON(ctx, aliceLink, bobAddr, initFrame); err != nil {
				return err
			}
			fmt.Printf("alice -> bob: %s\n", initFrame.Type)

			_, raw, err := bobLink.Recv(ctx)
			if err != nil {
				return err
			}
			var inFrame wire.X3DHInit
			if err := json.Unmarshal(raw, &inFrame); err != nil {
				return err
			}
			identityPub, err := rcrypto.ImportJWK(inFrame.IdentityPublicKey)
			if err != nil {
				return err
			}
			ephPub, err := rcrypto.ImportJWK(inFrame.EphemeralPublicKey)
			if err != nil {
				return err
			}

			respMsg, err := bobRoom.HandleX3DHInit(x3dh.InitMessage{
				FromAddress:     inFrame.FromAddress,
				IdentityPublic:  identityPub,
				EphemeralPublic: ephPub,
			})
			if err != nil {
				return err
			}

			respFrame := wire.X3DHResponse{
				Type:               wire.TypeX3DHResponse,
				FromAddress:        respMsg.FromAddress,
				IdentityPublicKey:  rcrypto.ExportJWK(respMsg.IdentityPublic),
				EphemeralPublicKey: rcrypto.ExportJWK(respMsg.EphemeralPublic),
			}
			if err := sendJSON(ctx, bobLink, aliceAddr, respFrame); err != nil {
				return err
			}
			fmt.Printf("bob -> alice: %s\n", respFrame.Type)

			_, raw2, err := aliceLink.Recv(ctx)
			if err != nil {
				return err
			}
			var outFrame wire.X3DHResponse
			if err := json.Unmarshal(raw2, &outFrame); err != nil {
				return err
			}
			respIdentity, err := rcrypto.ImportJWK(outFrame.IdentityPublicKey)
			if err != nil {
				return err
			}
			respEph, err := rcrypto.ImportJWK(outFrame.EphemeralPublicKey)
			if err != nil {
				return err
			}
			if err := aliceRoom.HandleX3DHResponse(x3dh.ResponseMessage{
				FromAddress:     outFrame.FromAddress,
				IdentityPublic:  respIdentity,
				EphemeralPublic: respEph,
			}); err != nil {
				return err
			}

			fmt.Printf("room status: alice=%s bob=%s\n", aliceRoom.Status(), bobRoom.Status())

			drMsgAny, err := aliceRoom.EncryptMessage([]byte(message))
			if err != nil {
				return err
			}
			chatFrame := wire.EncodeDoubleRatchetMsg(aliceAddr, drMsgAny.(doubleratchet.Message))
			if err := sendJSON(ctx, aliceLink, bobAddr, chatFrame); err != nil {
				return err
			}
			fmt.Printf("alice -> bob: %s %q\n", chatFrame.Type, message)

			_, raw3, err := bobLink.Recv(ctx)
			if err != nil {
				return err
			}
			var inChat wire.DoubleRatchetMsg
			if err := json.Unmarshal(raw3, &inChat); err != nil {
				return err
			}
			drMsg, err := wire.DecodeDoubleRatchetMsg(inChat)
			if err != nil {
				return err
			}
			plaintext, err := bobRoom.DecryptDirect(aliceAddr, drMsg)
			if err != nil {
				return err
			}
			fmt.Printf("bob received: %q\n", string(plaintext))
			return nil
		},
	}

	cmd.Flags().StringVar(&message, "message", "hello from the direct demo", "plaintext to send from alice to bob")
	return cmd
}

func sendJSON(ctx context.Context, link *transport.Memory, to string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return link.Send(ctx, to, b)
}
