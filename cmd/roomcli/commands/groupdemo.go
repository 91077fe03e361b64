package commands

import (
	"context"
	"crypto/ecdh"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	rcrypto "ratchetroom/internal/crypto"
	"ratchetroom/internal/orchestrator"
	"ratchetroom/internal/protocol/keyderive"
	"ratchetroom/internal/protocol/senderkey"
	"ratchetroom/internal/transport"
	"ratchetroom/internal/wire"
)

// groupDemoCmd runs a three-member group session: sender-key distribution
// from one member to the other two, a group chat message, and a
// rekey-on-leave that proves the departing member can no longer decrypt.
func groupDemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group-demo",
		Short: "Run a three-member sender-key distribution, message, and rekey-on-leave locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			hub := transport.NewHub()

			members := map[string]*orchestrator.Room{
				"0xalice": orchestrator.NewRoom("0xalice", orchestrator.ModeGroup, orchestrator.NopEvents{}, nil),
				"0xbob":   orchestrator.NewRoom("0xbob", orchestrator.ModeGroup, orchestrator.NopEvents{}, nil),
				"0xcarol": orchestrator.NewRoom("0xcarol", orchestrator.ModeGroup, orchestrator.NopEvents{}, nil),
			}
			links := map[string]*transport.Memory{}
			for addr := range members {
				links[addr] = hub.Join(addr)
			}

			channelHash := rcrypto.SHA256([]byte("demo-group"))
			pubKeys := map[string]*ecdh.PublicKey{}
			for addr, room := range members {
				seed := keyderive.DeriveMasterSeed([]byte(addr + "-demo-signature"))
				if err := room.DeriveRoomKeyPair(seed, channelHash); err != nil {
					return err
				}
				pub, _ := room.MyPublicKey()
				pubKeys[addr] = pub
			}

			// Members join one at a time over the wire: a newcomer
			// broadcasts UserJoined to whoever is already present, each of
			// them observes the newcomer's key and answers with IAmHere,
			// and the newcomer observes every reply in turn.
			joinOrder := []string{"0xalice", "0xbob", "0xcarol"}
			var joined []string
			for _, addr := range joinOrder {
				room := members[addr]
				link := links[addr]

				if len(joined) > 0 {
					joinFrame := wire.EncodeUserJoined(addr, pubKeys[addr])
					for _, existing := range joined {
						if err := sendJSON(ctx, link, existing, joinFrame); err != nil {
							return err
						}
					}
					for _, existing := range joined {
						existingRoom := members[existing]
						existingLink := links[existing]

						_, raw, err := existingLink.Recv(ctx)
						if err != nil {
							return err
						}
						var in wire.UserJoined
						if err := json.Unmarshal(raw, &in); err != nil {
							return err
						}
						fromAddr, fromPub, err := wire.DecodeUserJoined(in)
						if err != nil {
							return err
						}
						if _, err := existingRoom.PeerPublicKeyObserved(fromAddr, fromPub); err != nil {
							return err
						}

						hereFrame := wire.EncodeIAmHere(existing, pubKeys[existing])
						if err := sendJSON(ctx, existingLink, addr, hereFrame); err != nil {
							return err
						}
					}
					for range joined {
						_, raw, err := link.Recv(ctx)
						if err != nil {
							return err
						}
						var in wire.IAmHere
						if err := json.Unmarshal(raw, &in); err != nil {
							return err
						}
						hereAddr, herePub, err := wire.DecodeIAmHere(in)
						if err != nil {
							return err
						}
						if _, err := room.PeerPublicKeyObserved(hereAddr, herePub); err != nil {
							return err
						}
					}
				}
				joined = append(joined, addr)
			}

			// Alice distributes her sender key to Bob and Carol.
			for _, peerAddr := range []string{"0xbob", "0xcarol"} {
				env, err := members["0xalice"].DistributeSenderKey(peerAddr)
				if err != nil {
					return err
				}
				frame := wire.EncodeSenderKeyEnvelope(env)
				if err := sendJSON(ctx, links["0xalice"], peerAddr, frame); err != nil {
					return err
				}
				_, raw, err := links[peerAddr].Recv(ctx)
				if err != nil {
					return err
				}
				var inFrame wire.SenderKeyEnvelope
				if err := json.Unmarshal(raw, &inFrame); err != nil {
					return err
				}
				decoded, err := wire.DecodeSenderKeyEnvelope(inFrame)
				if err != nil {
					return err
				}
				if err := members[peerAddr].ReceiveSenderKeyEnvelope("0xalice", decoded); err != nil {
					return err
				}
			}

			msgAny, err := members["0xalice"].EncryptMessage([]byte("group hello"))
			if err != nil {
				return err
			}
			groupMsg := msgAny.(senderkey.Message)
			chatFrame := wire.EncodeGroupMsg(groupMsg)

			for _, peerAddr := range []string{"0xbob", "0xcarol"} {
				if err := sendJSON(ctx, links["0xalice"], peerAddr, chatFrame); err != nil {
					return err
				}
				_, raw, err := links[peerAddr].Recv(ctx)
				if err != nil {
					return err
				}
				var inChat wire.GroupMsg
				if err := json.Unmarshal(raw, &inChat); err != nil {
					return err
				}
				decoded, err := wire.DecodeGroupMsg(inChat)
				if err != nil {
					return err
				}
				plaintext, err := members[peerAddr].DecryptGroup("0xalice", decoded)
				if err != nil {
					return err
				}
				fmt.Printf("%s received: %q\n", peerAddr, string(plaintext))
			}

			// Carol broadcasts her own departure to whoever the hub still
			// has registered besides her; every remaining member reacts to
			// the wire frame rather than a bare local call.
			stillPresent := hub.Peers("0xcarol")
			leftFrame := wire.EncodeUserLeft("0xcarol")
			for _, peerAddr := range stillPresent {
				if err := sendJSON(ctx, links["0xcarol"], peerAddr, leftFrame); err != nil {
					return err
				}
			}
			hub.Leave("0xcarol")

			var remaining []string
			for _, peerAddr := range stillPresent {
				_, raw, err := links[peerAddr].Recv(ctx)
				if err != nil {
					return err
				}
				var inLeft wire.UserLeft
				if err := json.Unmarshal(raw, &inLeft); err != nil {
					return err
				}
				departed := wire.DecodeUserLeft(inLeft)
				rekeyed, err := members[peerAddr].RekeyOnMemberLeave(departed)
				if err != nil {
					return err
				}
				if peerAddr == "0xalice" {
					remaining = rekeyed
				}
			}
			fmt.Printf("carol left; alice rekeys for: %v\n", remaining)
			return nil
		},
	}
	return cmd
}
