package commands

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"ratchetroom/internal/config"
	"ratchetroom/internal/protocol/media"
	"ratchetroom/internal/transport"
	"ratchetroom/internal/wire"
)

// transferDemoCmd chunks a synthetic in-memory payload, carries it across
// an in-memory transport as file_transfer_start/_chunk/_complete frames,
// and reassembles it at the receiver.
func transferDemoCmd() *cobra.Command {
	var sizeBytes int

	cmd := &cobra.Command{
		Use:   "transfer-demo",
		Short: "Chunk, send, and reassemble a synthetic file locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			hub := transport.NewHub()
			senderAddr, recvAddr := "0xalice", "0xbob"
			senderLink := hub.Join(senderAddr)
			recvLink := hub.Join(recvAddr)

			payload := make([]byte, sizeBytes)
			if _, err := rand.Read(payload); err != nil {
				return err
			}

			meta, chunks, err := media.PrepareOutgoing("demo.png", "image/png", media.MediaImage, payload, config.ChunkSize)
			if err != nil {
				return err
			}

			startFrame := wire.EncodeTransferStart(meta)
			if err := sendJSON(ctx, senderLink, recvAddr, startFrame); err != nil {
				return err
			}
			for _, c := range chunks {
				chunkFrame := wire.EncodeTransferChunk(senderAddr, c)
				if err := sendJSON(ctx, senderLink, recvAddr, chunkFrame); err != nil {
					return err
				}
			}
			completeFrame := wire.TransferComplete{Type: wire.TypeTransferComplete, TransferID: meta.TransferID, Sender: senderAddr}
			if err := sendJSON(ctx, senderLink, recvAddr, completeFrame); err != nil {
				return err
			}
			fmt.Printf("alice sent %d bytes across %d chunks\n", meta.FileSize, meta.TotalChunks)

			var incoming *media.Incoming
			for i := 0; i < int(meta.TotalChunks)+2; i++ {
				_, raw, err := recvLink.Recv(ctx)
				if err != nil {
					return err
				}
				var env wire.Envelope
				if err := json.Unmarshal(raw, &env); err != nil {
					return err
				}
				switch env.Type {
				case wire.TypeTransferStart:
					var f wire.TransferStart
					if err := json.Unmarshal(raw, &f); err != nil {
						return err
					}
					decodedMeta, err := wire.DecodeTransferStart(f)
					if err != nil {
						return err
					}
					incoming = media.NewIncoming(decodedMeta, nil)
				case wire.TypeTransferChunk:
					var f wire.TransferChunk
					if err := json.Unmarshal(raw, &f); err != nil {
						return err
					}
					chunk, err := wire.DecodeTransferChunk(f)
					if err != nil {
						return err
					}
					if err := incoming.AddChunk(chunk); err != nil {
						return err
					}
				case wire.TypeTransferComplete:
					incoming.SignalComplete()
				}
			}

			out, err := incoming.Reassemble()
			if err != nil {
				return err
			}
			fmt.Printf("bob reassembled %d bytes, status=%s\n", len(out), incoming.Status())
			if len(out) != len(payload) {
				return fmt.Errorf("transfer-demo: size mismatch, sent %d got %d", len(payload), len(out))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&sizeBytes, "size", 40000, "synthetic payload size in bytes")
	return cmd
}
