package commands

import (
	"context"
	"encoding/json"

	"ratchetroom/internal/wire"
)

// sendFrame marshals v and hands it to the shared transport, the HTTP
// analogue of directdemo.go's in-memory sendJSON helper.
func sendFrame(ctx context.Context, to string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return wireCtx.Transport.Send(ctx, to, b)
}

// recvFrameType blocks on the shared transport until a frame tagged
// wantType arrives, discarding anything else. join/send/recv only ever
// expect one frame shape at a time, so a relay interleaving other traffic
// on the same address is not a protocol error.
func recvFrameType(ctx context.Context, wantType string) (string, json.RawMessage, error) {
	for {
		from, frame, err := wireCtx.Transport.Recv(ctx)
		if err != nil {
			return "", nil, err
		}
		var env wire.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			return "", nil, err
		}
		if env.Type == wantType {
			return from, frame, nil
		}
	}
}
