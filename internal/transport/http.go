package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"ratchetroom/internal/domain/interfaces"
)

var _ interfaces.Transport = (*HTTP)(nil)

// HTTP is a demo relay client: it posts frames to /send/{to} and long-
// polls /recv/{self} for the next queued frame, following the teacher's
// post/getJSON helper split in internal/relay/http.go.
type HTTP struct {
	Base string
	Self string
	HTTP *http.Client
}

// NewHTTP builds a client bound to one participant address.
func NewHTTP(base, self string) *HTTP {
	return &HTTP{Base: base, Self: self, HTTP: http.DefaultClient}
}

func (c *HTTP) Send(ctx context.Context, toAddress string, frame []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Base+"/send/"+url.PathEscape(toAddress), bytes.NewReader(frame))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-From", c.Self)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("relay post: %s", resp.Status)
	}
	return nil
}

func (c *HTTP) Recv(ctx context.Context) (string, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Base+"/recv/"+url.PathEscape(c.Self), nil)
	if err != nil {
		return "", nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", nil, fmt.Errorf("relay get: %s", resp.Status)
	}
	var out struct {
		From  string          `json:"from"`
		Frame json.RawMessage `json:"frame"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", nil, err
	}
	return out.From, out.Frame, nil
}
