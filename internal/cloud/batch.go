package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"

	"spoky/internal/action"
)

// batchSender POSTs JSON batches to an HTTP ingest endpoint, optionally
// dialing through a SOCKS5 proxy.
type batchSender struct {
	endpoint string
	client   *http.Client
}

func newBatchSender(endpoint, socksAddr string) (*batchSender, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	if socksAddr != "" {
		dialer, err := proxy.SOCKS5("tcp", socksAddr, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("dial socks proxy: %w", err)
		}
		client.Transport = &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			},
		}
	}
	return &batchSender{endpoint: endpoint, client: client}, nil
}

func (b *batchSender) send(batch []action.Record) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	resp, err := b.client.Post(b.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post batch: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("ingest returned %s", resp.Status)
	}
	return nil
}

func (b *batchSender) close() error {
	b.client.CloseIdleConnections()
	return nil
}
