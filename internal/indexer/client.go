// Package indexer is the client for the remote Umbra indexer: JSON-RPC
// 2.0 over HTTP for one-shot queries and websocket streams for the
// per-address transaction feed and the block feed.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/umbra-network/umbra-wallet/internal/ledger"
	"github.com/umbra-network/umbra-wallet/internal/reorg"
	"github.com/umbra-network/umbra-wallet/pkg/types"
)

// Client talks to one indexer endpoint.
type Client struct {
	rpcURL string
	wsURL  string
	http   *http.Client
	log    zerolog.Logger
}

// New creates a client. rpcURL is the JSON-RPC HTTP endpoint, wsURL the
// websocket base (e.g. "wss://indexer.example/ws").
func New(rpcURL, wsURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		rpcURL: rpcURL,
		wsURL:  wsURL,
		http: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// request is a JSON-RPC 2.0 request.
type request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      int         `json:"id"`
}

// response is a JSON-RPC 2.0 response.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      int             `json:"id"`
}

// rpcError is a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Call invokes a JSON-RPC method and unmarshals the result into the
// provided pointer. If result is nil, the response result is discarded.
func (c *Client) Call(ctx context.Context, method string, params, result interface{}) error {
	req := request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var rpcResp response
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return &DecodeError{Err: fmt.Errorf("decode response: %w", err)}
	}

	if rpcResp.Error != nil {
		return &RPCError{
			Code:    rpcResp.Error.Code,
			Message: rpcResp.Error.Message,
		}
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return &DecodeError{Err: fmt.Errorf("decode result: %w", err)}
		}
	}

	return nil
}

// NetworkHeight returns the indexer's current chain tip height.
func (c *Client) NetworkHeight(ctx context.Context) (uint64, error) {
	var height uint64
	if err := c.Call(ctx, "indexer_networkHeight", nil, &height); err != nil {
		return 0, err
	}
	return height, nil
}

// Health checks indexer liveness.
func (c *Client) Health(ctx context.Context) error {
	return c.Call(ctx, "indexer_health", nil, nil)
}

// eventsParams is the request payload for indexer_events.
type eventsParams struct {
	Address string `json:"address"`
	From    uint64 `json:"from"`
	To      uint64 `json:"to"`
}

// Events fetches the stream elements for one address in the sequence
// range [from, to] as a one-shot query. Useful for backfilling a gap
// without holding a subscription open.
func (c *Client) Events(ctx context.Context, addr types.Address, from, to uint64) ([]ledger.Update, error) {
	var raw []json.RawMessage
	params := eventsParams{Address: addr.String(), From: from, To: to}
	if err := c.Call(ctx, "indexer_events", params, &raw); err != nil {
		return nil, err
	}

	updates := make([]ledger.Update, 0, len(raw))
	for _, msg := range raw {
		u, err := decodeUpdate(msg)
		if err != nil {
			return nil, err
		}
		updates = append(updates, u)
	}
	return updates, nil
}

// UpdateStream is a live per-address transaction feed.
type UpdateStream interface {
	// Next blocks until the next stream element or an error. Stream
	// termination by the server surfaces as an error.
	Next(ctx context.Context) (ledger.Update, error)
	Close() error
}

// BlockStream is the live block digest feed.
type BlockStream interface {
	Next(ctx context.Context) (reorg.BlockDigest, error)
	Close() error
}

// SubscribeTransactions opens the transaction stream for one address,
// resuming after the given sequence id. fromSeq 0 replays from the
// beginning of the address's history.
func (c *Client) SubscribeTransactions(ctx context.Context, addr types.Address, fromSeq uint64) (UpdateStream, error) {
	u := fmt.Sprintf("%s/transactions?address=%s&from=%d",
		c.wsURL, url.QueryEscape(addr.String()), fromSeq)
	conn, _, err := websocket.Dial(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("dial transaction stream: %w", err)
	}
	// The feed can back up while the wallet applies updates; let the
	// library buffer instead of killing the connection.
	conn.SetReadLimit(1 << 22)

	c.log.Debug().
		Str("address", addr.String()).
		Uint64("from_seq", fromSeq).
		Msg("transaction stream opened")
	return &updateStream{conn: conn}, nil
}

// SubscribeBlocks opens the block digest stream.
func (c *Client) SubscribeBlocks(ctx context.Context) (BlockStream, error) {
	conn, _, err := websocket.Dial(ctx, c.wsURL+"/blocks", nil)
	if err != nil {
		return nil, fmt.Errorf("dial block stream: %w", err)
	}
	c.log.Debug().Msg("block stream opened")
	return &blockStream{conn: conn}, nil
}

type updateStream struct {
	conn *websocket.Conn
}

func (s *updateStream) Next(ctx context.Context) (ledger.Update, error) {
	msgType, data, err := s.conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("read transaction stream: %w", err)
	}
	if msgType != websocket.MessageText {
		return nil, &DecodeError{Err: fmt.Errorf("unexpected message type %v", msgType)}
	}
	return decodeUpdate(data)
}

func (s *updateStream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "done")
}

type blockStream struct {
	conn *websocket.Conn
}

func (s *blockStream) Next(ctx context.Context) (reorg.BlockDigest, error) {
	msgType, data, err := s.conn.Read(ctx)
	if err != nil {
		return reorg.BlockDigest{}, fmt.Errorf("read block stream: %w", err)
	}
	if msgType != websocket.MessageText {
		return reorg.BlockDigest{}, &DecodeError{Err: fmt.Errorf("unexpected message type %v", msgType)}
	}
	var b reorg.BlockDigest
	if err := json.Unmarshal(data, &b); err != nil {
		return reorg.BlockDigest{}, &DecodeError{Err: fmt.Errorf("decode block digest: %w", err)}
	}
	return b, nil
}

func (s *blockStream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "done")
}
