// Copyright 2025 The Cellar Authors
// JSON-RPC client for the CKB node

package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	"cellar/chain"
	"cellar/config"
	unifiederrors "cellar/errors"
	"cellar/logger"
)

const (
	methodTipBlockNumber = "get_tip_block_number"
	methodBlockByNumber  = "get_block_by_number"
)

// Client fetches the tip and blocks from a node, one rate-limited call at a time
type Client struct {
	url         string
	rpc         *gethrpc.Client
	rateLimiter *rate.Limiter
	timeout     time.Duration
	log         *logger.Logger
}

// Dial connects to the node over HTTP(S) or WebSocket depending on the URL scheme
func Dial(ctx context.Context, cfg config.RPCConfig) (*Client, error) {
	raw, err := gethrpc.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, &unifiederrors.TransportError{Call: "dial", Err: err}
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		url:         cfg.URL,
		rpc:         raw,
		rateLimiter: rate.NewLimiter(limit, burst),
		timeout:     cfg.Timeout,
		log:         logger.New("RPC"),
	}, nil
}

// Close releases the underlying connection
func (c *Client) Close() {
	c.rpc.Close()
}

// URL returns the endpoint the client talks to
func (c *Client) URL() string {
	return c.url
}

// TipHeight returns the node's current tip block number
func (c *Client) TipHeight(ctx context.Context) (uint64, error) {
	var tip hexutil.Uint64
	if err := c.call(ctx, &tip, methodTipBlockNumber); err != nil {
		return 0, err
	}
	return uint64(tip), nil
}

// BlockByHeight returns the block at height, or nil when the node does not know that height
func (c *Client) BlockByHeight(ctx context.Context, height uint64) (*chain.Block, error) {
	var raw json.RawMessage
	if err := c.call(ctx, &raw, methodBlockByNumber, hexutil.Uint64(height)); err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		c.log.Debug("BlockByHeight", "node has no block at height %d", height)
		return nil, nil
	}

	block := new(chain.Block)
	if err := json.Unmarshal(raw, block); err != nil {
		return nil, &unifiederrors.TransportError{
			Call: methodBlockByNumber,
			Err:  fmt.Errorf("decode block %d: %w", height, err),
		}
	}
	if block.Number() != height {
		return nil, &unifiederrors.TransportError{
			Call: methodBlockByNumber,
			Err:  fmt.Errorf("asked for block %d, node returned %d", height, block.Number()),
		}
	}
	return block, nil
}

func (c *Client) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return &unifiederrors.TransportError{Call: method, Err: err}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	startTime := time.Now()
	if err := c.rpc.CallContext(ctx, result, method, args...); err != nil {
		return &unifiederrors.TransportError{Call: method, Err: err}
	}
	c.log.Trace("call", "%s%v took %v", method, args, time.Since(startTime))
	return nil
}
