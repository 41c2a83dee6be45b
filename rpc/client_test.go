package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cellar/chain"
	"cellar/codec"
	"cellar/config"
	unifiederrors "cellar/errors"
)

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params []interface{}   `json:"params"`
}

// fakeNode answers JSON-RPC calls from a method table and records what it was asked
type fakeNode struct {
	mu       sync.Mutex
	requests []rpcRequest
	results  map[string]func(params []interface{}) (interface{}, *rpcError)
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.mu.Lock()
	n.requests = append(n.requests, req)
	handler := n.results[req.Method]
	n.mu.Unlock()

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if handler == nil {
		resp["error"] = rpcError{Code: -32601, Message: "method not found"}
	} else if result, rerr := handler(req.Params); rerr != nil {
		resp["error"] = rerr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (n *fakeNode) calls() []rpcRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]rpcRequest(nil), n.requests...)
}

func newTestClient(t *testing.T, node *fakeNode) *Client {
	t.Helper()
	server := httptest.NewServer(node)
	t.Cleanup(server.Close)

	client, err := Dial(context.Background(), config.RPCConfig{
		URL:       server.URL,
		Timeout:   5 * time.Second,
		RateLimit: 1000,
		RateBurst: 10,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func sampleBlock(number uint64) chain.Block {
	return chain.Block{
		Header: chain.Header{
			Hash:          codec.CKBHash([]byte{byte(number)}),
			Number:        number,
			ParentHash:    codec.CKBHash([]byte{byte(number - 1)}),
			CompactTarget: 0x1a08a97e,
			Timestamp:     1_700_000_000_000,
			Epoch:         codec.Epoch{Number: 7, Index: 12, Length: 1800},
			Dao:           codec.Dao{C: 1, AR: 2, S: 3, U: 4},
		},
		Transactions: []chain.Transaction{{
			Hash:        codec.CKBHash([]byte("cellbase")),
			Inputs:      []chain.CellInput{{PreviousOutput: chain.OutPoint{Index: 0xffffffff}, Since: number}},
			Outputs:     []chain.CellOutput{{Capacity: 1000, Lock: codec.Script{HashType: codec.HashTypeType, Args: []byte{1}}}},
			OutputsData: [][]byte{{}},
			Witnesses:   [][]byte{{0xde, 0xad}},
		}},
	}
}

func TestTipHeight(t *testing.T) {
	node := &fakeNode{results: map[string]func([]interface{}) (interface{}, *rpcError){
		"get_tip_block_number": func([]interface{}) (interface{}, *rpcError) { return "0x1b4", nil },
	}}
	client := newTestClient(t, node)

	tip, err := client.TipHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(436), tip)
	calls := node.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "get_tip_block_number", calls[0].Method)
	assert.Empty(t, calls[0].Params)
}

func TestBlockByHeight(t *testing.T) {
	want := sampleBlock(5)
	node := &fakeNode{results: map[string]func([]interface{}) (interface{}, *rpcError){
		"get_block_by_number": func(params []interface{}) (interface{}, *rpcError) {
			if len(params) == 1 && params[0] == "0x5" {
				return want, nil
			}
			return nil, nil
		},
	}}
	client := newTestClient(t, node)

	block, err := client.BlockByHeight(context.Background(), 5)
	require.NoError(t, err)
	require.NotNil(t, block)
	assert.Equal(t, want.Hash(), block.Hash())
	assert.Equal(t, want.Header.Epoch, block.Header.Epoch)
	require.Len(t, block.Transactions, 1)
	assert.Equal(t, want.Transactions[0].Witnesses, block.Transactions[0].Witnesses)

	absent, err := client.BlockByHeight(context.Background(), 6)
	require.NoError(t, err)
	assert.Nil(t, absent)
}

func TestBlockByHeightRejectsWrongNumber(t *testing.T) {
	node := &fakeNode{results: map[string]func([]interface{}) (interface{}, *rpcError){
		"get_block_by_number": func([]interface{}) (interface{}, *rpcError) { return sampleBlock(9), nil },
	}}
	client := newTestClient(t, node)

	_, err := client.BlockByHeight(context.Background(), 4)
	assert.True(t, unifiederrors.IsTransport(err))
	assert.Contains(t, err.Error(), "node returned 9")
}

func TestBlockByHeightRejectsMalformedBlock(t *testing.T) {
	node := &fakeNode{results: map[string]func([]interface{}) (interface{}, *rpcError){
		"get_block_by_number": func([]interface{}) (interface{}, *rpcError) {
			return map[string]interface{}{"header": map[string]interface{}{"dao": "0x01"}}, nil
		},
	}}
	client := newTestClient(t, node)

	_, err := client.BlockByHeight(context.Background(), 1)
	assert.True(t, unifiederrors.IsTransport(err))
}

func TestNodeErrorIsTransport(t *testing.T) {
	node := &fakeNode{results: map[string]func([]interface{}) (interface{}, *rpcError){
		"get_tip_block_number": func([]interface{}) (interface{}, *rpcError) {
			return nil, &rpcError{Code: -32000, Message: "node is syncing"}
		},
	}}
	client := newTestClient(t, node)

	_, err := client.TipHeight(context.Background())
	require.Error(t, err)
	assert.True(t, unifiederrors.IsTransport(err))
	assert.Contains(t, err.Error(), "node is syncing")
}

func TestUnreachableNodeIsTransport(t *testing.T) {
	server := httptest.NewServer(&fakeNode{})
	url := server.URL
	server.Close()

	client, err := Dial(context.Background(), config.RPCConfig{URL: url, Timeout: time.Second})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.TipHeight(context.Background())
	assert.True(t, unifiederrors.IsTransport(err))
}

func TestCancelledContextStopsAtLimiter(t *testing.T) {
	client := newTestClient(t, &fakeNode{})
	client.rateLimiter.SetLimit(0.001)
	client.rateLimiter.SetBurst(0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.TipHeight(ctx)
	assert.True(t, unifiederrors.IsTransport(err))
}
