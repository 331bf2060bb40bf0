package rpc

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"governance-sync/internal/config"
	"governance-sync/internal/record"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAddress = "0xA5Eb84773633f33d442ECDaC48212B0dEBf3C84A"
	testTopic   = "0x7d84a6263ae0d98d3329bd7b46bb4e8d6f98cd35a7adb45c274c8b7fd5ebd5e0"
	testTxHash  = "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"
)

type nodeLog struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	BlockNumber string   `json:"blockNumber"`
	TxHash      string   `json:"transactionHash"`
	TxIndex     string   `json:"transactionIndex"`
	BlockHash   string   `json:"blockHash"`
	LogIndex    string   `json:"logIndex"`
	Removed     bool     `json:"removed"`
}

type logCall struct {
	From string
	To   string
}

// fakeNode answers eth_blockNumber and eth_getLogs over HTTP JSON-RPC.
type fakeNode struct {
	mu    sync.Mutex
	head  uint64
	logs  []nodeLog
	fail  bool
	// failNext fails that many requests before answering normally.
	failNext int
	calls    []logCall
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     json.RawMessage   `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	transient := n.failNext > 0
	if transient {
		n.failNext--
	}

	switch {
	case n.fail || transient:
		resp["error"] = map[string]interface{}{"code": -32000, "message": "node overloaded"}
	case req.Method == "eth_blockNumber":
		resp["result"] = hexutil.EncodeUint64(n.head)
	case req.Method == "eth_getLogs":
		var arg struct {
			FromBlock string `json:"fromBlock"`
			ToBlock   string `json:"toBlock"`
		}
		_ = json.Unmarshal(req.Params[0], &arg)
		n.calls = append(n.calls, logCall{From: arg.FromBlock, To: arg.ToBlock})

		from, _ := hexutil.DecodeUint64(arg.FromBlock)
		to := uint64(math.MaxUint64)
		if arg.ToBlock != "latest" {
			to, _ = hexutil.DecodeUint64(arg.ToBlock)
		}
		out := make([]nodeLog, 0)
		for _, lg := range n.logs {
			bn, _ := hexutil.DecodeUint64(lg.BlockNumber)
			if bn >= from && bn <= to {
				out = append(out, lg)
			}
		}
		resp["result"] = out
	default:
		resp["error"] = map[string]interface{}{"code": -32601, "message": "method not found"}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func mkLog(block, txIndex, logIndex uint64, data string) nodeLog {
	return nodeLog{
		Address:     strings.ToLower(testAddress),
		Topics:      []string{testTopic},
		Data:        data,
		BlockNumber: hexutil.EncodeUint64(block),
		TxHash:      testTxHash,
		TxIndex:     hexutil.EncodeUint64(txIndex),
		BlockHash:   testTxHash,
		LogIndex:    hexutil.EncodeUint64(logIndex),
	}
}

func newTestSource(t *testing.T, node *fakeNode, chunk uint64, workers int) *Source {
	t.Helper()
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)

	client, err := Dial(context.Background(), srv.URL, config.RetryConfig{Attempts: 2, DelayMS: 1})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return NewSource(client, chunk, workers)
}

func testFilter(from uint64) record.Filter {
	return record.Filter{Topics: []string{testTopic}, Address: testAddress, FromBlock: from}
}

func TestSource_CurrentBlockNumber(t *testing.T) {
	src := newTestSource(t, &fakeNode{head: 10609770}, 0, 1)

	n, err := src.CurrentBlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(10609770), n)
}

func TestSource_GetLogs_SingleQuery(t *testing.T) {
	node := &fakeNode{head: 105, logs: []nodeLog{
		mkLog(99, 0, 0, "0x01"),
		mkLog(100, 1, 2, "0x02"),
		mkLog(102, 0, 0, "0x03"),
	}}
	src := newTestSource(t, node, 0, 1)

	got, err := src.GetLogs(context.Background(), testFilter(100))
	require.NoError(t, err)

	assert.Equal(t, []record.LogEntry{
		{Topics: []string{testTopic}, Data: "0x02", TransactionIndex: 1, LogIndex: 2, BlockNumber: 100},
		{Topics: []string{testTopic}, Data: "0x03", TransactionIndex: 0, LogIndex: 0, BlockNumber: 102},
	}, got)
	assert.Equal(t, []logCall{{From: "0x64", To: "latest"}}, node.calls)
}

func TestSource_GetLogs_Chunked(t *testing.T) {
	node := &fakeNode{head: 105, logs: []nodeLog{
		mkLog(100, 0, 0, "0x01"),
		mkLog(103, 0, 0, "0x02"),
		mkLog(106, 0, 0, "0x03"),
	}}
	src := newTestSource(t, node, 2, 1)

	got, err := src.GetLogs(context.Background(), testFilter(100))
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, uint64(100), got[0].BlockNumber)
	assert.Equal(t, uint64(103), got[1].BlockNumber)
	assert.Equal(t, uint64(106), got[2].BlockNumber, "last window stays open-ended")
	assert.Equal(t, []logCall{
		{From: "0x64", To: "0x65"},
		{From: "0x66", To: "0x67"},
		{From: "0x68", To: "latest"},
	}, node.calls)
}

func TestSource_GetLogs_ConcurrentWindowsKeepOrder(t *testing.T) {
	node := &fakeNode{head: 120}
	for b := uint64(100); b <= 121; b++ {
		node.logs = append(node.logs, mkLog(b, 0, 0, "0x01"))
	}
	src := newTestSource(t, node, 3, 4)

	got, err := src.GetLogs(context.Background(), testFilter(100))
	require.NoError(t, err)

	require.Len(t, got, 22)
	for i, lg := range got {
		assert.Equal(t, uint64(100+i), lg.BlockNumber)
	}
	assert.Len(t, node.calls, 7)
}

func TestSource_ChunkedFailure(t *testing.T) {
	node := &fakeNode{head: 120}
	src := newTestSource(t, node, 3, 2)
	node.fail = true

	_, err := src.GetLogs(context.Background(), testFilter(100))
	assert.ErrorIs(t, err, record.ErrSourceUnavailable)
}

func TestWindows(t *testing.T) {
	assert.Equal(t, []Window{
		{From: 100, To: 101},
		{From: 102, To: 103},
		{From: 104, Open: true},
	}, Windows(100, 105, 2))

	assert.Equal(t, []Window{{From: 50, Open: true}}, Windows(50, 40, 10), "head behind start")
	assert.Equal(t, []Window{{From: 7, Open: true}}, Windows(7, 7, 1000))
	assert.Equal(t, []Window{{From: 0, To: 0}, {From: 1, Open: true}}, Windows(0, 1, 1))
}

func TestSource_Failure(t *testing.T) {
	src := newTestSource(t, &fakeNode{fail: true}, 0, 1)

	_, err := src.GetLogs(context.Background(), testFilter(1))
	assert.ErrorIs(t, err, record.ErrSourceUnavailable)

	_, err = src.CurrentBlockNumber(context.Background())
	assert.ErrorIs(t, err, record.ErrSourceUnavailable)
}

func TestBuildQuery(t *testing.T) {
	q := BuildQuery(testFilter(10609767), 10609767)

	assert.Equal(t, uint64(10609767), q.FromBlock.Uint64())
	assert.Nil(t, q.ToBlock)
	assert.Equal(t, []common.Address{common.HexToAddress(testAddress)}, q.Addresses)
	assert.Equal(t, [][]common.Hash{{common.HexToHash(testTopic)}}, q.Topics)
}

func TestToEntry(t *testing.T) {
	lg := types.Log{
		Address:     common.HexToAddress(testAddress),
		Topics:      []common.Hash{common.HexToHash(testTopic)},
		Data:        []byte{0xde, 0xad},
		BlockNumber: 7,
		TxIndex:     3,
		Index:       9,
	}

	assert.Equal(t, record.LogEntry{
		Topics:           []string{testTopic},
		Data:             "0xdead",
		TransactionIndex: 3,
		LogIndex:         9,
		BlockNumber:      7,
	}, ToEntry(lg))
	assert.Equal(t, "0x", ToEntry(types.Log{}).Data)
}
