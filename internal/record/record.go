package record

import (
	"errors"
	"strconv"
	"strings"
)

// Errors shared by the sync engine and its collaborators. Callers match them
// with errors.Is; implementations wrap the underlying cause.
var (
	// ErrInvalidContractAddress is a configuration error detected before any
	// network call is made.
	ErrInvalidContractAddress = errors.New("invalid contract address")

	// ErrSourceUnavailable covers every failure reaching or querying the node.
	ErrSourceUnavailable = errors.New("log source unavailable")

	// ErrStoreFailure is returned when persisted state cannot be read or written.
	// A missing state file is not a failure.
	ErrStoreFailure = errors.New("state store failure")
)

// LogEntry is a single event log emitted by the governance contract.
//
// Entries are values: two entries with the same field contents are the same
// entry, regardless of where they were decoded from.
type LogEntry struct {
	Topics           []string `json:"topics"`
	Data             string   `json:"data"`
	TransactionIndex uint     `json:"transactionIndex"`
	LogIndex         uint     `json:"logIndex"`
	BlockNumber      uint64   `json:"blockNumber"`
}

// Key returns the structural identity of the entry. Every field takes part in
// it, so entries that differ only in data or topics get distinct keys.
func (l LogEntry) Key() string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(l.BlockNumber, 10))
	b.WriteByte('/')
	b.WriteString(strconv.FormatUint(uint64(l.TransactionIndex), 10))
	b.WriteByte('/')
	b.WriteString(strconv.FormatUint(uint64(l.LogIndex), 10))
	b.WriteByte('/')
	b.WriteString(l.Data)
	for _, t := range l.Topics {
		b.WriteByte('/')
		b.WriteString(t)
	}
	// Topic count guards against a topic being mistaken for data.
	b.WriteByte('#')
	b.WriteString(strconv.Itoa(len(l.Topics)))
	return b.String()
}

// State is the persisted checkpoint: every matching log below Block is known
// to be present in Logs. The next pass queries from Block inclusive.
type State struct {
	Block uint64     `json:"block"`
	Logs  []LogEntry `json:"logs"`
}

// Genesis returns the state used when nothing has been persisted yet.
func Genesis(block uint64) State {
	return State{Block: block, Logs: []LogEntry{}}
}

// Filter describes one log query against the node.
type Filter struct {
	Topics    []string
	Address   string
	FromBlock uint64
}
