package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogEntryKey_Structural(t *testing.T) {
	a := LogEntry{Topics: []string{"0xaa"}, Data: "0x01", TransactionIndex: 2, LogIndex: 3, BlockNumber: 100}
	b := LogEntry{Topics: []string{"0xaa"}, Data: "0x01", TransactionIndex: 2, LogIndex: 3, BlockNumber: 100}

	assert.Equal(t, a.Key(), b.Key(), "value-equal entries must share a key")
}

func TestLogEntryKey_EveryFieldCounts(t *testing.T) {
	base := LogEntry{Topics: []string{"0xaa"}, Data: "0x01", TransactionIndex: 2, LogIndex: 3, BlockNumber: 100}

	variants := map[string]LogEntry{
		"topics":  {Topics: []string{"0xbb"}, Data: "0x01", TransactionIndex: 2, LogIndex: 3, BlockNumber: 100},
		"data":    {Topics: []string{"0xaa"}, Data: "0x02", TransactionIndex: 2, LogIndex: 3, BlockNumber: 100},
		"txIndex": {Topics: []string{"0xaa"}, Data: "0x01", TransactionIndex: 9, LogIndex: 3, BlockNumber: 100},
		"logIdx":  {Topics: []string{"0xaa"}, Data: "0x01", TransactionIndex: 2, LogIndex: 9, BlockNumber: 100},
		"block":   {Topics: []string{"0xaa"}, Data: "0x01", TransactionIndex: 2, LogIndex: 3, BlockNumber: 101},
		"extra":   {Topics: []string{"0xaa", "0xcc"}, Data: "0x01", TransactionIndex: 2, LogIndex: 3, BlockNumber: 100},
	}
	for name, v := range variants {
		assert.NotEqual(t, base.Key(), v.Key(), name)
	}
}

func TestLogEntryKey_TopicDataBoundary(t *testing.T) {
	a := LogEntry{Topics: []string{"x"}, Data: "0x"}
	b := LogEntry{Topics: nil, Data: "0x/x"}

	assert.NotEqual(t, a.Key(), b.Key())
}

func TestGenesis(t *testing.T) {
	st := Genesis(10609767)

	assert.Equal(t, uint64(10609767), st.Block)
	assert.NotNil(t, st.Logs)
	assert.Empty(t, st.Logs)
}
