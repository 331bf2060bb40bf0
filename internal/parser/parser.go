package parser

import (
	"fmt"
	"math/big"
	"strings"

	"governance-sync/internal/record"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"
)

// EventName is the GovernorAlpha event whose logs are synchronized.
const EventName = "ProposalCreated"

const governorABI = `[{
	"anonymous": false,
	"name": "ProposalCreated",
	"type": "event",
	"inputs": [
		{"indexed": false, "name": "id", "type": "uint256"},
		{"indexed": false, "name": "proposer", "type": "address"},
		{"indexed": false, "name": "targets", "type": "address[]"},
		{"indexed": false, "name": "values", "type": "uint256[]"},
		{"indexed": false, "name": "signatures", "type": "string[]"},
		{"indexed": false, "name": "calldatas", "type": "bytes[]"},
		{"indexed": false, "name": "startBlock", "type": "uint256"},
		{"indexed": false, "name": "endBlock", "type": "uint256"},
		{"indexed": false, "name": "description", "type": "string"}
	]
}]`

// Proposal is a decoded ProposalCreated event.
type Proposal struct {
	ID          *big.Int         `json:"id"`
	Proposer    common.Address   `json:"proposer"`
	Targets     []common.Address `json:"targets"`
	Values      []*big.Int       `json:"values"`
	Signatures  []string         `json:"signatures"`
	Calldatas   []hexutil.Bytes  `json:"calldatas"`
	StartBlock  *big.Int         `json:"startBlock"`
	EndBlock    *big.Int         `json:"endBlock"`
	Description string           `json:"description"`
	BlockNumber uint64           `json:"blockNumber"`
	LogIndex    uint             `json:"logIndex"`
}

// Parser decodes stored log entries into proposals using the embedded
// GovernorAlpha event ABI.
type Parser struct {
	abi   abi.ABI
	event abi.Event
}

func New() (*Parser, error) {
	parsed, err := abi.JSON(strings.NewReader(governorABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse governor abi: %w", err)
	}
	return &Parser{abi: parsed, event: parsed.Events[EventName]}, nil
}

// EventID returns the topic hash identifying ProposalCreated logs.
func (p *Parser) EventID() common.Hash { return p.event.ID }

// Parse decodes a single entry. Entries from other events are rejected.
func (p *Parser) Parse(lg record.LogEntry) (*Proposal, error) {
	if len(lg.Topics) == 0 || common.HexToHash(lg.Topics[0]) != p.event.ID {
		return nil, fmt.Errorf("log at block %d is not a %s event", lg.BlockNumber, EventName)
	}

	data, err := hexutil.Decode(lg.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid log data at block %d: %w", lg.BlockNumber, err)
	}

	vals, err := p.abi.Unpack(EventName, data)
	if err != nil {
		return nil, err
	}
	if len(vals) != 9 {
		return nil, fmt.Errorf("unexpected %s arity %d", EventName, len(vals))
	}

	prop := &Proposal{BlockNumber: lg.BlockNumber, LogIndex: lg.LogIndex}
	var ok bool
	if prop.ID, ok = vals[0].(*big.Int); !ok {
		return nil, fmt.Errorf("unexpected type %T for id", vals[0])
	}
	if prop.Proposer, ok = vals[1].(common.Address); !ok {
		return nil, fmt.Errorf("unexpected type %T for proposer", vals[1])
	}
	if prop.Targets, ok = vals[2].([]common.Address); !ok {
		return nil, fmt.Errorf("unexpected type %T for targets", vals[2])
	}
	if prop.Values, ok = vals[3].([]*big.Int); !ok {
		return nil, fmt.Errorf("unexpected type %T for values", vals[3])
	}
	if prop.Signatures, ok = vals[4].([]string); !ok {
		return nil, fmt.Errorf("unexpected type %T for signatures", vals[4])
	}
	calldatas, ok := vals[5].([][]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected type %T for calldatas", vals[5])
	}
	prop.Calldatas = make([]hexutil.Bytes, len(calldatas))
	for i, c := range calldatas {
		prop.Calldatas[i] = c
	}
	if prop.StartBlock, ok = vals[6].(*big.Int); !ok {
		return nil, fmt.Errorf("unexpected type %T for startBlock", vals[6])
	}
	if prop.EndBlock, ok = vals[7].(*big.Int); !ok {
		return nil, fmt.Errorf("unexpected type %T for endBlock", vals[7])
	}
	if prop.Description, ok = vals[8].(string); !ok {
		return nil, fmt.Errorf("unexpected type %T for description", vals[8])
	}
	return prop, nil
}

// ParseAll decodes every entry it can. Failures are logged and skipped so a
// single malformed log does not hide the rest.
func (p *Parser) ParseAll(logs []record.LogEntry) []*Proposal {
	out := make([]*Proposal, 0, len(logs))
	for _, lg := range logs {
		prop, err := p.Parse(lg)
		if err != nil {
			logrus.Debugf("failed to parse log | block=%d index=%d err=%v", lg.BlockNumber, lg.LogIndex, err)
			continue
		}
		out = append(out, prop)
	}
	return out
}
