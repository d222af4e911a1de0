package source

import (
	"encoding/json"
	"fmt"

	"github.com/octopus-project/ipcm-indexer/pkg/source"
)

// Event symbols emitted by the IPCM and NFT contracts (topic[0]).
const (
	topicUpdateMapping = "UPDATE_MAP"
	topicMint          = "MINT"
	topicTransfer      = "TRANSFER"
	topicBurn          = "BURN"
)

type updateMappingValue struct {
	TokenID string `json:"tokenId"`
	OldCID  string `json:"oldCid"`
	CID     string `json:"cid"`
	Caller  string `json:"caller"`
}

type mintValue struct {
	TokenID string `json:"tokenId"`
	Owner   string `json:"owner"`
	IPCMKey string `json:"ipcmKey"`
}

type transferValue struct {
	TokenID string `json:"tokenId"`
	From    string `json:"from"`
	To      string `json:"to"`
}

type burnValue struct {
	TokenID string `json:"tokenId"`
	Owner   string `json:"owner"`
}

// decodeEvent converts a raw RPC event into a RawEvent. Events with an
// unknown symbol are skipped (ok=false): the contracts emit admin events
// (e.g. ownership transfer) the indexer does not track.
func decodeEvent(ev eventInfo) (source.RawEvent, bool, error) {
	if len(ev.Topic) == 0 {
		return source.RawEvent{}, false, nil
	}

	raw := source.RawEvent{
		LedgerSeq:  ev.Ledger,
		EventIndex: ev.EventIndex,
		LedgerTime: ev.LedgerClosedAt,
	}

	switch ev.Topic[0] {
	case topicUpdateMapping:
		var v updateMappingValue
		if err := json.Unmarshal(ev.Value, &v); err != nil {
			return source.RawEvent{}, false, fmt.Errorf("malformed %s event at ledger %d index %d: %w",
				topicUpdateMapping, ev.Ledger, ev.EventIndex, err)
		}
		raw.Kind = source.KindUpdateMapping
		raw.TokenID = v.TokenID
		raw.CID = v.CID
		raw.PrevCID = v.OldCID
		raw.Updater = v.Caller

	case topicMint:
		var v mintValue
		if err := json.Unmarshal(ev.Value, &v); err != nil {
			return source.RawEvent{}, false, fmt.Errorf("malformed %s event at ledger %d index %d: %w",
				topicMint, ev.Ledger, ev.EventIndex, err)
		}
		raw.Kind = source.KindMint
		raw.TokenID = v.TokenID
		raw.To = v.Owner
		raw.IPCMKey = v.IPCMKey

	case topicTransfer:
		var v transferValue
		if err := json.Unmarshal(ev.Value, &v); err != nil {
			return source.RawEvent{}, false, fmt.Errorf("malformed %s event at ledger %d index %d: %w",
				topicTransfer, ev.Ledger, ev.EventIndex, err)
		}
		raw.Kind = source.KindTransfer
		raw.TokenID = v.TokenID
		raw.From = v.From
		raw.To = v.To

	case topicBurn:
		var v burnValue
		if err := json.Unmarshal(ev.Value, &v); err != nil {
			return source.RawEvent{}, false, fmt.Errorf("malformed %s event at ledger %d index %d: %w",
				topicBurn, ev.Ledger, ev.EventIndex, err)
		}
		raw.Kind = source.KindBurn
		raw.TokenID = v.TokenID
		raw.From = v.Owner

	default:
		return source.RawEvent{}, false, nil
	}

	return raw, true, nil
}
