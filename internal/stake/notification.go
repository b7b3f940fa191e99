package stake

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// NativeTransfer is a lamport movement inside a notified transaction.
type NativeTransfer struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	Amount          uint64 `json:"amount"` // Lamports
}

// TransactionNotification is the enhanced-webhook shape Helius delivers for a
// confirmed transaction. Only the fields the mint flow needs are decoded.
type TransactionNotification struct {
	Signature       string           `json:"signature"`
	Type            string           `json:"type,omitempty"`
	Timestamp       int64            `json:"timestamp,omitempty"`
	NativeTransfers []NativeTransfer `json:"nativeTransfers"`
}

// ParseNotification decodes a webhook body. Helius sends an array of
// transaction objects but a bare object is accepted too; for arrays the first
// element is taken.
func ParseNotification(body []byte) (TransactionNotification, error) {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) == 0 {
		return TransactionNotification{}, fmt.Errorf("empty notification body")
	}

	if trimmed[0] == '[' {
		var batch []TransactionNotification
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return TransactionNotification{}, fmt.Errorf("decode notification array: %w", err)
		}
		if len(batch) == 0 {
			return TransactionNotification{}, fmt.Errorf("empty notification array")
		}
		return batch[0], nil
	}

	var n TransactionNotification
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return TransactionNotification{}, fmt.Errorf("decode notification: %w", err)
	}
	return n, nil
}

// TransferTo returns the first native transfer whose destination matches the
// given address.
func (n TransactionNotification) TransferTo(address string) (NativeTransfer, bool) {
	for _, transfer := range n.NativeTransfers {
		if transfer.ToUserAccount == address {
			return transfer, true
		}
	}
	return NativeTransfer{}, false
}
