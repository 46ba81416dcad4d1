package types

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// EventKind is the gateway event a RelayEvent was parsed from.
type EventKind string

const (
	EventContractCall          EventKind = "ContractCall"
	EventContractCallWithToken EventKind = "ContractCallWithToken"
	EventTokenSent             EventKind = "TokenSent"
)

// CommandType selects the destination gateway instruction.
// Encoded as uint256 in the execute calldata.
type CommandType uint64

const (
	CommandApproveContractCall CommandType = iota + 1
	CommandApproveContractCallWithMint
	CommandMintToken
)

func (c CommandType) String() string {
	switch c {
	case CommandApproveContractCall:
		return "ApproveContractCall"
	case CommandApproveContractCallWithMint:
		return "ApproveContractCallWithMint"
	case CommandMintToken:
		return "MintToken"
	default:
		return fmt.Sprintf("CommandType(%d)", uint64(c))
	}
}

// RelayEvent is one gateway log observed on a source chain.
// Immutable once created by the monitor.
type RelayEvent struct {
	SourceChain        string    `json:"sourceChain"`
	EventKind          EventKind `json:"eventKind"`
	Sender             string    `json:"sender"`
	DestinationChain   string    `json:"destinationChain"`
	DestinationAddress string    `json:"destinationAddress"`
	Payload            []byte    `json:"payload"`
	PayloadHash        string    `json:"payloadHash"`
	TokenSymbol        string    `json:"tokenSymbol,omitempty"`
	Amount             *big.Int  `json:"amount,omitempty"`
	TxHash             string    `json:"txHash"`
	LogIndex           uint      `json:"logIndex"`
	BlockNumber        uint64    `json:"blockNumber"`
}

// EventID returns the dedupe key for the event: keccak256(txHash || logIndex).
func (e *RelayEvent) EventID() string {
	return EventID(e.TxHash, e.LogIndex)
}

func EventID(txHash string, logIndex uint) string {
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], uint64(logIndex))
	hash := crypto.Keccak256(hexutil.MustDecode(txHash), idx[:])
	return hexutil.Encode(hash)
}

// HasToken reports whether the event moved tokens and therefore
// qualifies for a refund when relaying is exhausted.
func (e *RelayEvent) HasToken() bool {
	return (e.EventKind == EventContractCallWithToken || e.EventKind == EventTokenSent) &&
		e.Amount != nil && e.Amount.Sign() > 0
}

// Command is one destination-chain instruction derived from a RelayEvent.
type Command struct {
	CommandType CommandType `json:"commandType"`
	Data        []byte      `json:"data"`
}

// FailedTxStatus is the saga state of a failed execution.
type FailedTxStatus string

const (
	FailedTxActive      FailedTxStatus = "active"
	FailedTxExhausted   FailedTxStatus = "exhausted"
	FailedTxCompensated FailedTxStatus = "compensated"
)

// FailedTransaction records one destination execution that did not complete,
// together with the retry bookkeeping the sweep needs.
type FailedTransaction struct {
	CommandID        string         `json:"commandId"`
	DestinationChain string         `json:"destinationChain"`
	Commands         []Command      `json:"commands"`
	SourceEvent      RelayEvent     `json:"sourceEvent"`
	Error            string         `json:"error"`
	RetryCount       int            `json:"retryCount"`
	MaxRetries       int            `json:"maxRetries"`
	LastAttempt      time.Time      `json:"lastAttemptTimestamp"`
	Status           FailedTxStatus `json:"status"`
}

// Key identifies the record in the failure store.
func (f *FailedTransaction) Key() string {
	return FailedTxKey(f.CommandID, f.DestinationChain)
}

func FailedTxKey(commandID, destinationChain string) string {
	return fmt.Sprintf("%s-%s", commandID, destinationChain)
}
