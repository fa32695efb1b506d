package vm

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/minimarket/internal/codec"
	"github.com/alanyoungcy/minimarket/internal/crypto"
	"github.com/alanyoungcy/minimarket/internal/domain"
)

// AccountMeta lists an account an instruction reads or writes.
type AccountMeta struct {
	Address  domain.Address `json:"address"`
	Signer   bool           `json:"signer,omitempty"`
	Writable bool           `json:"writable,omitempty"`
}

// Instruction is a call into one program.
type Instruction struct {
	ProgramID domain.Address `json:"program_id"`
	Name      string         `json:"name"`
	Accounts  []AccountMeta  `json:"accounts"`
	Data      hexutil.Bytes  `json:"data"`
}

// Transaction is a signed instruction. ValidUntil bounds how long the
// transaction may be submitted, which in turn bounds how long its id must
// be remembered to reject replays.
type Transaction struct {
	Instruction Instruction    `json:"instruction"`
	Signer      domain.Address `json:"signer"`
	Nonce       uint64         `json:"nonce"`
	ValidUntil  int64          `json:"valid_until"`
	Signature   hexutil.Bytes  `json:"signature"`
}

var txDiscriminator = codec.AccountDiscriminator("Transaction")

// Digest is the hash a transaction's signature covers.
func (tx *Transaction) Digest() []byte {
	e := codec.NewEncoder(txDiscriminator)
	e.Address(1, tx.Instruction.ProgramID)
	e.String(2, tx.Instruction.Name)
	for _, m := range tx.Instruction.Accounts {
		var flags byte
		if m.Signer {
			flags |= 1
		}
		if m.Writable {
			flags |= 2
		}
		e.Raw(3, append(m.Address.Bytes(), flags))
	}
	e.Raw(4, tx.Instruction.Data)
	e.Address(5, tx.Signer)
	e.Uint(6, tx.Nonce)
	e.Int(7, tx.ValidUntil)
	return ethcrypto.Keccak256(e.Bytes())
}

// ID identifies the transaction. It is derived from the digest, not the
// signature, so a re-encoded signature cannot replay it.
func (tx *Transaction) ID() string {
	return hexutil.Encode(tx.Digest())
}

// Sign sets Signer and Signature from s.
func (tx *Transaction) Sign(s *crypto.Signer) error {
	tx.Signer = s.Address()
	sig, err := s.SignDigest(tx.Digest())
	if err != nil {
		return err
	}
	tx.Signature = sig
	return nil
}

// Verify checks that Signature was produced by Signer.
func (tx *Transaction) Verify() error {
	got, err := crypto.RecoverAddress(tx.Digest(), tx.Signature)
	if err != nil {
		return err
	}
	if got != tx.Signer {
		return fmt.Errorf("vm: signed by %s, claims %s: %w", got.Hex(), tx.Signer.Hex(), domain.ErrInvalidSignature)
	}
	return nil
}

// CheckExpiry rejects transactions past ValidUntil or valid for longer
// than maxLifetime from now.
func (tx *Transaction) CheckExpiry(now time.Time, maxLifetime time.Duration) error {
	until := time.Unix(tx.ValidUntil, 0)
	if now.After(until) {
		return fmt.Errorf("vm: valid until %s: %w", until.UTC().Format(time.RFC3339), domain.ErrExpired)
	}
	if until.Sub(now) > maxLifetime {
		return fmt.Errorf("vm: validity window exceeds %s: %w", maxLifetime, domain.ErrExpired)
	}
	return nil
}
