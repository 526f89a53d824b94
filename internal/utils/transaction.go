package utils

import (
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/OneOfOne/xxhash"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// DecodeTransaction decodes a base64 wire-format Solana transaction
func DecodeTransaction(encoded string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty transaction")
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	return tx, nil
}

// EncodeTransaction serializes a transaction to base64 wire format
func EncodeTransaction(tx *solana.Transaction) (string, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// IsRequiredSigner reports whether account is one of the transaction's signing accounts
// and its signature slot is filled.
func IsRequiredSigner(tx *solana.Transaction, account solana.PublicKey) bool {
	required := int(tx.Message.Header.NumRequiredSignatures)
	for i := 0; i < required && i < len(tx.Message.AccountKeys); i++ {
		if tx.Message.AccountKeys[i].Equals(account) {
			return i < len(tx.Signatures) && tx.Signatures[i] != (solana.Signature{})
		}
	}
	return false
}

// TransactionFingerprint stable short key for a signed transaction payload
func TransactionFingerprint(encoded string) string {
	return strconv.FormatUint(xxhash.Checksum64([]byte(encoded)), 16)
}
