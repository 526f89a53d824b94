package utils

import (
	"github.com/gagliardetto/solana-go"
)

// ParseAddress parses a base58 encoded 32-byte Solana public key
func ParseAddress(address string) (solana.PublicKey, error) {
	return solana.PublicKeyFromBase58(address)
}

// IsValidAddress reports whether address is a well-formed Solana public key
func IsValidAddress(address string) bool {
	_, err := ParseAddress(address)
	return err == nil
}

// TruncateAddress shortens an address for logs: "AbCd...wXyZ"
func TruncateAddress(address string, chars int) string {
	if chars <= 0 || len(address) <= chars*2 {
		return address
	}
	return address[:chars] + "..." + address[len(address)-chars:]
}
