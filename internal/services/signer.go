package services

import (
	"context"
	"fmt"

	"privatesend-backend/internal/clients"
	"privatesend-backend/internal/utils"

	"github.com/gagliardetto/solana-go"
)

// EncryptionKeyMessage message signed to derive the UTXO encryption key
const EncryptionKeyMessage = "Privacy Money account sign in"

// MessageSigner signs arbitrary messages with an ed25519 key
type MessageSigner interface {
	PublicKey() solana.PublicKey
	SignMessage(message []byte) (solana.Signature, error)
}

// SignerContext who owns the shielded funds and who derives the encryption key
type SignerContext struct {
	Owner  solana.PublicKey
	Signer MessageSigner
}

// KeypairSigner MessageSigner backed by a local private key
type KeypairSigner struct {
	key solana.PrivateKey
}

// NewKeypairSigner wraps an existing key
func NewKeypairSigner(key solana.PrivateKey) *KeypairSigner {
	return &KeypairSigner{key: key}
}

// NewEphemeralSigner fresh random keypair, used once and dropped
func NewEphemeralSigner() (MessageSigner, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}
	return &KeypairSigner{key: key}, nil
}

// LoadKeypairSigner reads a solana-keygen JSON keypair file
func LoadKeypairSigner(path string) (*KeypairSigner, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load keypair %s: %w", path, err)
	}
	return &KeypairSigner{key: key}, nil
}

func (s *KeypairSigner) PublicKey() solana.PublicKey {
	return s.key.PublicKey()
}

func (s *KeypairSigner) SignMessage(message []byte) (solana.Signature, error) {
	return s.key.Sign(message)
}

// SignTransaction fills this key's signature slot; other slots are left as they are
func (s *KeypairSigner) SignTransaction(tx *solana.Transaction) error {
	pub := s.key.PublicKey()
	if !tx.IsSigner(pub) {
		return fmt.Errorf("%s is not a signer of the transaction", pub)
	}
	_, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(pub) {
			return &s.key
		}
		return nil
	})
	return err
}

// SignEncodedTransaction clients.SignFunc over base64 wire transactions
func (s *KeypairSigner) SignEncodedTransaction(_ context.Context, unsigned string) (string, error) {
	tx, err := utils.DecodeTransaction(unsigned)
	if err != nil {
		return "", err
	}
	if err := s.SignTransaction(tx); err != nil {
		return "", err
	}
	return utils.EncodeTransaction(tx)
}

// DeriveEncryptionKeyProof signs EncryptionKeyMessage; the prover derives the key from the signature
func DeriveEncryptionKeyProof(signer MessageSigner) (clients.EncryptionKeyProof, error) {
	sig, err := signer.SignMessage([]byte(EncryptionKeyMessage))
	if err != nil {
		return clients.EncryptionKeyProof{}, fmt.Errorf("failed to sign encryption key message: %w", err)
	}
	return clients.EncryptionKeyProof{
		PublicKey: signer.PublicKey().String(),
		Message:   EncryptionKeyMessage,
		Signature: sig.String(),
	}, nil
}
