package services

import (
	"context"
	"testing"

	"privatesend-backend/internal/utils"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/require"
)

func TestDeriveEncryptionKeyProofIsVerifiable(t *testing.T) {
	signer, err := NewEphemeralSigner()
	require.NoError(t, err)

	proof, err := DeriveEncryptionKeyProof(signer)
	require.NoError(t, err)
	require.Equal(t, signer.PublicKey().String(), proof.PublicKey)
	require.Equal(t, EncryptionKeyMessage, proof.Message)

	sig, err := solana.SignatureFromBase58(proof.Signature)
	require.NoError(t, err)
	require.True(t, sig.Verify(signer.PublicKey(), []byte(EncryptionKeyMessage)))
}

func TestEphemeralSignersDiffer(t *testing.T) {
	a, err := NewEphemeralSigner()
	require.NoError(t, err)
	b, err := NewEphemeralSigner()
	require.NoError(t, err)
	require.NotEqual(t, a.PublicKey(), b.PublicKey())
}

func TestSignEncodedTransaction(t *testing.T) {
	key := mustKey()
	signer := NewKeypairSigner(key)
	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1000, key.PublicKey(), mustKey().PublicKey()).Build()},
		solana.Hash{1},
		solana.TransactionPayer(key.PublicKey()),
	)
	require.NoError(t, err)

	unsigned, err := utils.EncodeTransaction(tx)
	require.NoError(t, err)

	signed, err := signer.SignEncodedTransaction(context.Background(), unsigned)
	require.NoError(t, err)

	decoded, err := utils.DecodeTransaction(signed)
	require.NoError(t, err)
	require.True(t, utils.IsRequiredSigner(decoded, key.PublicKey()))
	require.NoError(t, decoded.VerifySignatures())
}

func TestSignTransactionRejectsNonSigner(t *testing.T) {
	payer := mustKey()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1000, payer.PublicKey(), mustKey().PublicKey()).Build()},
		solana.Hash{1},
		solana.TransactionPayer(payer.PublicKey()),
	)
	require.NoError(t, err)

	require.Error(t, NewKeypairSigner(mustKey()).SignTransaction(tx))
}
