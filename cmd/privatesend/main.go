package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"privatesend-backend/internal/clients"
	"privatesend-backend/internal/config"
	"privatesend-backend/internal/models"
	"privatesend-backend/internal/services"
	"privatesend-backend/internal/utils"
	"privatesend-backend/pkg/privatesendapi"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Builds a deposit with the prover, signs it with a local keypair and asks
// the server to run the private send.
func main() {
	apiURL := flag.String("api", "http://localhost:8080", "private-send server")
	proverURL := flag.String("prover", config.DefaultProverURL, "proving service")
	keypairPath := flag.String("keypair", os.ExpandEnv("$HOME/.config/solana/id.json"), "solana-keygen keypair file")
	token := flag.String("token", "SOL", "SOL or USDC")
	amount := flag.String("amount", "", "amount in SOL/USDC, e.g. 0.25")
	recipient := flag.String("recipient", "", "recipient address")
	usdcMint := flag.String("usdc-mint", config.USDCMintAddress, "USDC mint")
	timeout := flag.Duration("timeout", 3*time.Minute, "overall timeout")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	if *verbose {
		logger.SetOutput(os.Stderr)
		logger.SetLevel(logrus.DebugLevel)
	}

	if err := run(logger, *apiURL, *proverURL, *keypairPath, *token, *amount, *recipient, *usdcMint, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run(logger *logrus.Logger, apiURL, proverURL, keypairPath, token, amount, recipient, usdcMint string, timeout time.Duration) error {
	tokenType := models.TokenType(token)
	if !tokenType.Valid() {
		return fmt.Errorf("invalid token type %q", token)
	}
	if !utils.IsValidAddress(recipient) {
		return fmt.Errorf("invalid recipient address %q", recipient)
	}
	baseUnits, err := utils.ParseBaseUnits(amount, tokenType.Decimals())
	if err != nil {
		return err
	}

	signer, err := services.LoadKeypairSigner(keypairPath)
	if err != nil {
		return err
	}
	sender := signer.PublicKey()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	encryptionKey, err := services.DeriveEncryptionKeyProof(signer)
	if err != nil {
		return err
	}

	depositReq := &clients.DepositProofRequest{
		TokenType:     string(tokenType),
		Amount:        baseUnits,
		Owner:         sender.String(),
		EncryptionKey: encryptionKey,
	}
	if tokenType.IsSPL() {
		depositReq.MintAddress = usdcMint
	}

	fmt.Printf("🔐 Building %s %s deposit for %s...\n", tokenType.FormatAmount(baseUnits), tokenType, utils.TruncateAddress(sender.String(), 4))
	prover := clients.NewProverClient(proverURL, timeout, logger)
	signedDeposit, err := prover.Deposit(ctx, depositReq, signer.SignEncodedTransaction)
	if err != nil {
		return fmt.Errorf("failed to build deposit: %w", err)
	}

	requestID := uuid.NewString()
	fmt.Printf("📤 Submitting private send %s (watch: %s/ws/private-send/%s)\n", requestID, apiURL, requestID)

	api := privatesendapi.NewClient(apiURL, timeout)
	result, err := api.SubmitDepositAndWithdraw(ctx, string(tokenType), baseUnits, recipient, sender.String(), signedDeposit,
		privatesendapi.WithRequestID(requestID))
	if err != nil {
		var apiErr *privatesendapi.APIError
		if errors.As(err, &apiErr) && apiErr.DepositAccepted() {
			fmt.Printf("⚠️ Deposit %s is in the pool but the withdrawal did not complete\n", apiErr.DepositSignature)
		}
		return err
	}

	fmt.Println("🎉 Private send completed")
	fmt.Printf("   Deposit:  %s\n", result.DepositSignature)
	fmt.Printf("   Withdraw: %s\n", result.WithdrawSignature)
	return nil
}
