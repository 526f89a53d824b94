package services

import (
	"io"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func mustKey() solana.PrivateKey {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		panic(err)
	}
	return key
}

func newAddress() string {
	return mustKey().PublicKey().String()
}
