package avm

import (
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/mnemonic"

	"github.com/algox402/x402-go"
)

// AccountFromMnemonic loads the facilitator account from its 25-word mnemonic.
func AccountFromMnemonic(phrase string) (crypto.Account, error) {
	sk, err := mnemonic.ToPrivateKey(phrase)
	if err != nil {
		return crypto.Account{}, fmt.Errorf("%w: %v", x402.ErrInvalidMnemonic, err)
	}
	account, err := crypto.AccountFromPrivateKey(sk)
	if err != nil {
		return crypto.Account{}, fmt.Errorf("%w: %v", x402.ErrInvalidMnemonic, err)
	}
	return account, nil
}
