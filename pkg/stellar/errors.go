package stellar

import (
	"fmt"
	"strings"

	"github.com/stellar/go/clients/horizonclient"
)

// BlockchainError is returned when a transaction could not be built, signed or
// accepted by the network.
type BlockchainError struct {
	Reason      string
	ResultCodes []string
	Err         error
}

func (e *BlockchainError) Error() string {
	msg := "blockchain error: " + e.Reason
	if len(e.ResultCodes) > 0 {
		msg += fmt.Sprintf(" [%s]", strings.Join(e.ResultCodes, ", "))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BlockchainError) Unwrap() error {
	return e.Err
}

func blockchainError(reason string, err error) *BlockchainError {
	bcErr := &BlockchainError{Reason: reason, Err: err}

	hErr := horizonclient.GetError(err)
	if hErr == nil {
		return bcErr
	}
	bcErr.Err = nil
	if hErr.Problem.Title != "" {
		bcErr.Reason = fmt.Sprintf("%s: %s", reason, hErr.Problem.Title)
	}
	if codes, err := hErr.ResultCodes(); err == nil && codes != nil {
		if codes.TransactionCode != "" {
			bcErr.ResultCodes = append(bcErr.ResultCodes, codes.TransactionCode)
		}
		bcErr.ResultCodes = append(bcErr.ResultCodes, codes.OperationCodes...)
	}
	return bcErr
}
