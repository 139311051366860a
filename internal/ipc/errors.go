package ipc

import (
	"errors"

	"github.com/ntfsearch/fastfind/internal/apperrors"
)

// rpcError is the JSON-RPC 2.0 error object, per SPEC_FULL.md §6.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// methodNotFoundCode is outside the service's own 1001-1010 range,
// matching JSON-RPC 2.0's reserved "Method not found" code.
const methodNotFoundCode = -32601

func toRPCError(err error) rpcError {
	if err == nil {
		return rpcError{}
	}
	var notFound errMethodNotFound
	if errors.As(err, &notFound) {
		return rpcError{Code: methodNotFoundCode, Message: err.Error()}
	}
	return rpcError{Code: int(apperrors.CodeFor(err)), Message: err.Error()}
}
