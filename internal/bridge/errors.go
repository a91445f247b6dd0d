package bridge

import "errors"

// Kind classifies a bridge failure.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindAuthorization
	KindConfiguration
	KindDuplicate
	KindLimit
	KindQuorum
	KindInvalidInput
	KindState
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindConfiguration:
		return "configuration"
	case KindDuplicate:
		return "duplicate"
	case KindLimit:
		return "limit"
	case KindQuorum:
		return "quorum"
	case KindInvalidInput:
		return "invalid_input"
	case KindState:
		return "state"
	default:
		return "unknown"
	}
}

// Error is a named, classified failure. A category sentinel (empty Reason)
// matches every Error of the same Kind under errors.Is.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return e.Kind.String() + " error"
	}
	return e.Reason
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Reason == "" && t.Kind == e.Kind
}

func newError(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Categories.
var (
	ErrAuthorization = &Error{Kind: KindAuthorization}
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrDuplicate     = &Error{Kind: KindDuplicate}
	ErrLimit         = &Error{Kind: KindLimit}
	ErrQuorum        = &Error{Kind: KindQuorum}
	ErrInvalidInput  = &Error{Kind: KindInvalidInput}
	ErrState         = &Error{Kind: KindState}
)

var (
	ErrNotOwner           = newError(KindAuthorization, "sender is not the owner")
	ErrNotValidator       = newError(KindAuthorization, "signer is not a validator")
	ErrNotRegisteredToken = newError(KindAuthorization, "caller is not a registered token")
	ErrTransferNotFunded  = newError(KindAuthorization, "token transfer was not received by the bridge")

	ErrInvalidThreshold   = newError(KindConfiguration, "invalid required signatures")
	ErrInvalidValidator   = newError(KindConfiguration, "invalid validator address")
	ErrUnknownValidator   = newError(KindConfiguration, "validator is not in the set")
	ErrInvalidOwner       = newError(KindConfiguration, "invalid owner address")
	ErrInvalidDecimals    = newError(KindConfiguration, "token decimals exceed 18")
	ErrInvalidLimits      = newError(KindConfiguration, "limits must satisfy minPerTx <= maxPerTx <= dailyLimit")
	ErrAssetNotRegistered = newError(KindConfiguration, "asset is not registered")
	ErrAssetConflict      = newError(KindConfiguration, "asset registration conflicts with an existing mapping")
	ErrTokenNotOwned      = newError(KindConfiguration, "token is not owned by the bridge")
	ErrClaimBridgedAsset  = newError(KindConfiguration, "registered assets cannot be claimed")
	ErrUnknownToken       = newError(KindConfiguration, "no token deployed at address")

	ErrAlreadyInitialized     = newError(KindDuplicate, "already initialized")
	ErrDuplicateValidator     = newError(KindDuplicate, "validator already exists")
	ErrDuplicateSigner        = newError(KindDuplicate, "signer already submitted for this message")
	ErrAssetAlreadyRegistered = newError(KindDuplicate, "asset already registered")
	ErrAlreadyExecuted        = newError(KindDuplicate, "transfer already executed")
	ErrDepositNonce           = newError(KindDuplicate, "deposit nonce already used or out of order")

	ErrBelowMinPerTx      = newError(KindLimit, "amount is below the per-transaction minimum")
	ErrAboveMaxPerTx      = newError(KindLimit, "amount exceeds the per-transaction maximum")
	ErrDailyLimitExceeded = newError(KindLimit, "amount exceeds the remaining daily limit")

	ErrInsufficientSignatures = newError(KindQuorum, "insufficient distinct validator signatures")
	ErrQuorumNotReached       = newError(KindQuorum, "message has not reached quorum")

	ErrInvalidMessage    = newError(KindInvalidInput, "malformed transfer message")
	ErrInvalidSignature  = newError(KindInvalidInput, "malformed or unrecoverable signature")
	ErrInvalidAmount     = newError(KindInvalidInput, "amount must be positive")
	ErrInvalidRecipient  = newError(KindInvalidInput, "invalid recipient")
	ErrInsufficientFunds = newError(KindInvalidInput, "insufficient balance for transfer")
	ErrInvalidDeposit    = newError(KindInvalidInput, "malformed deposit")

	ErrNotInitialized  = newError(KindState, "not initialized")
	ErrMessageNotFound = newError(KindState, "no signatures collected for message")
)

// KindOf reports the Kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
