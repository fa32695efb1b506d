package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrConflict         = errors.New("concurrent modification")
	ErrRateLimited      = errors.New("rate limited")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrLockHeld         = errors.New("lock already held")
	ErrAlreadyProcessed = errors.New("transaction already processed")
	ErrExpired          = errors.New("transaction expired")
	ErrInvalidSignature = errors.New("invalid signature")
)

// ProgramError is a typed failure returned by an instruction. Codes are
// stable and travel over the wire; clients turn them back into the same
// sentinel with ProgramErrorFromCode.
type ProgramError struct {
	Code uint32
	Name string
	Msg  string
}

// Error includes the numeric code and the name.
func (e *ProgramError) Error() string {
	return fmt.Sprintf("program error %d (%s): %s", e.Code, e.Name, e.Msg)
}

func newProgramError(code uint32, name, msg string) *ProgramError {
	e := &ProgramError{Code: code, Name: name, Msg: msg}
	programErrors[code] = e
	return e
}

var programErrors = map[uint32]*ProgramError{}

// Framework errors.
var (
	ErrInstructionFallbackNotFound  = newProgramError(101, "InstructionFallbackNotFound", "Fallback functions are not supported")
	ErrInstructionDidNotDeserialize = newProgramError(102, "InstructionDidNotDeserialize", "The program could not deserialize the given instruction")
	ErrConstraintSeeds              = newProgramError(2006, "ConstraintSeeds", "A seeds constraint was violated")
	ErrAccountDidNotDeserialize     = newProgramError(3003, "AccountDidNotDeserialize", "Failed to deserialize the account")
	ErrNotEnoughAccountKeys         = newProgramError(3005, "AccountNotEnoughKeys", "Not enough account keys given to the instruction")
	ErrAccountOwnedByWrongProgram   = newProgramError(3007, "AccountOwnedByWrongProgram", "The given account is owned by a different program than expected")
	ErrAccountNotSigner             = newProgramError(3010, "AccountNotSigner", "The given account did not sign")
	ErrAccountNotInitialized        = newProgramError(3012, "AccountNotInitialized", "The program expected this account to be already initialized")
	ErrAccountAlreadyInUse          = newProgramError(3014, "AccountAlreadyInUse", "The account is already in use")
	ErrAccountNotWritable           = newProgramError(3015, "AccountNotWritable", "The given account is not mutable")
	ErrMaxSeedLengthExceeded        = newProgramError(3016, "MaxSeedLengthExceeded", "Length of the seed is too long for address generation")
	ErrInsufficientFunds            = newProgramError(3017, "InsufficientFunds", "Insufficient funds for the transfer")
)

// Token program errors.
var (
	ErrTokenInsufficientFunds = newProgramError(4001, "TokenInsufficientFunds", "Insufficient token balance")
	ErrTokenMintMismatch      = newProgramError(4003, "TokenMintMismatch", "Account not associated with this mint")
	ErrTokenOwnerMismatch     = newProgramError(4004, "TokenOwnerMismatch", "Owner does not match")
)

// Market program errors.
var (
	ErrInvalidSwitchboardAccount  = newProgramError(6000, "InvalidSwitchboardAccount", "Invalid Switchboard account")
	ErrStaleFeed                  = newProgramError(6001, "StaleFeed", "Feed has not been updated in 5 minutes")
	ErrConfidenceIntervalExceeded = newProgramError(6002, "ConfidenceIntervalExceeded", "Confidence interval exceeded")
	ErrInvalidFundAmount          = newProgramError(6003, "InvalidFundAmount", "Invalid fund amount")
	// 6004 is never raised. It keeps the remaining codes stable.
	ErrSolPriceBelowUnlockPrice = newProgramError(6004, "SolPriceBelowUnlockPrice", "Current SOL price is not above Escrow unlock price")
	ErrArithmetic               = newProgramError(6005, "ArithmeticError", "Arithmetic error")
	ErrInvalidCreator           = newProgramError(6006, "InvalidCreator", "Invalid creator")
	ErrInvalidFeeAuthority      = newProgramError(6007, "InvalidFeeAuthority", "Invalid fee authority")
	ErrNotPreparing             = newProgramError(6008, "NotPreparing", "Not preparing status")
	ErrInvalidMarket            = newProgramError(6009, "InvalidMarket", "Invalid market status for this operation")
	ErrMarketNotActive          = newProgramError(6010, "MarketNotActive", "Market is not active")
	ErrInvalidAdmin             = newProgramError(6011, "InvalidAdmin", "Invalid admin")
	ErrResolutionNotReady       = newProgramError(6012, "ResolutionNotReady", "Market is not yet eligible for resolution")
	ErrInvalidParams            = newProgramError(6013, "InvalidParams", "Invalid instruction parameters")
)

// ProgramErrorFromCode returns the registered error for code, or a generic
// ProgramError carrying the code when it is unknown to this build.
func ProgramErrorFromCode(code uint32, name, msg string) *ProgramError {
	if e, ok := programErrors[code]; ok {
		return e
	}
	return &ProgramError{Code: code, Name: name, Msg: msg}
}

// AsProgramError extracts a ProgramError from err's chain.
func AsProgramError(err error) (*ProgramError, bool) {
	var pe *ProgramError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
