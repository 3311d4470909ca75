package model

import (
	"errors"

	"MemberReserve/internal/ledger"
)

// Input validation.
var (
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrNotFound            = errors.New("record not found")
	ErrNotOwner            = errors.New("caller does not own record")
	ErrEmptyBatch          = errors.New("no record ids given")
	ErrReserveCaller       = errors.New("reserve cannot join or exit")
	ErrInvalidArgument     = errors.New("invalid argument")
)

// ErrDuplicateID is returned when a batch names the same record twice. It also matches
// ErrNotOwner, since after the first transfer in the batch the caller no longer owns it.
var ErrDuplicateID error = duplicateIDError{}

type duplicateIDError struct{}

func (duplicateIDError) Error() string { return "duplicate record id in batch" }

func (duplicateIDError) Is(target error) bool { return target == ErrNotOwner }

// State-machine violations.
var (
	ErrMintNotStarted   = errors.New("minting has not started")
	ErrGovernanceLocked = errors.New("governance locked")
	ErrProposalActive   = errors.New("a proposal is already open for this period")
	ErrInvalidProposal  = errors.New("invalid proposal")
	ErrHasVoted         = errors.New("has voted")
	ErrVotingNotEnded   = errors.New("voting has not ended")
	ErrVotingClosed     = errors.New("voting closed")
)

// ErrUnauthorized is returned when a non-owner calls an administrative operation.
// It matches ErrNotOwner too, which is how set-governor failures are reported.
var ErrUnauthorized error = unauthorizedError{}

type unauthorizedError struct{}

func (unauthorizedError) Error() string { return "caller is not the owner" }

func (unauthorizedError) Is(target error) bool { return target == ErrNotOwner }

// Class groups errors by how a caller should react to them.
type Class string

const (
	ClassValidation    Class = "validation"
	ClassState         Class = "state"
	ClassAuthorization Class = "authorization"
	ClassInternal      Class = "internal"
)

// Classify maps err onto the error taxonomy. Unknown errors are internal.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return ClassAuthorization
	case errors.Is(err, ErrMintNotStarted),
		errors.Is(err, ErrGovernanceLocked),
		errors.Is(err, ErrProposalActive),
		errors.Is(err, ErrInvalidProposal),
		errors.Is(err, ErrHasVoted),
		errors.Is(err, ErrVotingNotEnded),
		errors.Is(err, ErrVotingClosed):
		return ClassState
	case errors.Is(err, ErrInsufficientPayment),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrNotOwner),
		errors.Is(err, ErrEmptyBatch),
		errors.Is(err, ErrReserveCaller),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ledger.ErrOverflow),
		errors.Is(err, ledger.ErrUnderflow):
		return ClassValidation
	default:
		return ClassInternal
	}
}
