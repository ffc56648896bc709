package circulation

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups error codes by how a caller should react to them.
type Kind string

const (
	KindValidation   Kind = "VALIDATION"
	KindPrecondition Kind = "PRECONDITION"
	KindConflict     Kind = "CONFLICT"
	KindConsistency  Kind = "CONSISTENCY"
	KindNotFound     Kind = "NOT_FOUND"
)

type DomainError struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error { return e.Err }

// Is matches on Code, so errors.Is(err, ErrNotOnLoan) holds for any message.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

const (
	CodeInvalidArgument         = "INVALID_ARGUMENT"
	CodeInvalidRange            = "INVALID_RANGE"
	CodeInvalidLoanLength       = "INVALID_LOAN_LENGTH"
	CodeInvalidISBN             = "INVALID_ISBN"
	CodeInvalidPayment          = "INVALID_PAYMENT"
	CodeDateInFuture            = "DATE_IN_FUTURE"
	CodeInvalidRenewalDate      = "INVALID_RENEWAL_DATE"
	CodeMissingDueDate          = "MISSING_DUE_DATE"
	CodeMemberArchived          = "MEMBER_ARCHIVED"
	CodeItemUnavailable         = "ITEM_UNAVAILABLE"
	CodeNotScheduled            = "NOT_SCHEDULED"
	CodeNotOnLoan               = "NOT_ON_LOAN"
	CodeNotLate                 = "NOT_LATE"
	CodeUnresolvedFine          = "UNRESOLVED_FINE"
	CodeFineAlreadyCharged      = "FINE_ALREADY_CHARGED"
	CodeAlreadyCancelled        = "ALREADY_CANCELLED"
	CodeRenewalLimitReached     = "RENEWAL_LIMIT_REACHED"
	CodeNothingOwed             = "NOTHING_OWED"
	CodeOverpayment             = "OVERPAYMENT"
	CodeConfirmationRequired    = "CONFIRMATION_REQUIRED"
	CodeDeletionBlocked         = "DELETION_BLOCKED"
	CodeScheduleConflict        = "SCHEDULE_CONFLICT"
	CodeRenewalConflict         = "RENEWAL_CONFLICT"
	CodeNegativeBalance         = "NEGATIVE_BALANCE"
	CodeGiveAfterScheduleFailed = "GIVE_AFTER_SCHEDULE_FAILED"
	CodeLoanMissing             = "LOAN_MISSING"
	CodeNotFound                = "NOT_FOUND"
	CodeNoLoans                 = "NO_LOANS"
	CodeUnknownObject           = "UNKNOWN_OBJECT"
)

// Sentinels for errors.Is. Operations return fresh errors with more specific
// messages; these only carry the code.
var (
	ErrInvalidRange        = &DomainError{Kind: KindValidation, Code: CodeInvalidRange, Message: "end date is before start date"}
	ErrInvalidLoanLength   = &DomainError{Kind: KindValidation, Code: CodeInvalidLoanLength, Message: "loan length must be a positive number of days"}
	ErrInvalidISBN         = &DomainError{Kind: KindValidation, Code: CodeInvalidISBN, Message: "not a valid ISBN-10 or ISBN-13"}
	ErrInvalidPayment      = &DomainError{Kind: KindValidation, Code: CodeInvalidPayment, Message: "payment amount must be greater than zero"}
	ErrDateInFuture        = &DomainError{Kind: KindValidation, Code: CodeDateInFuture, Message: "date is in the future"}
	ErrInvalidRenewalDate  = &DomainError{Kind: KindValidation, Code: CodeInvalidRenewalDate, Message: "renewal date must be after the current due date"}
	ErrMissingDueDate      = &DomainError{Kind: KindValidation, Code: CodeMissingDueDate, Message: "loan is missing its due date"}
	ErrMemberArchived      = &DomainError{Kind: KindPrecondition, Code: CodeMemberArchived, Message: "member has been archived and cannot be loaned items"}
	ErrItemUnavailable     = &DomainError{Kind: KindPrecondition, Code: CodeItemUnavailable, Message: "item is on loan or not allowed to be loaned"}
	ErrNotScheduled        = &DomainError{Kind: KindPrecondition, Code: CodeNotScheduled, Message: "loan is not scheduled"}
	ErrNotOnLoan           = &DomainError{Kind: KindPrecondition, Code: CodeNotOnLoan, Message: "item is not on loan"}
	ErrNotLate             = &DomainError{Kind: KindPrecondition, Code: CodeNotLate, Message: "item is not late on the given date"}
	ErrUnresolvedFine      = &DomainError{Kind: KindPrecondition, Code: CodeUnresolvedFine, Message: "item would be returned late; charge or waive the fine first"}
	ErrFineAlreadyCharged  = &DomainError{Kind: KindPrecondition, Code: CodeFineAlreadyCharged, Message: "loan has already been fined"}
	ErrAlreadyCancelled    = &DomainError{Kind: KindPrecondition, Code: CodeAlreadyCancelled, Message: "fine is already cancelled"}
	ErrRenewalLimitReached = &DomainError{Kind: KindPrecondition, Code: CodeRenewalLimitReached, Message: "loan has been renewed the maximum number of times"}
	ErrNothingOwed         = &DomainError{Kind: KindPrecondition, Code: CodeNothingOwed, Message: "member does not owe the library money"}
	ErrOverpayment         = &DomainError{Kind: KindPrecondition, Code: CodeOverpayment, Message: "payment is greater than the amount owed"}
	ErrConfirmationNeeded  = &DomainError{Kind: KindPrecondition, Code: CodeConfirmationRequired, Message: "object has dependents; confirm to delete them too"}
	ErrDeletionBlocked     = &DomainError{Kind: KindPrecondition, Code: CodeDeletionBlocked, Message: "object cannot be deleted while on loan or fined"}
	ErrScheduleConflict    = &DomainError{Kind: KindConflict, Code: CodeScheduleConflict, Message: "loan period clashes with another loan"}
	ErrRenewalConflict     = &DomainError{Kind: KindConflict, Code: CodeRenewalConflict, Message: "renewal would clash with scheduled loans"}
	ErrNegativeBalance     = &DomainError{Kind: KindConsistency, Code: CodeNegativeBalance, Message: "member would owe less than nothing"}
	ErrGiveAfterSchedule   = &DomainError{Kind: KindConsistency, Code: CodeGiveAfterScheduleFailed, Message: "loan was scheduled but the item could not be given to the member"}
	ErrLoanMissing         = &DomainError{Kind: KindConsistency, Code: CodeLoanMissing, Message: "item references a loan that does not exist; clean the item"}
	ErrNotFound            = &DomainError{Kind: KindNotFound, Code: CodeNotFound, Message: "not found"}
	ErrNoLoans             = &DomainError{Kind: KindNotFound, Code: CodeNoLoans, Message: "no loan found for that item on the given date"}
	ErrUnknownObject       = &DomainError{Kind: KindNotFound, Code: CodeUnknownObject, Message: "id does not belong to a library object"}
)

func NewNotFoundError(kind ObjectKind, id string) error {
	return &DomainError{Kind: KindNotFound, Code: CodeNotFound, Message: fmt.Sprintf("no %s with id %s", kind, id)}
}

func NewInvalidArgumentError(msg string) error {
	return &DomainError{Kind: KindValidation, Code: CodeInvalidArgument, Message: msg}
}

// withMessage copies a sentinel with a more specific message.
func withMessage(base *DomainError, format string, args ...any) error {
	return &DomainError{Kind: base.Kind, Code: base.Code, Message: fmt.Sprintf(format, args...)}
}

// wrap copies a sentinel and attaches the underlying cause.
func wrap(base *DomainError, cause error) error {
	return &DomainError{Kind: base.Kind, Code: base.Code, Message: base.Message, Err: cause}
}

// ToHTTPStatus maps an error from this package to a response status.
func ToHTTPStatus(err error) int {
	var de *DomainError
	if !errors.As(err, &de) {
		return http.StatusInternalServerError
	}
	switch de.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindConsistency:
		return http.StatusConflict
	case KindPrecondition:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
