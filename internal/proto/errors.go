package proto

import (
	"errors"
	"math"
	"time"

	"github.com/dmitrijs2005/staffkeeper/internal/common"
	"google.golang.org/protobuf/types/known/structpb"
)

// Keys of the error detail attached to failed calls.
const (
	FieldError  = "error"
	FieldRule   = "rule"
	FieldField  = "field"
	FieldReason = "reason"
)

const (
	ErrorCredential     = "credential"
	ErrorLocked         = "locked"
	ErrorAuthorization  = "authorization"
	ErrorValidation     = "validation"
	ErrorGovernance     = "governance"
	ErrorDuplicateLogin = "duplicate_login"
	ErrorNotFound       = "not_found"
)

// Seconds rounds d up to whole seconds.
func Seconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

// ErrorDetail describes err for the client, or returns nil when err has no
// client-visible shape.
func ErrorDetail(err error) *structpb.Struct {
	var (
		cred   *common.CredentialError
		locked *common.LockedError
		denied *common.AuthorizationError
		bad    *common.ValidationError
		seat   *common.GovernanceConflictError
	)
	switch {
	case errors.As(err, &cred):
		return Values{}.Str(FieldError, ErrorCredential).Int(FieldAttemptsRemaining, cred.AttemptsRemaining).Message()
	case errors.As(err, &locked):
		return Values{}.Str(FieldError, ErrorLocked).Int(FieldLockedSeconds, Seconds(locked.Remaining)).Message()
	case errors.As(err, &denied):
		return Values{}.Str(FieldError, ErrorAuthorization).Str(FieldRule, denied.Rule).Message()
	case errors.As(err, &bad):
		return Values{}.Str(FieldError, ErrorValidation).Str(FieldField, bad.Field).Str(FieldReason, bad.Reason).Message()
	case errors.As(err, &seat):
		return Values{}.Str(FieldError, ErrorGovernance).
			Str(FieldTerritory, seat.Territory).
			Str(FieldLogin, seat.Login).
			Str(FieldRole, seat.Role).
			Message()
	case errors.Is(err, common.ErrDuplicateLogin):
		return Values{}.Str(FieldError, ErrorDuplicateLogin).Message()
	case errors.Is(err, common.ErrorNotFound):
		return Values{}.Str(FieldError, ErrorNotFound).Message()
	}
	return nil
}

// ErrorFromDetail rebuilds the error described by an ErrorDetail message.
// Unknown details yield nil.
func ErrorFromDetail(s *structpb.Struct) error {
	switch Str(s, FieldError) {
	case ErrorCredential:
		return &common.CredentialError{AttemptsRemaining: Int(s, FieldAttemptsRemaining)}
	case ErrorLocked:
		return &common.LockedError{Remaining: time.Duration(Int(s, FieldLockedSeconds)) * time.Second, Persisted: true}
	case ErrorAuthorization:
		return &common.AuthorizationError{Rule: Str(s, FieldRule)}
	case ErrorValidation:
		return &common.ValidationError{Field: Str(s, FieldField), Reason: Str(s, FieldReason)}
	case ErrorGovernance:
		return &common.GovernanceConflictError{
			Territory: Str(s, FieldTerritory),
			Login:     Str(s, FieldLogin),
			Role:      Str(s, FieldRole),
		}
	case ErrorDuplicateLogin:
		return common.ErrDuplicateLogin
	case ErrorNotFound:
		return common.ErrorNotFound
	}
	return nil
}
