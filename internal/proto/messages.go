package proto

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// Message keys.
const (
	FieldKind              = "kind"
	FieldStatus            = "status"
	FieldLogin             = "login"
	FieldNewLogin          = "new_login"
	FieldPassword          = "password"
	FieldOldPassword       = "old_password"
	FieldNewPassword       = "new_password"
	FieldTemporaryPassword = "temporary_password"
	FieldToken             = "token"
	FieldAttempt           = "attempt"
	FieldAttemptsRemaining = "attempts_remaining"
	FieldLockedSeconds     = "locked_seconds"
	FieldPasswordExpired   = "password_expired"
	FieldGivenName         = "given_name"
	FieldFamilyName        = "family_name"
	FieldRole              = "role"
	FieldTerritory         = "territory"
	FieldPasswordExpiry    = "password_expiry"
	FieldCreatedAt         = "created_at"
	FieldLockedUntil       = "locked_until"
	FieldAccount           = "account"
	FieldAccounts          = "accounts"
	FieldHomonym           = "homonym"
)

// Login conversation message kinds and result statuses.
const (
	KindChallenge = "challenge"
	KindResult    = "result"

	StatusOK                 = "ok"
	StatusInvalidCredentials = "invalid_credentials"
	StatusLocked             = "locked"
)

// Values is a message under construction.
type Values map[string]*structpb.Value

func (v Values) Str(key, s string) Values {
	v[key] = structpb.NewStringValue(s)
	return v
}

func (v Values) Int(key string, n int) Values {
	v[key] = structpb.NewNumberValue(float64(n))
	return v
}

func (v Values) Bool(key string, b bool) Values {
	v[key] = structpb.NewBoolValue(b)
	return v
}

func (v Values) Struct(key string, s *structpb.Struct) Values {
	v[key] = structpb.NewStructValue(s)
	return v
}

func (v Values) Message() *structpb.Struct {
	return &structpb.Struct{Fields: v}
}

// Str reads a string field; missing or mistyped fields read as "".
func Str(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func Int(s *structpb.Struct, key string) int {
	return int(s.GetFields()[key].GetNumberValue())
}

func Bool(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}

func Struct(s *structpb.Struct, key string) *structpb.Struct {
	return s.GetFields()[key].GetStructValue()
}

// Account is the public view of a principal. The credential never leaves the
// server.
type Account struct {
	Login          string
	GivenName      string
	FamilyName     string
	Role           string
	Territory      string
	PasswordExpiry time.Time
	CreatedAt      time.Time
	// zero when not locked
	LockedUntil time.Time
}

func (a Account) FullName() string {
	return a.GivenName + " " + a.FamilyName
}

func (a Account) Message() *structpb.Struct {
	v := Values{}.
		Str(FieldLogin, a.Login).
		Str(FieldGivenName, a.GivenName).
		Str(FieldFamilyName, a.FamilyName).
		Str(FieldRole, a.Role).
		Str(FieldTerritory, a.Territory).
		Str(FieldPasswordExpiry, formatTime(a.PasswordExpiry)).
		Str(FieldCreatedAt, formatTime(a.CreatedAt))
	if !a.LockedUntil.IsZero() {
		v.Str(FieldLockedUntil, formatTime(a.LockedUntil))
	}
	return v.Message()
}

// AccountFrom decodes an Account message. Unparsable times decode as zero.
func AccountFrom(s *structpb.Struct) Account {
	return Account{
		Login:          Str(s, FieldLogin),
		GivenName:      Str(s, FieldGivenName),
		FamilyName:     Str(s, FieldFamilyName),
		Role:           Str(s, FieldRole),
		Territory:      Str(s, FieldTerritory),
		PasswordExpiry: parseTime(Str(s, FieldPasswordExpiry)),
		CreatedAt:      parseTime(Str(s, FieldCreatedAt)),
		LockedUntil:    parseTime(Str(s, FieldLockedUntil)),
	}
}

// AccountList encodes accounts under FieldAccounts.
func AccountList(accounts []Account) *structpb.Struct {
	values := make([]*structpb.Value, 0, len(accounts))
	for _, a := range accounts {
		values = append(values, structpb.NewStructValue(a.Message()))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldAccounts: structpb.NewListValue(&structpb.ListValue{Values: values}),
	}}
}

func AccountsFrom(s *structpb.Struct) []Account {
	values := s.GetFields()[FieldAccounts].GetListValue().GetValues()
	out := make([]Account, 0, len(values))
	for _, v := range values {
		out = append(out, AccountFrom(v.GetStructValue()))
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
