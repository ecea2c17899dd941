package proto

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestAccount_Message(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
	a := Account{
		Login:          "amartin",
		GivenName:      "Alice",
		FamilyName:     "Martin",
		Role:           "User",
		Territory:      "Rennes",
		PasswordExpiry: created.Add(90 * 24 * time.Hour),
		CreatedAt:      created,
	}

	msg := a.Message()
	_, locked := msg.GetFields()[FieldLockedUntil]
	assert.False(t, locked)
	assert.Equal(t, "2026-01-02T03:04:05.000000006Z", Str(msg, FieldCreatedAt))

	if diff := cmp.Diff(a, AccountFrom(msg)); diff != "" {
		t.Fatalf("account mismatch (-want +got):\n%s", diff)
	}

	a.LockedUntil = created.Add(time.Minute)
	assert.True(t, AccountFrom(a.Message()).LockedUntil.Equal(a.LockedUntil))
}

func TestAccountList(t *testing.T) {
	list := []Account{{Login: "amartin"}, {Login: "bdurand", Role: "Admin"}}
	got := AccountsFrom(AccountList(list))
	assert.Len(t, got, 2)
	assert.Equal(t, "bdurand", got[1].Login)
	assert.Equal(t, "Admin", got[1].Role)

	assert.Empty(t, AccountsFrom(Values{}.Message()))
}

func TestAccessors_MissingFields(t *testing.T) {
	msg := Values{}.Str(FieldLogin, "x").Int(FieldAttempt, 2).Bool(FieldPasswordExpired, true).Message()

	assert.Equal(t, "x", Str(msg, FieldLogin))
	assert.Equal(t, 2, Int(msg, FieldAttempt))
	assert.True(t, Bool(msg, FieldPasswordExpired))

	assert.Empty(t, Str(msg, FieldToken))
	assert.Zero(t, Int(msg, FieldLockedSeconds))
	assert.Nil(t, Struct(msg, FieldAccount))
	assert.Empty(t, Str(nil, FieldLogin))
}

func TestFullMethod(t *testing.T) {
	assert.Equal(t, "/staffkeeper.v1.StaffService/Login", FullMethod(MethodLogin))
}
