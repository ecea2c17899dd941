package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveLogin(t *testing.T) {
	tests := []struct {
		given, family string
		want          string
	}{
		{"Alice", "Martin", "amartin"},
		{"alice", "MARTIN", "amartin"},
		{"Jean", "De La Fontaine", "jdelafontaine"},
		{"  Marc", "Le\tGall", "mlegall"},
		{"Élodie", "Durand", "édurand"},
		{"Zoë", "Nguyễn Văn", "znguyễnvăn"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveLogin(tt.given, tt.family))
		})
	}
}

func setExists(taken ...string) ExistsFunc {
	m := map[string]bool{}
	for _, l := range taken {
		m[l] = true
	}
	return func(_ context.Context, login string) (bool, error) {
		return m[login], nil
	}
}

func TestResolveUniqueLogin_FreeCandidateReturnedAsIs(t *testing.T) {
	got, err := ResolveUniqueLogin(context.Background(), "amartin", setExists("bdurand"))
	require.NoError(t, err)
	assert.Equal(t, "amartin", got)
}

func TestResolveUniqueLogin_AppendsIncreasingSuffix(t *testing.T) {
	got, err := ResolveUniqueLogin(context.Background(), "amartin", setExists("amartin"))
	require.NoError(t, err)
	assert.Equal(t, "amartin1", got)

	got, err = ResolveUniqueLogin(context.Background(), "amartin", setExists("amartin", "amartin1", "amartin2"))
	require.NoError(t, err)
	assert.Equal(t, "amartin3", got)
}

func TestResolveUniqueLogin_NeverReturnsTakenLogin(t *testing.T) {
	exists := setExists("x", "x1", "x2", "x4", "x10")
	for _, c := range []string{"x", "x1", "y"} {
		got, err := ResolveUniqueLogin(context.Background(), c, exists)
		require.NoError(t, err)
		taken, _ := exists(context.Background(), got)
		assert.False(t, taken, "returned taken login %q", got)
	}
}

func TestResolveUniqueLogin_LookupError(t *testing.T) {
	boom := errors.New("store down")
	_, err := ResolveUniqueLogin(context.Background(), "amartin", func(context.Context, string) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestResolveUniqueLogin_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ResolveUniqueLogin(ctx, "amartin", setExists())
	assert.ErrorIs(t, err, context.Canceled)
}
