package cryptox

import (
	"testing"

	"github.com/dmitrijs2005/vaultbox/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeyring(t *testing.T) {
	tests := []struct {
		name    string
		secrets map[string]string
		active  string
		wantErr error
	}{
		{"ok", map[string]string{"k1": "s"}, "k1", nil},
		{"no keys", nil, "k1", common.ErrValidation},
		{"active missing", map[string]string{"k1": "s"}, "k2", common.ErrUnknownKey},
		{"empty secret", map[string]string{"k1": "s", "k2": ""}, "k1", common.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kr, err := NewKeyring(tt.secrets, tt.active)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.active, kr.ActiveKeyID())
		})
	}
}

func TestDeriveKey(t *testing.T) {
	a1, err := DeriveKey("secret", "k1")
	require.NoError(t, err)
	a2, err := DeriveKey("secret", "k1")
	require.NoError(t, err)
	b, err := DeriveKey("secret", "k2")
	require.NoError(t, err)

	assert.Len(t, a1, KeySize)
	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, b)
}

func TestKeyring_KeyAndClose(t *testing.T) {
	kr, err := NewKeyring(map[string]string{"b": "x", "a": "y"}, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, kr.IDs())

	_, err = kr.Key("a")
	require.NoError(t, err)
	_, err = kr.Key("c")
	assert.ErrorIs(t, err, common.ErrUnknownKey)

	kr.Close()
	_, err = kr.Key("a")
	assert.ErrorIs(t, err, common.ErrUnknownKey)
}
