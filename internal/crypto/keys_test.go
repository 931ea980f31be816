package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecret(t *testing.T) {
	first, err := GenerateSecret()
	require.NoError(t, err)
	second, err := GenerateSecret()
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(first)
	require.NoError(t, err)
	assert.Len(t, raw, SecretSize)
	assert.NotEqual(t, first, second, "секреты должны различаться")
}

func TestDeriveServerKeys(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		wantErr bool
	}{
		{name: "valid secret", secret: "correct-horse-battery-staple", wantErr: false},
		{name: "minimal length", secret: "0123456789abcdef", wantErr: false},
		{name: "empty secret", secret: "", wantErr: true},
		{name: "short secret", secret: "short", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys, err := DeriveServerKeys(tt.secret)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, keys.TokenKey, Argon2KeyLen)
			assert.Len(t, keys.LinkKey, Argon2KeyLen)
			assert.NotEqual(t, keys.TokenKey, keys.LinkKey, "ключи должны быть независимыми")
		})
	}
}

func TestDeriveServerKeys_Deterministic(t *testing.T) {
	a, err := DeriveServerKeys("shared-cluster-secret")
	require.NoError(t, err)
	b, err := DeriveServerKeys("shared-cluster-secret")
	require.NoError(t, err)
	c, err := DeriveServerKeys("another-cluster-secret")
	require.NoError(t, err)

	assert.Equal(t, a, b, "одинаковый секрет дает одинаковые ключи на всех узлах")
	assert.NotEqual(t, a.TokenKey, c.TokenKey)
	assert.NotEqual(t, a.LinkKey, c.LinkKey)
}
