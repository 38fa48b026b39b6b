package fieldcrypt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMasterKey(t *testing.T) {
	key, err := NormalizeMasterKey(testSecret)
	require.NoError(t, err)
	assert.Len(t, key, 32)

	// 归一化是确定性的
	again, err := NormalizeMasterKey(testSecret)
	require.NoError(t, err)
	assert.Equal(t, key, again)

	// 过短的口令是致命配置错误
	_, err = NormalizeMasterKey("")
	assert.Error(t, err)
	_, err = NormalizeMasterKey("short-secret")
	assert.Error(t, err)
}

func TestDeriveOrgKeyIsPureAndPerOrganization(t *testing.T) {
	master, err := NormalizeMasterKey(testSecret)
	require.NoError(t, err)

	keyA1, err := DeriveOrgKey(master, "org-a")
	require.NoError(t, err)
	keyA2, err := DeriveOrgKey(master, "org-a")
	require.NoError(t, err)
	keyB, err := DeriveOrgKey(master, "org-b")
	require.NoError(t, err)

	assert.Len(t, keyA1, 32)
	assert.Equal(t, keyA1, keyA2, "derivation must be deterministic")
	assert.NotEqual(t, keyA1, keyB, "different organizations must get different keys")

	_, err = DeriveOrgKey(master, "")
	assert.Error(t, err)
	_, err = DeriveOrgKey([]byte("short"), "org-a")
	assert.Error(t, err)
}
