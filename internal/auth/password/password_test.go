package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashVerifies(t *testing.T) {
	encoded, err := Hash("correct horse")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=65536,t=1,p=4$"))

	assert.True(t, Verify("correct horse", encoded))
	assert.False(t, Verify("battery staple", encoded))

	again, err := Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, encoded, again)
}

func TestVerifyRejectsMalformedHashes(t *testing.T) {
	encoded, err := Hash("s3cret")
	require.NoError(t, err)
	parts := strings.Split(encoded, "$")

	for name, value := range map[string]string{
		"empty":        "",
		"bcrypt":       "$2a$10$abcdefghijklmnopqrstuv",
		"zero params":  strings.Join([]string{"", "argon2id", "v=19", "m=0,t=0,p=0", parts[4], parts[5]}, "$"),
		"bad params":   strings.Join([]string{"", "argon2id", "v=19", "memory", parts[4], parts[5]}, "$"),
		"bad salt":     strings.Join([]string{"", "argon2id", "v=19", parts[3], "!!", parts[5]}, "$"),
		"old version":  strings.Join([]string{"", "argon2id", "v=16", parts[3], parts[4], parts[5]}, "$"),
		"empty digest": strings.Join([]string{"", "argon2id", "v=19", parts[3], parts[4], ""}, "$"),
	} {
		assert.False(t, Verify("s3cret", value), name)
	}
}
