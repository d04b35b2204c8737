package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUsers(t *testing.T) {
	users, err := parseUsers([]string{"admin@example.com:admin", "ops@example.com:p:w"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"admin@example.com": "admin",
		"ops@example.com":   "p:w",
	}, users)

	for _, bad := range [][]string{{"nopassword"}, {":pw"}, {"a@example.com:"}, nil} {
		_, err := parseUsers(bad)
		assert.Error(t, err)
	}
}
