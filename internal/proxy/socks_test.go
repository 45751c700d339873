package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSocksClient(t *testing.T) {
	c, err := NewSocksClient("127.0.0.1:1080")
	require.NoError(t, err)
	require.NotNil(t, c.Transport)
	assert.NotZero(t, c.Timeout)
}
