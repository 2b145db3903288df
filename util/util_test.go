package util

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateOrderNo(t *testing.T) {
	first, err := GenerateOrderNo()
	require.NoError(t, err)
	require.Len(t, first, 16)
	_, err = strconv.ParseUint(first, 16, 64)
	require.NoError(t, err)

	second, err := GenerateOrderNo()
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}
