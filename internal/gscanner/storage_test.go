package gscanner

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetStateVariableFromStorage(t *testing.T) {
	ctx := context.Background()
	chain := &fakeChain{storage: map[string]string{"0": "0x00000000000000000000000000000000000000000000000000000000000000ff"}}
	md := NewDisassembler(chain, nil, solidityTestSettings)

	out, err := md.GetStateVariableFromStorage(ctx, testAddress, nil)
	require.NoError(t, err)
	assert.Equal(t, "0: 0x00000000000000000000000000000000000000000000000000000000000000ff", out)

	out, err = md.GetStateVariableFromStorage(ctx, testAddress, []string{"1", "2"})
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("0x1: 0x%064x\n0x2: 0x%064x", 1, 2), out)

	// keccak256(uint256(0))
	out, err = md.GetStateVariableFromStorage(ctx, testAddress, []string{"0", "1", "array"})
	require.NoError(t, err)
	assert.Contains(t, out, "18569430475105882587588266137607568536673111973893317399460219858819262702947: ")
}

func TestGetStateVariableFromStorage_Mapping(t *testing.T) {
	ctx := context.Background()
	chain := &fakeChain{}
	md := NewDisassembler(chain, nil, solidityTestSettings)

	slot := func(key string, position int64) *big.Int {
		data := append(common.RightPadBytes([]byte(key), 32), common.LeftPadBytes(big.NewInt(position).Bytes(), 32)...)
		return new(big.Int).SetBytes(crypto.Keccak256(data))
	}

	out, err := md.GetStateVariableFromStorage(ctx, testAddress, []string{"mapping", "1", "alice"})
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%s: 0x%064x", slot("alice", 1), slot("alice", 1)), out)

	out, err = md.GetStateVariableFromStorage(ctx, testAddress, []string{"mapping", "2", "a", "b"})
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("0x%x: 0x%064x\n0x%x: 0x%064x", slot("a", 2), slot("a", 2), slot("b", 2), slot("b", 2)), out)
	require.Len(t, chain.slots, 3)
}

func TestGetStateVariableFromStorage_Invalid(t *testing.T) {
	ctx := context.Background()
	md := NewDisassembler(&fakeChain{}, nil, solidityTestSettings)
	for _, params := range [][]string{
		{"mapping", "1"},
		{"1", "2", "array", "4"},
	} {
		_, err := md.GetStateVariableFromStorage(ctx, testAddress, params)
		assert.EqualError(t, err, "Invalid number of parameters.", "%v", params)
	}
	for _, params := range [][]string{
		{"0x10"},
		{"1", "two"},
		{"mapping", "x", "key"},
	} {
		_, err := md.GetStateVariableFromStorage(ctx, testAddress, params)
		assert.EqualError(t, err, "Invalid storage index. Please provide a numeric value.", "%v", params)
	}

	_, err := NewDisassembler(nil, nil, solidityTestSettings).GetStateVariableFromStorage(ctx, testAddress, []string{"0"})
	assert.Error(t, err)
}
