package gscanner

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChain struct {
	code    map[string]string
	storage map[string]string
	err     error
	slots   []*big.Int
}

func (c *fakeChain) Code(ctx context.Context, address string) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return c.code[address], nil
}

func (c *fakeChain) StorageAt(ctx context.Context, address string, slot *big.Int) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	c.slots = append(c.slots, slot)
	if value, ok := c.storage[slot.String()]; ok {
		return value, nil
	}
	return fmt.Sprintf("0x%064x", slot), nil
}

type fakeSignatures struct {
	imported map[string]string
}

func (s *fakeSignatures) Lookup(selector string) ([]string, error) {
	for signature, sel := range s.imported {
		if "0x"+sel == selector {
			return []string{signature}, nil
		}
	}
	return nil, nil
}

func (s *fakeSignatures) Import(methodIdentifiers map[string]string) error {
	s.imported = methodIdentifiers
	return nil
}

const testAddress = "0xaffeaffeaffeaffeaffeaffeaffeaffeaffeaffe"

func TestLoadFromBytecode(t *testing.T) {
	md := NewDisassembler(nil, nil, solidityTestSettings)
	address, err := md.LoadFromBytecode("0x33ff", true)
	require.NoError(t, err)
	assert.Equal(t, "0x0000000000000000000000000000000000000000", address)
	require.Len(t, md.GetContracts(), 1)
	contract := md.GetContracts()[0]
	assert.Equal(t, MainContractName, contract.Name)
	assert.Equal(t, "33ff", contract.Code)
	assert.Equal(t, "", contract.CreationCode)

	_, err = md.LoadFromBytecode("6060", false)
	require.NoError(t, err)
	assert.Equal(t, "6060", md.GetContracts()[1].CreationCode)
	assert.Equal(t, "", md.GetContracts()[1].Code)

	_, err = md.LoadFromBytecode("zz", true)
	assert.Error(t, err)
}

func TestLoadFromAddress(t *testing.T) {
	ctx := context.Background()
	chain := &fakeChain{code: map[string]string{testAddress: "0x6060"}}

	md := NewDisassembler(chain, nil, solidityTestSettings)
	_, err := md.LoadFromAddress(ctx, "0x1234")
	assert.EqualError(t, err, "Invalid contract address. Expected format is '0x...'.")

	_, err = md.LoadFromAddress(ctx, "0x0000000000000000000000000000000000000001")
	assert.EqualError(t, err, "Received an empty response from eth_getCode. "+
		"Check the contract address and verify that you are on the correct chain.")

	address, err := md.LoadFromAddress(ctx, testAddress)
	require.NoError(t, err)
	assert.Equal(t, testAddress, address)
	require.Len(t, md.GetContracts(), 1)
	assert.Equal(t, testAddress, md.GetContracts()[0].Name)
	assert.Equal(t, "6060", md.GetContracts()[0].Code)

	chain.err = errors.New("connection refused")
	_, err = md.LoadFromAddress(ctx, testAddress)
	assert.EqualError(t, err, "IPC / RPC error: connection refused")

	_, err = NewDisassembler(nil, nil, solidityTestSettings).LoadFromAddress(ctx, testAddress)
	assert.Error(t, err)
}

func TestLoadFromSolidity(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "token.sol")
	require.NoError(t, os.WriteFile(file, []byte("pragma solidity ^0.8.0;\ncontract Token {}\n"), 0644))

	sigs := &fakeSignatures{}
	md := NewDisassembler(nil, sigs, solidityTestSettings)
	md.compile = fakeCompile(t, file)

	address, contracts, err := md.LoadFromSolidity([]string{file})
	require.NoError(t, err)
	assert.Equal(t, "0x0000000000000000000000000000000000000000", address)
	require.Len(t, contracts, 2)
	assert.Equal(t, "Base", contracts[0].Name)
	assert.Equal(t, "Token", contracts[1].Name)
	assert.Equal(t, file, contracts[1].InputFile)
	assert.Equal(t, map[string]string{"transfer(address,uint256)": "a9059cbb"}, sigs.imported)

	md = NewDisassembler(nil, nil, solidityTestSettings)
	md.compile = fakeCompile(t, file)
	_, contracts, err = md.LoadFromSolidity([]string{file + ":Token"})
	require.NoError(t, err)
	require.Len(t, contracts, 1)
	assert.Equal(t, "Token", contracts[0].Name)

	_, _, err = md.LoadFromSolidity([]string{file + ":Missing"})
	assert.EqualError(t, err, "The file "+file+" does not contain a compilable contract.")

	_, _, err = md.LoadFromSolidity([]string{filepath.Join(dir, "missing.sol")})
	assert.EqualError(t, err, "Input file not found: "+filepath.Join(dir, "missing.sol"))
}

func TestLoadTruffleProject(t *testing.T) {
	md := NewDisassembler(nil, nil, solidityTestSettings)
	_, err := md.LoadTruffleProject(t.TempDir())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSplitContractName(t *testing.T) {
	file, name := splitContractName("a/token.sol:Token")
	assert.Equal(t, "a/token.sol", file)
	assert.Equal(t, "Token", name)

	file, name = splitContractName("token.sol")
	assert.Equal(t, "token.sol", file)
	assert.Equal(t, "", name)

	file, name = splitContractName(`C:\token.sol`)
	assert.Equal(t, `C:\token.sol`, file)
	assert.Equal(t, "", name)
}
