package chaindb

import (
	"encoding/hex"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// transfer(address,uint256) 分发表
const transferCode = "63a9059cbb14600a57005b606052"

type fakeSource struct {
	accounts  []*Account
	preimages map[common.Hash][]byte
	closed    bool
}

func (f *fakeSource) Contracts(fn func(*Account) error) error {
	for _, account := range f.accounts {
		if err := fn(account); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeSource) Preimage(hash common.Hash) []byte {
	return f.preimages[hash]
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

func newFakeSource(t *testing.T) *fakeSource {
	code, err := hex.DecodeString(transferCode)
	require.NoError(t, err)
	address := common.HexToAddress("0x1111111111111111111111111111111111111111")
	hidden := common.HexToAddress("0x2222222222222222222222222222222222222222")
	return &fakeSource{
		accounts: []*Account{
			{
				Address:     "0x1111111111111111111111111111111111111111",
				AddressHash: crypto.Keccak256Hash(address.Bytes()),
				Balance:     big.NewInt(7),
				CodeHash:    crypto.Keccak256Hash(code),
				Code:        code,
			},
			{
				AddressHash: crypto.Keccak256Hash(hidden.Bytes()),
				Balance:     big.NewInt(0),
				CodeHash:    crypto.Keccak256Hash([]byte{0x00}),
				Code:        []byte{0x00},
			},
		},
		preimages: map[common.Hash][]byte{
			crypto.Keccak256Hash(hidden.Bytes()): hidden.Bytes(),
		},
	}
}

func TestDatabase_Search(t *testing.T) {
	source := newFakeSource(t)
	db := New(source)

	var found []string
	err := db.Search("func#transfer(address,uint256)#", func(codeHash, address string, balance *big.Int) {
		found = append(found, address+" "+balance.String())
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"0x1111111111111111111111111111111111111111 7"}, found)

	found = nil
	err = db.Search("code#STOP#", func(codeHash, address string, balance *big.Int) {
		found = append(found, address)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"0x1111111111111111111111111111111111111111",
		"0x2222222222222222222222222222222222222222",
	}, found)

	err = db.Search("bogus", func(string, string, *big.Int) {})
	assert.Error(t, err)

	require.NoError(t, db.Close())
	assert.True(t, source.closed)
}

func TestDatabase_ContractHashToAddress(t *testing.T) {
	db := New(newFakeSource(t))
	hidden := common.HexToAddress("0x2222222222222222222222222222222222222222")

	address, err := db.ContractHashToAddress(crypto.Keccak256Hash(hidden.Bytes()).Hex())
	require.NoError(t, err)
	assert.Equal(t, "0x2222222222222222222222222222222222222222", address)

	_, err = db.ContractHashToAddress("0x" + hex.EncodeToString(make([]byte, 32)))
	assert.True(t, errors.Is(err, ErrAddressNotFound))

	_, err = db.ContractHashToAddress("0x1234")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid address hash")
}

func TestOpen_Geth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chaindata")
	code, err := hex.DecodeString(transferCode)
	require.NoError(t, err)
	address := common.HexToAddress("0x3333333333333333333333333333333333333333")

	// 写一个只有一个合约账户的状态
	disk, err := rawdb.NewLevelDBDatabase(path, 16, 16, "", false)
	require.NoError(t, err)
	sdb := state.NewDatabaseWithConfig(disk, &trie.Config{Preimages: true})
	statedb, err := state.New(common.Hash{}, sdb, nil)
	require.NoError(t, err)
	statedb.SetBalance(address, big.NewInt(42))
	statedb.SetCode(address, code)
	root, err := statedb.Commit(false)
	require.NoError(t, err)
	require.NoError(t, sdb.TrieDB().Commit(root, false))
	header := &types.Header{Number: big.NewInt(1), Root: root, Difficulty: big.NewInt(1)}
	rawdb.WriteHeader(disk, header)
	rawdb.WriteHeadBlockHash(disk, header.Hash())
	require.NoError(t, disk.Close())

	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	var found []string
	err = db.Search("func#transfer(address,uint256)#", func(codeHash, address string, balance *big.Int) {
		found = append(found, address+" "+balance.String())
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"0x3333333333333333333333333333333333333333 42"}, found)

	got, err := db.ContractHashToAddress(crypto.Keccak256Hash(address.Bytes()).Hex())
	require.NoError(t, err)
	assert.Equal(t, "0x3333333333333333333333333333333333333333", got)
}

func TestOpen_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chaindata")
	disk, err := rawdb.NewLevelDBDatabase(path, 16, 16, "", false)
	require.NoError(t, err)
	require.NoError(t, disk.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no head block")
}
