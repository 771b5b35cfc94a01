// Package chaindb 只读访问geth的chaindata，按表达式搜索合约并反查地址
package chaindb

import (
	"encoding/hex"
	"math/big"
	"regexp"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Notation/gscanner/internal/solidity"
)

var ErrAddressNotFound = errors.New("address not found")

var regAddressHash = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// Account 状态树中的合约账户
type Account struct {
	Address     string // 原像缺失时为空
	AddressHash common.Hash
	Balance     *big.Int
	CodeHash    common.Hash
	Code        []byte
}

// Source 账户数据来源
type Source interface {
	// Contracts 按状态树顺序遍历有代码的账户
	Contracts(fn func(*Account) error) error
	Preimage(hash common.Hash) []byte
	Close() error
}

// SearchFunc 每个匹配的合约调用一次
type SearchFunc func(codeHash, address string, balance *big.Int)

type Database struct {
	source Source
}

func New(source Source) *Database {
	return &Database{source: source}
}

// Open 以只读方式打开path下的geth chaindata
func Open(path string) (*Database, error) {
	source, err := openGeth(path)
	if err != nil {
		return nil, err
	}
	return New(source), nil
}

func (d *Database) Close() error {
	return d.source.Close()
}

// Search 遍历全部合约，对匹配expression的合约调用fn
func (d *Database) Search(expression string, fn SearchFunc) error {
	probe, err := solidity.NewEVMContract("", "", "", nil)
	if err != nil {
		return err
	}
	if _, err := probe.MatchesExpression(expression); err != nil {
		return err
	}
	// 相同代码只反汇编一次
	matched := make(map[common.Hash]bool)
	return d.source.Contracts(func(account *Account) error {
		match, ok := matched[account.CodeHash]
		if !ok {
			contract, err := solidity.NewEVMContract(hex.EncodeToString(account.Code), "", "", nil)
			if err != nil {
				log.Debugf("skip %s: %v", account.CodeHash.Hex(), err)
				matched[account.CodeHash] = false
				return nil
			}
			if match, err = contract.MatchesExpression(expression); err != nil {
				return err
			}
			matched[account.CodeHash] = match
		}
		if !match {
			return nil
		}
		address := account.Address
		if address == "" {
			address = d.lookupPreimage(account.AddressHash)
		}
		fn(account.CodeHash.Hex(), address, account.Balance)
		return nil
	})
}

func (d *Database) lookupPreimage(hash common.Hash) string {
	preimage := d.source.Preimage(hash)
	if len(preimage) == 0 {
		return ""
	}
	return "0x" + hex.EncodeToString(preimage)
}

// ContractHashToAddress 由keccak256(address)反查地址，找不到时返回ErrAddressNotFound
func (d *Database) ContractHashToAddress(hash string) (string, error) {
	if !regAddressHash.MatchString(hash) {
		return "", errors.New("Invalid address hash. Expected format is '0x...'.")
	}
	address := d.lookupPreimage(common.HexToHash(hash))
	if address == "" {
		return "", ErrAddressNotFound
	}
	return address, nil
}
