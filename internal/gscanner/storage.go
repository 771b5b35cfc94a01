package gscanner

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

var (
	errStorageParams = errors.New("Invalid number of parameters.")
	errStorageIndex  = errors.New("Invalid storage index. Please provide a numeric value.")
)

func parseIndex(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || n.Sign() < 0 {
		return nil, errStorageIndex
	}
	return n, nil
}

// mappingSlot keccak(rpad32(key) ++ lpad32(position))
func mappingSlot(key string, position *big.Int) *big.Int {
	keyBytes := []byte(key)
	if len(keyBytes) < 32 {
		keyBytes = common.RightPadBytes(keyBytes, 32)
	}
	data := append(keyBytes, common.LeftPadBytes(position.Bytes(), 32)...)
	return new(big.Int).SetBytes(crypto.Keccak256(data))
}

// storageSlots 解析 INDEX,NUM_SLOTS,[array] 或 mapping,INDEX,[KEY1,KEY2...]
// mapping为true时返回的每个槽单独输出
func storageSlots(params []string) (position *big.Int, length int64, mappings []*big.Int, err error) {
	position, length = new(big.Int), 1
	if len(params) > 0 && params[0] == "mapping" {
		if len(params) < 3 {
			return nil, 0, nil, errStorageParams
		}
		if position, err = parseIndex(params[1]); err != nil {
			return nil, 0, nil, err
		}
		for _, key := range params[2:] {
			mappings = append(mappings, mappingSlot(key, position))
		}
		length = int64(len(mappings))
		if length == 1 {
			position = mappings[0]
		}
		return position, length, mappings, nil
	}

	if len(params) >= 4 {
		return nil, 0, nil, errStorageParams
	}
	if len(params) >= 1 {
		if position, err = parseIndex(params[0]); err != nil {
			return nil, 0, nil, err
		}
	}
	if len(params) >= 2 {
		n, err := parseIndex(params[1])
		if err != nil {
			return nil, 0, nil, err
		}
		if !n.IsInt64() {
			return nil, 0, nil, errStorageIndex
		}
		length = n.Int64()
	}
	if len(params) == 3 && params[2] == "array" {
		position = new(big.Int).SetBytes(crypto.Keccak256(common.LeftPadBytes(position.Bytes(), 32)))
	}
	return position, length, nil, nil
}

// GetStateVariableFromStorage 读取合约存储，每个槽一行
func (md *Disassembler) GetStateVariableFromStorage(ctx context.Context, address string, params []string) (string, error) {
	position, length, mappings, err := storageSlots(params)
	if err != nil {
		return "", err
	}
	if md.chain == nil {
		return "", errors.New("Please set up an RPC connection to read contract storage")
	}
	read := func(slot *big.Int) (string, error) {
		value, err := md.chain.StorageAt(ctx, address, slot)
		if err != nil {
			return "", errors.Wrap(err, "IPC / RPC error")
		}
		return value, nil
	}

	var lines []string
	switch {
	case length == 1:
		value, err := read(position)
		if err != nil {
			return "", err
		}
		lines = append(lines, fmt.Sprintf("%s: %s", position.String(), value))
	case len(mappings) > 0:
		for _, slot := range mappings {
			value, err := read(slot)
			if err != nil {
				return "", err
			}
			lines = append(lines, fmt.Sprintf("0x%x: %s", slot, value))
		}
	default:
		for i := int64(0); i < length; i++ {
			slot := new(big.Int).Add(position, big.NewInt(i))
			value, err := read(slot)
			if err != nil {
				return "", err
			}
			lines = append(lines, fmt.Sprintf("0x%x: %s", slot, value))
		}
	}
	return strings.Join(lines, "\n"), nil
}
