package util

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

func GetCodeHash(code string) (string, []byte, error) {
	data, err := hex.DecodeString(strings.TrimPrefix(code, "0x"))
	if err != nil {
		return "", nil, err
	}
	result := crypto.Keccak256(data)
	return hex.EncodeToString(result), result, nil
}

func Sha3(data string) ([]byte, error) {
	value, err := hex.DecodeString(strings.TrimPrefix(data, "0x"))
	if err != nil {
		return nil, err
	}

	return crypto.Keccak256(value), nil
}

// StripHexPrefix 去掉一个0x前缀
func StripHexPrefix(s string) string {
	return strings.TrimPrefix(s, "0x")
}

// GetIndexedAddress 生成占位地址，index的十六进制重复填满40位
// 0 -> 0x000...0, 1 -> 0x111...1
func GetIndexedAddress(index int) string {
	return "0x" + strings.Repeat(fmt.Sprintf("%x", index), 40)[:40]
}

func FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Wrap(err, "Stat")
}
