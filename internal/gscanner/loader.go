package gscanner

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/Notation/gscanner/internal/util"
)

// chainLoader 分析过程中按需读取链上数据，每次查询单独计时
type chainLoader struct {
	ctx     context.Context
	chain   ChainReader
	timeout time.Duration
	code    bool // 是否允许加载外部合约代码
}

func (l *chainLoader) queryContext() (context.Context, context.CancelFunc) {
	if l.timeout <= 0 {
		return context.WithCancel(l.ctx)
	}
	return context.WithTimeout(l.ctx, l.timeout)
}

func (l *chainLoader) LoadStorage(address string, slot *uint256.Int) (*uint256.Int, error) {
	ctx, cancel := l.queryContext()
	defer cancel()
	value, err := l.chain.StorageAt(ctx, address, slot.ToBig())
	if err != nil {
		return nil, err
	}
	data, err := hex.DecodeString(util.StripHexPrefix(value))
	if err != nil {
		return nil, errors.Wrapf(err, "decode storage value %s", value)
	}
	if len(data) > 32 {
		return nil, errors.Errorf("storage value too long: %s", value)
	}
	return new(uint256.Int).SetBytes(data), nil
}

func (l *chainLoader) LoadCode(address string) (string, error) {
	if !l.code {
		return "", errors.New("dynamic loading is disabled")
	}
	ctx, cancel := l.queryContext()
	defer cancel()
	code, err := l.chain.Code(ctx, address)
	if err != nil {
		return "", err
	}
	return util.StripHexPrefix(code), nil
}
