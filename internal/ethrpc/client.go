// Package ethrpc 以 json-rpc 访问链上合约代码与存储
package ethrpc

import (
	"context"
	"encoding/hex"
	"math/big"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var infuraNetworks = map[string]bool{
	"mainnet": true,
	"goerli":  true,
	"sepolia": true,
}

// ParseLocator 将 --rpc 参数转换为url
//
//	ganache            -> http://localhost:8545
//	infura-<network>   -> https://<network>.infura.io/v3/<infuraID>
//	HOST:PORT          -> http(s)://HOST:PORT
//	http(s)/ws(s) url  -> 原样返回
func ParseLocator(locator string, tls bool, infuraID string) (string, error) {
	scheme := "http"
	if tls {
		scheme = "https"
	}
	switch {
	case locator == "ganache":
		return "http://localhost:8545", nil
	case strings.HasPrefix(locator, "infura-"):
		network := strings.TrimPrefix(locator, "infura-")
		if !infuraNetworks[network] {
			return "", errors.Errorf("Invalid network %s, use 'mainnet', 'goerli' or 'sepolia'", network)
		}
		if infuraID == "" {
			return "", errors.New("Infura key not provided, set infura_id in the config file or the INFURA_ID environment variable")
		}
		return "https://" + network + ".infura.io/v3/" + infuraID, nil
	case strings.Contains(locator, "://"):
		return locator, nil
	}
	host, port, err := net.SplitHostPort(locator)
	if err != nil || host == "" {
		return "", errors.New("Invalid RPC argument, use 'ganache', 'infura-[network]' or 'HOST:PORT'")
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return "", errors.New("Invalid RPC argument, use 'ganache', 'infura-[network]' or 'HOST:PORT'")
	}
	return scheme + "://" + locator, nil
}

type Client struct {
	url     string
	client  *ethclient.Client
	timeout time.Duration
}

// Dial 建立连接并通过 eth_chainId 确认节点可用
// timeout 为单次查询的超时时间，0表示不限制
func Dial(ctx context.Context, url string, timeout time.Duration) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", url)
	}
	c := &Client{url: url, client: ethclient.NewClient(rpcClient), timeout: timeout}
	qctx, cancel := c.queryContext(ctx)
	defer cancel()
	chainID, err := c.client.ChainID(qctx)
	if err != nil {
		c.Close()
		return nil, errors.Wrap(err, "Could not connect to RPC server. Make sure that your node is running and that RPC parameters are set correctly")
	}
	log.Infof("connected to %s, chain id %s", url, chainID)
	return c, nil
}

func (c *Client) URL() string {
	return c.url
}

func (c *Client) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Code 返回合约运行时字节码的hex，不带0x
func (c *Client) Code(ctx context.Context, address string) (string, error) {
	ctx, cancel := c.queryContext(ctx)
	defer cancel()
	code, err := c.client.CodeAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return "", errors.Wrapf(err, "eth_getCode %s", address)
	}
	return hex.EncodeToString(code), nil
}

// StorageAt 返回存储槽的值，0x开头的32字节hex
func (c *Client) StorageAt(ctx context.Context, address string, slot *big.Int) (string, error) {
	ctx, cancel := c.queryContext(ctx)
	defer cancel()
	value, err := c.client.StorageAt(ctx, common.HexToAddress(address), common.BigToHash(slot), nil)
	if err != nil {
		return "", errors.Wrapf(err, "eth_getStorageAt %s", address)
	}
	return common.BytesToHash(value).Hex(), nil
}

func (c *Client) Close() error {
	c.client.Close()
	return nil
}
