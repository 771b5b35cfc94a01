// Package signatures 函数选择器与函数签名的对应关系
// 本地存储于leveldb，开启在线查询时未知的选择器从4byte.directory获取并写回本地
package signatures

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

const (
	cacheSize     = 1024
	onlineTimeout = 5 * time.Second
)

// HashForFunctionSignature transfer(address,uint256) -> 0xa9059cbb
func HashForFunctionSignature(signature string) string {
	return "0x" + hex.EncodeToString(crypto.Keccak256([]byte(signature))[:4])
}

// Fetcher 远程签名查询
type Fetcher interface {
	Lookup(ctx context.Context, selector string) ([]string, error)
}

// Database 本地签名库
type Database struct {
	db      *leveldb.DB
	cache   *lru.Cache
	fetcher Fetcher
}

// Open 打开或创建签名库，fetcher可以为nil
func Open(path string, fetcher Fetcher) (*Database, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "open signature database %s", path)
	}
	return newDatabase(db, fetcher)
}

// OpenMemory 内存签名库，Close后丢弃
func OpenMemory(fetcher Fetcher) (*Database, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "open memory signature database")
	}
	return newDatabase(db, fetcher)
}

func newDatabase(db *leveldb.DB, fetcher Fetcher) (*Database, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "lru.New")
	}
	return &Database{db: db, cache: cache, fetcher: fetcher}, nil
}

func normalize(selector string) string {
	return "0x" + strings.ToLower(strings.TrimPrefix(selector, "0x"))
}

// Add 与已有签名合并后写入
func (d *Database) Add(selector string, signatures ...string) error {
	selector = normalize(selector)
	known, err := d.local(selector)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(known))
	for _, s := range known {
		seen[s] = true
	}
	for _, s := range signatures {
		if !seen[s] {
			known = append(known, s)
			seen[s] = true
		}
	}
	data, err := json.Marshal(known)
	if err != nil {
		return errors.Wrap(err, "Marshal")
	}
	if err := d.db.Put([]byte(selector), data, nil); err != nil {
		return errors.Wrap(err, "Put")
	}
	d.cache.Add(selector, known)
	return nil
}

// Import 导入solc输出的methodIdentifiers
func (d *Database) Import(methodIdentifiers map[string]string) error {
	for signature, selector := range methodIdentifiers {
		if err := d.Add(selector, signature); err != nil {
			return err
		}
	}
	return nil
}

func (d *Database) local(selector string) ([]string, error) {
	if cached, ok := d.cache.Get(selector); ok {
		return cached.([]string), nil
	}
	data, err := d.db.Get([]byte(selector), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "Get")
	}
	var result []string
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, errors.Wrap(err, "Unmarshal")
	}
	d.cache.Add(selector, result)
	return result, nil
}

// Lookup 在线查询失败只记录日志，按未找到处理
func (d *Database) Lookup(selector string) ([]string, error) {
	selector = normalize(selector)
	result, err := d.local(selector)
	if err != nil || len(result) > 0 || d.fetcher == nil {
		return result, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), onlineTimeout)
	defer cancel()
	remote, err := d.fetcher.Lookup(ctx, selector)
	if err != nil {
		log.Warnf("online signature lookup of %s failed: %v", selector, err)
		return nil, nil
	}
	if len(remote) == 0 {
		return nil, nil
	}
	if err := d.Add(selector, remote...); err != nil {
		return nil, err
	}
	return d.local(selector)
}

func (d *Database) Close() error {
	return d.db.Close()
}
