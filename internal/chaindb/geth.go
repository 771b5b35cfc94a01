package chaindb

import (
	"bytes"
	"encoding/hex"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var emptyCodeHash = crypto.Keccak256(nil)

type gethSource struct {
	db    ethdb.Database
	state state.Database
	root  common.Hash
}

func openGeth(path string) (*gethSource, error) {
	db, err := rawdb.NewLevelDBDatabase(path, 128, 1024, "", true)
	if err != nil {
		return nil, errors.Wrapf(err, "open chaindata %s", path)
	}
	head := rawdb.ReadHeadBlockHash(db)
	number := rawdb.ReadHeaderNumber(db, head)
	if head == (common.Hash{}) || number == nil {
		db.Close()
		return nil, errors.Errorf("no head block found in %s", path)
	}
	header := rawdb.ReadHeader(db, head, *number)
	if header == nil {
		db.Close()
		return nil, errors.Errorf("head header %s missing in %s", head.Hex(), path)
	}
	log.Infof("chaindata %s: head block %d, state root %s", path, *number, header.Root.Hex())
	return &gethSource{
		db:    db,
		state: state.NewDatabaseWithConfig(db, &trie.Config{Preimages: true}),
		root:  header.Root,
	}, nil
}

func (g *gethSource) Contracts(fn func(*Account) error) error {
	tr, err := g.state.OpenTrie(g.root)
	if err != nil {
		return errors.Wrap(err, "OpenTrie")
	}
	it := trie.NewIterator(tr.NodeIterator(nil))
	for it.Next() {
		var data types.StateAccount
		if err := rlp.DecodeBytes(it.Value, &data); err != nil {
			return errors.Wrap(err, "decode account")
		}
		if len(data.CodeHash) == 0 || bytes.Equal(data.CodeHash, emptyCodeHash) {
			continue
		}
		codeHash := common.BytesToHash(data.CodeHash)
		account := &Account{
			AddressHash: common.BytesToHash(it.Key),
			Balance:     data.Balance,
			CodeHash:    codeHash,
			Code:        rawdb.ReadCode(g.db, codeHash),
		}
		if preimage := tr.GetKey(it.Key); len(preimage) == common.AddressLength {
			account.Address = "0x" + hex.EncodeToString(preimage)
		}
		if err := fn(account); err != nil {
			return err
		}
	}
	return it.Err
}

func (g *gethSource) Preimage(hash common.Hash) []byte {
	return rawdb.ReadPreimage(g.db, hash)
}

func (g *gethSource) Close() error {
	return g.db.Close()
}
