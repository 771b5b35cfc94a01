package cli

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Notation/gscanner/internal/chaindb"
	"github.com/Notation/gscanner/internal/config"
	"github.com/Notation/gscanner/internal/ethrpc"
	"github.com/Notation/gscanner/internal/gscanner"
)

// ChainClient rpc连接
type ChainClient interface {
	gscanner.ChainReader
	Close() error
}

// ChainDatabase 本地链数据库
type ChainDatabase interface {
	Search(expression string, fn chaindb.SearchFunc) error
	ContractHashToAddress(hash string) (string, error)
	Close() error
}

type SessionKind int

const (
	SessionNone SessionKind = iota
	SessionRPC
	SessionDatabase
)

// Session 一次调用中至多一个后端连接，rpc与数据库互斥
type Session struct {
	kind SessionKind
	rpc  ChainClient
	db   ChainDatabase
}

func newRPCSession(client ChainClient) *Session {
	return &Session{kind: SessionRPC, rpc: client}
}

func newDatabaseSession(db ChainDatabase) *Session {
	return &Session{kind: SessionDatabase, db: db}
}

func (s *Session) Kind() SessionKind {
	if s == nil {
		return SessionNone
	}
	return s.kind
}

// Chain 没有rpc连接时返回nil
func (s *Session) Chain() gscanner.ChainReader {
	if s.Kind() != SessionRPC {
		return nil
	}
	return s.rpc
}

func (s *Session) Database() ChainDatabase {
	if s.Kind() != SessionDatabase {
		return nil
	}
	return s.db
}

func (s *Session) Close() error {
	switch s.Kind() {
	case SessionRPC:
		return s.rpc.Close()
	case SessionDatabase:
		return s.db.Close()
	}
	return nil
}

// establish 由模式决定建立哪一种连接
func establish(ctx context.Context, mode Mode, a *Args, cfg *config.Config, c *Collaborators) (*Session, error) {
	switch {
	case mode.usesDatabase():
		path := a.LevelDBDir
		if path == "" {
			path = cfg.LevelDBDir
		}
		log.Infof("opening chain database %s", path)
		db, err := c.OpenDatabase(path)
		if err != nil {
			return nil, backendError(err)
		}
		return newDatabaseSession(db), nil
	case !mode.needsInput():
		return nil, nil
	case a.Address != "":
		return dialRPC(ctx, a.RPC, a.RPCTLS, a, cfg, c)
	case a.DynLoad && !a.NoOnchainStorageAccess:
		return dialRPC(ctx, cfg.DynamicLoadingLocator(), false, a, cfg, c)
	}
	return nil, nil
}

func dialRPC(ctx context.Context, locator string, tls bool, a *Args, cfg *config.Config, c *Collaborators) (*Session, error) {
	url, err := ethrpc.ParseLocator(locator, tls, cfg.InfuraID)
	if err != nil {
		return nil, backendError(err)
	}
	timeout := time.Duration(a.SolverTimeout) * time.Millisecond
	client, err := c.DialRPC(ctx, url, timeout)
	if err != nil {
		return nil, backendError(errors.Wrap(err, "IPC / RPC error"))
	}
	return newRPCSession(client), nil
}
