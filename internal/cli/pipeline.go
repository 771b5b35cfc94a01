package cli

import (
	"context"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Notation/gscanner/internal/chaindb"
	"github.com/Notation/gscanner/internal/config"
	"github.com/Notation/gscanner/internal/ethrpc"
	"github.com/Notation/gscanner/internal/gscanner"
	"github.com/Notation/gscanner/internal/signatures"
	"github.com/Notation/gscanner/internal/solidity"
)

// SignatureStore 本地函数签名库
type SignatureStore interface {
	gscanner.SignatureDB
	Close() error
}

// Collaborators 外部依赖，测试中替换为fake
type Collaborators struct {
	Stdout       io.Writer
	Stderr       io.Writer
	Version      string
	Capabilities Capabilities
	WorkDir      string // truffle项目目录

	Usage func(w io.Writer)
	Epic  func(ctx context.Context) error

	LoadConfig     func() (*config.Config, error)
	DialRPC        func(ctx context.Context, url string, timeout time.Duration) (ChainClient, error)
	OpenDatabase   func(path string) (ChainDatabase, error)
	OpenSignatures func(cfg *config.Config, online bool) (SignatureStore, error)
}

// DefaultCollaborators 访问真实的rpc、chaindata与签名库
func DefaultCollaborators(version string, caps Capabilities) Collaborators {
	return Collaborators{
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
		Version:      version,
		Capabilities: caps,
		WorkDir:      ".",
		LoadConfig:   config.Load,
		DialRPC: func(ctx context.Context, url string, timeout time.Duration) (ChainClient, error) {
			client, err := ethrpc.Dial(ctx, url, timeout)
			if err != nil {
				return nil, err
			}
			return client, nil
		},
		OpenDatabase: func(path string) (ChainDatabase, error) {
			db, err := chaindb.Open(path)
			if err != nil {
				return nil, err
			}
			return db, nil
		},
		OpenSignatures: func(cfg *config.Config, online bool) (SignatureStore, error) {
			var fetcher signatures.Fetcher
			if online {
				fetcher = signatures.NewFourByte()
			}
			db, err := signatures.Open(cfg.SignatureDBPath(), fetcher)
			if err != nil {
				return nil, err
			}
			return db, nil
		},
	}
}

// Run 执行一次调用，所有错误只在这里输出一次
// 返回进程退出码，格式化输出错误后仍返回0
func Run(ctx context.Context, a *Args, c Collaborators) int {
	f := NewFormatter(a.Outform, c.Stdout, c.Stderr)
	if err := run(ctx, a, &c, f); err != nil {
		if KindOf(err) == KindLookupNotFound {
			f.Print(err.Error())
			return 0
		}
		f.Fail(NewEnvelope(err))
	}
	return 0
}

func run(ctx context.Context, a *Args, c *Collaborators, f *Formatter) error {
	mode := ResolveMode(a)
	switch mode {
	case ModeEpicEscape:
		if c.Epic == nil {
			return usageError("--epic is not supported")
		}
		return c.Epic(ctx)
	case ModeVersion:
		f.Version(c.Version)
		return nil
	case ModeHelp:
		if c.Usage != nil {
			c.Usage(c.Stdout)
		}
		return nil
	}

	if err := Validate(a, c.Capabilities); err != nil {
		return err
	}
	log.Debugf("mode: %s", mode)

	if mode == ModeHashLookup {
		hashLookup(f, a.Hash)
		return nil
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return configurationError(err.Error())
	}

	session, err := establish(ctx, mode, a, cfg, c)
	if err != nil {
		return err
	}
	defer session.Close()

	switch mode {
	case ModeDatabaseSearch:
		return databaseSearch(f, session.Database(), a.Search)
	case ModeAddressLookup:
		return addressLookup(f, session.Database(), a.ContractHashToAddress)
	}

	// 签名库被其他进程占用时不解析函数名，继续执行
	var sigDB gscanner.SignatureDB
	if sigs, err := c.OpenSignatures(cfg, a.QuerySignature); err != nil {
		log.Warnf("signature database unavailable, function names will not be resolved: %v", err)
	} else {
		defer sigs.Close()
		sigDB = sigs
	}

	settings := solidity.CompilerSettings{
		Version:   a.Solv,
		Args:      a.SolcArgs,
		BinaryDir: cfg.SolcBinaryDir(),
	}
	e := &executor{
		args:      a,
		session:   session,
		md:        gscanner.NewDisassembler(session.Chain(), sigDB, settings),
		formatter: f,
	}

	if mode == ModeTruffleProject {
		return e.truffle(ctx, c.WorkDir)
	}

	src, err := ResolveInput(a)
	if err != nil {
		return err
	}
	address, err := src.load(ctx, e.md, a.BinRuntime)
	if err != nil {
		return err
	}
	return e.execute(ctx, mode, address)
}
