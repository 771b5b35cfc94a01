package gscanner

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Notation/gscanner/internal/module"
	"github.com/Notation/gscanner/internal/report"
	"github.com/Notation/gscanner/internal/solidity"
	"github.com/Notation/gscanner/internal/strategy"
	"github.com/Notation/gscanner/internal/util"
)

// Options 分析参数
type Options struct {
	Strategy         string
	MaxDepth         int // 每条路径上符号分支的最大数量
	LoopBound        int // 每条路径上同一JUMPDEST的最大跳入次数
	ExecutionTimeout time.Duration
	CreateTimeout    time.Duration
	// SolverTimeout 单次链上查询的超时
	SolverTimeout            time.Duration
	EnableIprof              bool
	DisableDependencyPruning bool
	OnChainStorage           bool // 未写入的存储槽从链上读取
	DynamicLoading           bool // 加载被调用合约的代码
}

func DefaultOptions() Options {
	return Options{
		Strategy:         "bfs",
		MaxDepth:         50,
		LoopBound:        4,
		ExecutionTimeout: 86400 * time.Second,
		CreateTimeout:    10 * time.Second,
		SolverTimeout:    10 * time.Second,
		OnChainStorage:   true,
	}
}

type Analyzer struct {
	disassembler *Disassembler
	chain        ChainReader
	address      string
	options      Options
}

// NewAnalyzer chain为nil时不访问链上数据，address为被分析合约的地址
func NewAnalyzer(disassembler *Disassembler, chain ChainReader, address string, options Options) (*Analyzer, error) {
	if _, err := strategy.New(options.Strategy, 0); err != nil {
		return nil, err
	}
	if address == "" {
		address = util.GetIndexedAddress(0)
	}
	return &Analyzer{
		disassembler: disassembler,
		chain:        chain,
		address:      address,
		options:      options,
	}, nil
}

func (ma *Analyzer) newSymExec(ctx context.Context, contract *solidity.EVMContract, mm *module.ModuleManager) *symExec {
	sym := &symExec{
		options:  ma.options,
		contract: contract,
		address:  ma.address,
		resolver: ma.disassembler.resolver(),
		modules:  mm,
		space:    newStatespace(),
	}
	if ma.chain != nil && (ma.options.OnChainStorage || ma.options.DynamicLoading) {
		sym.loader = &chainLoader{
			ctx:     ctx,
			chain:   ma.chain,
			timeout: ma.options.SolverTimeout,
			code:    ma.options.DynamicLoading,
		}
		// 只有链上已存在的合约才读取链上存储
		sym.onChain = ma.options.OnChainStorage && contract.CreationCode == ""
	}
	if ma.options.EnableIprof {
		sym.iprof = newInstructionProfiler()
	}
	return sym
}

// explore 执行合约，ctx受ExecutionTimeout限制
func (ma *Analyzer) explore(ctx context.Context, contract *solidity.EVMContract, mm *module.ModuleManager, txCount int) (*symExec, error) {
	if ma.options.ExecutionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ma.options.ExecutionTimeout)
		defer cancel()
	}
	sym := ma.newSymExec(ctx, contract, mm)
	err := sym.run(ctx, txCount)
	if sym.iprof != nil {
		log.Info(sym.iprof.String())
	}
	return sym, err
}

// FireLasers 用指定模块分析全部合约，modules为空时使用全部模块
func (ma *Analyzer) FireLasers(ctx context.Context, modules []string, txCount int) (*report.Report, error) {
	mm, err := module.Load(modules)
	if err != nil {
		return nil, err
	}
	var (
		contracts  = ma.disassembler.GetContracts()
		exceptions []string
		all        []*report.Issue
	)
	for _, contract := range contracts {
		log.Infof("analyzing contract %s", contract.Name)
		startTime := time.Now()
		mm.Reset()
		if _, err := ma.explore(ctx, contract, mm, txCount); err != nil {
			log.Errorf("Exception occurred, aborting analysis. Please report this issue to the gscanner GitHub page.\n%+v", err)
			exceptions = append(exceptions, fmt.Sprintf("%+v", err))
		}
		issues := mm.RetrieveIssues()
		for _, is := range issues {
			is.AddCodeInfo(contract)
		}
		all = append(all, issues...)
		log.Infof("contract %s: %d issues found, analyze time used: %.2fs",
			contract.Name, len(issues), time.Since(startTime).Seconds())
	}

	r := report.NewReport(contracts)
	r.Exceptions = exceptions
	r.Append(all...)
	return r, nil
}
