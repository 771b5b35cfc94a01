package cli

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Notation/gscanner/internal/chaindb"
	"github.com/Notation/gscanner/internal/gscanner"
	"github.com/Notation/gscanner/internal/module"
	"github.com/Notation/gscanner/internal/signatures"
)

const truffleNotFound = "Build directory not found. Make sure that you start the analysis from the project root, " +
	"and that 'truffle compile' has executed successfully."

// executor 执行已选定的模式
type executor struct {
	args      *Args
	session   *Session
	md        *gscanner.Disassembler
	formatter *Formatter
}

func analyzerOptions(a *Args) gscanner.Options {
	options := gscanner.DefaultOptions()
	options.Strategy = a.Strategy
	options.MaxDepth = a.MaxDepth
	options.LoopBound = a.LoopBound
	options.ExecutionTimeout = time.Duration(a.ExecutionTimeout) * time.Second
	options.CreateTimeout = time.Duration(a.CreateTimeout) * time.Second
	options.SolverTimeout = time.Duration(a.SolverTimeout) * time.Millisecond
	options.EnableIprof = a.EnableIprof
	options.DisableDependencyPruning = a.DisableDependencyPruning
	options.OnChainStorage = !a.NoOnchainStorageAccess
	options.DynamicLoading = a.DynLoad
	return options
}

// hashLookup 不需要任何后端
func hashLookup(f *Formatter, signature string) {
	f.Print(signatures.HashForFunctionSignature(signature))
}

func databaseSearch(f *Formatter, db ChainDatabase, expression string) error {
	err := db.Search(expression, func(codeHash, address string, balance *big.Int) {
		f.Print(fmt.Sprintf("%s %s balance: %s", codeHash, address, balance))
	})
	if err != nil {
		return executionError(err, "")
	}
	return nil
}

func addressLookup(f *Formatter, db ChainDatabase, hash string) error {
	address, err := db.ContractHashToAddress(hash)
	if errors.Is(err, chaindb.ErrAddressNotFound) {
		return lookupNotFound(err)
	}
	if err != nil {
		return executionError(err, "")
	}
	f.Print(address)
	return nil
}

func (e *executor) analyzer(address string) (*gscanner.Analyzer, error) {
	ma, err := gscanner.NewAnalyzer(e.md, e.session.Chain(), address, analyzerOptions(e.args))
	if err != nil {
		return nil, usageError(err.Error())
	}
	return ma, nil
}

// truffle 分析当前目录下truffle项目的全部合约
func (e *executor) truffle(ctx context.Context, dir string) error {
	if _, err := e.md.LoadTruffleProject(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			e.formatter.Print(truffleNotFound)
			return nil
		}
		return wrapInput(err)
	}
	return e.fireLasers(ctx, "")
}

func (e *executor) execute(ctx context.Context, mode Mode, address string) error {
	switch mode {
	case ModeStorageRead:
		return e.storage(ctx, address)
	case ModeDisassemble:
		return e.disassemble()
	case ModeGraphExport:
		return e.graph(ctx, address)
	case ModeAnalyze:
		return e.fireLasers(ctx, address)
	case ModeStatespaceExport:
		return e.statespace(ctx, address)
	}
	return errors.Errorf("mode %s does not take an input", mode)
}

func (e *executor) storage(ctx context.Context, address string) error {
	if e.args.Address == "" {
		return usageError("To read storage, provide the address of a deployed contract with the -a option.")
	}
	out, err := e.md.GetStateVariableFromStorage(ctx, address, e.args.StorageParams())
	if err != nil {
		return executionError(err, "")
	}
	e.formatter.Print(out)
	return nil
}

func (e *executor) disassemble() error {
	contracts := e.md.GetContracts()
	if len(contracts) == 0 {
		return executionError(nil, "input files do not contain any valid contracts")
	}
	var printed bool
	if contract := contracts[0]; contract.Code != "" {
		e.formatter.Print("Runtime Disassembly: \n" + contract.GetEASM())
		printed = true
	}
	if contract := contracts[0]; contract.CreationCode != "" {
		e.formatter.Print("Disassembly: \n" + contract.GetCreationEASM())
		printed = true
	}
	if !printed {
		return executionError(nil, "No bytecode to disassemble")
	}
	return nil
}

func (e *executor) graph(ctx context.Context, address string) error {
	contracts := e.md.GetContracts()
	if len(contracts) == 0 {
		return executionError(nil, "input files do not contain any valid contracts")
	}
	ma, err := e.analyzer(address)
	if err != nil {
		return err
	}
	html, err := ma.GraphHTML(ctx, contracts[0], e.args.TransactionCount, e.args.EnablePhysics, e.args.Phrack)
	if err != nil {
		return err
	}
	if err := os.WriteFile(e.args.Graph, []byte(html), 0o644); err != nil {
		return executionError(err, "Error saving graph: ")
	}
	log.Infof("graph written to %s", e.args.Graph)
	return nil
}

func (e *executor) fireLasers(ctx context.Context, address string) error {
	if len(e.md.GetContracts()) == 0 {
		return executionError(nil, "input files do not contain any valid contracts")
	}
	ma, err := e.analyzer(address)
	if err != nil {
		return err
	}
	r, err := ma.FireLasers(ctx, e.args.ModuleNames(), e.args.TransactionCount)
	if err != nil {
		var notFound *module.NotFoundError
		if errors.As(err, &notFound) {
			return executionError(err, "Error loading analyis modules: ")
		}
		return err
	}
	return e.formatter.Report(r)
}

func (e *executor) statespace(ctx context.Context, address string) error {
	contracts := e.md.GetContracts()
	if len(contracts) == 0 {
		return executionError(nil, "input files do not contain any valid contracts")
	}
	ma, err := e.analyzer(address)
	if err != nil {
		return err
	}
	out, err := ma.DumpStatespace(ctx, contracts[0], e.args.TransactionCount)
	if err != nil {
		return err
	}
	if err := os.WriteFile(e.args.StatespaceJSON, []byte(out), 0o644); err != nil {
		return executionError(err, "Error saving json: ")
	}
	log.Infof("statespace written to %s", e.args.StatespaceJSON)
	return nil
}
