package gscanner

import (
	"context"
	"math/big"
	"os"
	"regexp"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Notation/gscanner/internal/disassembler"
	"github.com/Notation/gscanner/internal/solidity"
	"github.com/Notation/gscanner/internal/util"
)

// MainContractName 直接给出字节码时的合约名
const MainContractName = "MAIN"

var addressRegexp = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ChainReader 读取链上数据
type ChainReader interface {
	Code(ctx context.Context, address string) (string, error)
	StorageAt(ctx context.Context, address string, slot *big.Int) (string, error)
}

// SignatureDB 函数签名库
type SignatureDB interface {
	disassembler.SignatureResolver
	Import(methodIdentifiers map[string]string) error
}

type compileFunc func(files []string, settings solidity.CompilerSettings) (*solidity.CompilerOutput, error)

// Disassembler 加载待分析的合约
type Disassembler struct {
	chain     ChainReader
	sigs      SignatureDB
	settings  solidity.CompilerSettings
	compile   compileFunc
	contracts []*solidity.EVMContract
}

// NewDisassembler chain与sigs可以为nil
func NewDisassembler(chain ChainReader, sigs SignatureDB, settings solidity.CompilerSettings) *Disassembler {
	return &Disassembler{
		chain:    chain,
		sigs:     sigs,
		settings: settings,
		compile:  solidity.GetSolcJSON,
	}
}

func (md *Disassembler) resolver() disassembler.SignatureResolver {
	if md.sigs == nil {
		return nil
	}
	return md.sigs
}

func (md *Disassembler) GetContracts() []*solidity.EVMContract {
	return md.contracts
}

// LoadFromBytecode 加载字节码，runtime为true时code为运行时字节码，否则为创建字节码
func (md *Disassembler) LoadFromBytecode(code string, runtime bool) (string, error) {
	var (
		contract *solidity.EVMContract
		err      error
	)
	if runtime {
		contract, err = solidity.NewEVMContract(code, "", MainContractName, md.resolver())
	} else {
		contract, err = solidity.NewEVMContract("", code, MainContractName, md.resolver())
	}
	if err != nil {
		return "", err
	}
	md.contracts = append(md.contracts, contract)
	return util.GetIndexedAddress(0), nil
}

// LoadFromAddress 从链上读取合约代码
func (md *Disassembler) LoadFromAddress(ctx context.Context, address string) (string, error) {
	if !addressRegexp.MatchString(address) {
		return "", errors.New("Invalid contract address. Expected format is '0x...'.")
	}
	if md.chain == nil {
		return "", errors.New("Please set up an RPC connection to load contracts from an address")
	}
	code, err := md.chain.Code(ctx, address)
	if err != nil {
		return "", errors.Wrap(err, "IPC / RPC error")
	}
	code = util.StripHexPrefix(code)
	if code == "" || code == "0" {
		return "", errors.New("Received an empty response from eth_getCode. Check the contract address and verify that you are on the correct chain.")
	}
	contract, err := solidity.NewEVMContract(code, "", address, md.resolver())
	if err != nil {
		return "", err
	}
	md.contracts = append(md.contracts, contract)
	return address, nil
}

// splitContractName 拆分 file.sol:ContractName
func splitContractName(file string) (string, string) {
	index := strings.LastIndex(file, ":")
	if index <= 1 || !strings.HasSuffix(file[:index], ".sol") {
		return file, ""
	}
	return file[:index], file[index+1:]
}

// LoadFromSolidity 编译源码文件，file:Name 只加载指定合约
func (md *Disassembler) LoadFromSolidity(files []string) (string, []*solidity.EVMContract, error) {
	var (
		paths = make([]string, 0, len(files))
		names = make(map[string]string, len(files))
	)
	for _, file := range files {
		path, name := splitContractName(file)
		path, err := homedir.Expand(path)
		if err != nil {
			return "", nil, errors.Wrapf(err, "expand %s", path)
		}
		if _, err := os.Stat(path); err != nil {
			return "", nil, errors.Errorf("Input file not found: %s", path)
		}
		paths = append(paths, path)
		names[path] = name
	}

	output, err := md.compile(paths, md.settings)
	if err != nil {
		return "", nil, errors.Wrap(err, "Solc experienced a fatal error")
	}
	if md.sigs != nil {
		if err := md.sigs.Import(output.MethodIdentifiers()); err != nil {
			log.Warnf("import function signatures: %v", err)
		}
	}
	compiled, err := solidity.ContractsFromOutput(output, paths, md.resolver())
	if err != nil {
		return "", nil, err
	}

	var contracts []*solidity.EVMContract
	for _, path := range paths {
		var found bool
		for _, contract := range compiled {
			if contract.InputFile != path {
				continue
			}
			if names[path] != "" && contract.Name != names[path] {
				continue
			}
			found = true
			contracts = append(contracts, contract)
		}
		if !found {
			return "", nil, errors.Errorf("The file %s does not contain a compilable contract.", path)
		}
	}
	md.contracts = append(md.contracts, contracts...)
	return util.GetIndexedAddress(0), contracts, nil
}

// LoadTruffleProject 加载truffle编译产物
func (md *Disassembler) LoadTruffleProject(projectDir string) ([]*solidity.EVMContract, error) {
	contracts, err := solidity.LoadTruffleContracts(projectDir, md.resolver())
	if err != nil {
		return nil, err
	}
	md.contracts = append(md.contracts, contracts...)
	return contracts, nil
}
