// Package cli 将命令行参数解析为唯一的运行模式并执行
package cli

import (
	"strings"

	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"

	"github.com/Notation/gscanner/internal/strategy"
)

// Args 命令行参数，解析后只读
type Args struct {
	// commands
	Graph          string
	Version        bool
	FireLasers     bool
	Truffle        bool
	Disassemble    bool
	StatespaceJSON string

	// input
	Code                   string
	Codefile               string
	Address                string
	DynLoad                bool
	NoOnchainStorageAccess bool
	BinRuntime             bool
	SolidityFiles          []string

	Outform Format

	// local contracts database
	Search     string
	LevelDBDir string

	// utilities
	Hash                  string
	Storage               string
	Solv                  string
	ContractHashToAddress string

	// options
	Modules                  string
	MaxDepth                 int
	Strategy                 string
	LoopBound                int
	TransactionCount         int
	SolverTimeout            int // 毫秒
	ExecutionTimeout         int // 秒
	CreateTimeout            int // 秒
	SolcArgs                 string
	Phrack                   bool
	EnablePhysics            bool
	Verbosity                int
	QuerySignature           bool
	EnableIprof              bool
	DisableDependencyPruning bool

	// rpc
	RPC    string
	RPCTLS bool

	Epic bool
}

// choiceValue 只接受固定取值的字符串参数
type choiceValue struct {
	value   *string
	choices []string
}

func (c *choiceValue) String() string {
	return *c.value
}

func (c *choiceValue) Set(s string) error {
	for _, choice := range c.choices {
		if s == choice {
			*c.value = s
			return nil
		}
	}
	return errors.Errorf("invalid choice %q (choose from %s)", s, strings.Join(c.choices, ", "))
}

func (c *choiceValue) Type() string {
	return "string"
}

// BindFlags 注册全部参数，默认值写入a
func (a *Args) BindFlags(fs *flag.FlagSet) {
	fs.StringVarP(&a.Graph, "graph", "g", "", "generate a control flow graph")
	fs.BoolVarP(&a.Version, "version", "V", false, "print the gscanner version number and exit")
	fs.BoolVarP(&a.FireLasers, "fire-lasers", "x", false, "detect vulnerabilities, use with -c, -a or solidity file(s)")
	fs.BoolVar(&a.Truffle, "truffle", false, "analyze a truffle project (run from project dir)")
	fs.BoolVarP(&a.Disassemble, "disassemble", "d", false, "print disassembly")
	fs.StringVarP(&a.StatespaceJSON, "statespace-json", "j", "", "dumps the statespace json")

	fs.StringVarP(&a.Code, "code", "c", "", `hex-encoded bytecode string ("6060604052...")`)
	fs.StringVarP(&a.Codefile, "codefile", "f", "", "file containing hex-encoded bytecode string")
	fs.StringVarP(&a.Address, "address", "a", "", "pull contract from the blockchain")
	fs.BoolVarP(&a.DynLoad, "dynld", "l", false, "auto-load dependencies from the blockchain")
	fs.BoolVar(&a.NoOnchainStorageAccess, "no-onchain-storage-access", false, "turns off getting the data from onchain contracts")
	fs.BoolVar(&a.BinRuntime, "bin-runtime", false,
		"Only when -c or -f is used. Consider the input bytecode as binary runtime code, default being the contract creation bytecode.")

	a.Outform = FormatText
	fs.VarP(&a.Outform, "outform", "o", "report output format <text/markdown/json/jsonv2>")

	fs.StringVarP(&a.Search, "search", "s", "", "search the contract database")
	fs.StringVar(&a.LevelDBDir, "leveldb-dir", "", "specify leveldb directory for search or direct access operations")

	fs.StringVar(&a.Hash, "hash", "", "calculate function signature hash")
	fs.StringVar(&a.Storage, "storage", "", "read state variables from storage index, use with -a "+
		"(INDEX,NUM_SLOTS,[array] / mapping,INDEX,[KEY1, KEY2...])")
	fs.StringVar(&a.Solv, "solv", "", "specify solidity compiler version. If not present, will try to install it (Experimental)")
	fs.StringVar(&a.ContractHashToAddress, "contract-hash-to-address", "", "returns corresponding address for a contract address hash")

	fs.StringVarP(&a.Modules, "modules", "m", "", "Comma-separated list of security analysis modules")
	fs.IntVar(&a.MaxDepth, "max-depth", 50, "Maximum recursion depth for symbolic execution")
	a.Strategy = "bfs"
	fs.Var(&choiceValue{value: &a.Strategy, choices: strategy.Names}, "strategy",
		"Symbolic execution strategy <"+strings.Join(strategy.Names, "/")+">")
	fs.IntVarP(&a.LoopBound, "loop-bound", "b", 4, "Bound loops at n iterations")
	fs.IntVarP(&a.TransactionCount, "transaction-count", "t", 2, "Maximum number of transactions issued by laser")
	fs.IntVar(&a.SolverTimeout, "solver-timeout", 10000,
		"The maximum amount of time(in milli seconds) the solver spends for queries from analysis modules")
	fs.IntVar(&a.ExecutionTimeout, "execution-timeout", 86400, "The amount of seconds to spend on symbolic execution")
	fs.IntVar(&a.CreateTimeout, "create-timeout", 10, "The amount of seconds to spend on the initial contract creation")
	fs.StringVar(&a.SolcArgs, "solc-args", "", "Extra arguments for solc")
	fs.BoolVar(&a.Phrack, "phrack", false, "Phrack-style call graph")
	fs.BoolVar(&a.EnablePhysics, "enable-physics", false, "enable graph physics simulation")
	fs.IntVarP(&a.Verbosity, "v", "v", 2, "log level (0-5)")
	fs.BoolVarP(&a.QuerySignature, "query-signature", "q", false, "Lookup function signatures through www.4byte.directory")
	fs.BoolVar(&a.EnableIprof, "enable-iprof", false, "enable the instruction profiler")
	fs.BoolVar(&a.DisableDependencyPruning, "disable-dependency-pruning", false, "Deactivate dependency-based pruning")

	fs.StringVar(&a.RPC, "rpc", "infura-mainnet", "custom RPC settings (HOST:PORT / ganache / infura-[network_name])")
	fs.BoolVar(&a.RPCTLS, "rpctls", false, "RPC connection over TLS")

	fs.BoolVar(&a.Epic, "epic", false, "")
	_ = fs.MarkHidden("epic")
}

// ModuleNames 解析 --modules，为空时表示全部模块
func (a *Args) ModuleNames() []string {
	if strings.TrimSpace(a.Modules) == "" {
		return nil
	}
	var names []string
	for _, name := range strings.Split(a.Modules, ",") {
		names = append(names, strings.TrimSpace(name))
	}
	return names
}

// StorageParams 解析 --storage
func (a *Args) StorageParams() []string {
	var params []string
	for _, p := range strings.Split(strings.TrimSpace(a.Storage), ",") {
		params = append(params, strings.TrimSpace(p))
	}
	return params
}
