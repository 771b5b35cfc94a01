package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Notation/gscanner/internal/chaindb"
	"github.com/Notation/gscanner/internal/config"
	"github.com/Notation/gscanner/internal/signatures"
)

const testAddress = "0xaffeaffeaffeaffeaffeaffeaffeaffeaffeaffe"

type fakeRPC struct {
	code   map[string]string
	closed bool
}

func (r *fakeRPC) Code(ctx context.Context, address string) (string, error) {
	return r.code[address], nil
}

func (r *fakeRPC) StorageAt(ctx context.Context, address string, slot *big.Int) (string, error) {
	return fmt.Sprintf("0x%064x", new(big.Int).Add(slot, big.NewInt(100))), nil
}

func (r *fakeRPC) Close() error {
	r.closed = true
	return nil
}

type fakeDB struct {
	addresses map[string]string
	closed    bool
}

func (d *fakeDB) Search(expression string, fn chaindb.SearchFunc) error {
	if expression == "bad" {
		return errors.New("Invalid search expression")
	}
	fn("0x01", testAddress, big.NewInt(7))
	return nil
}

func (d *fakeDB) ContractHashToAddress(hash string) (string, error) {
	if address, ok := d.addresses[hash]; ok {
		return address, nil
	}
	return "", chaindb.ErrAddressNotFound
}

func (d *fakeDB) Close() error {
	d.closed = true
	return nil
}

// harness 记录对外部依赖的调用
type harness struct {
	stdout, stderr bytes.Buffer
	collaborators  Collaborators

	rpc     *fakeRPC
	db      *fakeDB
	dialErr error
	urls    []string
	dbPaths []string
	configs int
	epic    int
}

func newHarness(t *testing.T) *harness {
	color.NoColor = true
	h := &harness{
		rpc: &fakeRPC{code: map[string]string{testAddress: "33ff"}},
		db:  &fakeDB{addresses: map[string]string{}},
	}
	configDir := t.TempDir()
	h.collaborators = Collaborators{
		Stdout:  &h.stdout,
		Stderr:  &h.stderr,
		Version: "v0.1.0",
		WorkDir: t.TempDir(),
		Usage: func(w io.Writer) {
			fmt.Fprintln(w, "Usage: gscanner [flags] [solidity files]")
		},
		Epic: func(ctx context.Context) error {
			h.epic++
			return nil
		},
		LoadConfig: func() (*config.Config, error) {
			h.configs++
			return config.LoadFrom(configDir)
		},
		DialRPC: func(ctx context.Context, url string, timeout time.Duration) (ChainClient, error) {
			h.urls = append(h.urls, url)
			if h.dialErr != nil {
				return nil, h.dialErr
			}
			return h.rpc, nil
		},
		OpenDatabase: func(path string) (ChainDatabase, error) {
			h.dbPaths = append(h.dbPaths, path)
			return h.db, nil
		},
		OpenSignatures: func(cfg *config.Config, online bool) (SignatureStore, error) {
			return signatures.OpenMemory(nil)
		},
	}
	return h
}

func (h *harness) run(t *testing.T, argv ...string) {
	t.Helper()
	h.stdout.Reset()
	h.stderr.Reset()
	code := Run(context.Background(), parseArgs(t, argv...), h.collaborators)
	assert.Equal(t, 0, code)
}

func (h *harness) backendCalls() int {
	return len(h.urls) + len(h.dbPaths)
}

func TestRun_Help(t *testing.T) {
	h := newHarness(t)
	h.run(t, "-c", "6060", "-a", testAddress, "--leveldb-dir", "/tmp/chaindata")
	assert.Contains(t, h.stdout.String(), "Usage: gscanner")
	assert.Zero(t, h.backendCalls())
	assert.Zero(t, h.configs)
}

func TestRun_Version(t *testing.T) {
	h := newHarness(t)
	h.run(t, "-V", "-d", "-v", "9")
	assert.Equal(t, "gscanner version v0.1.0\n", h.stdout.String())

	h.run(t, "-V", "-o", "json")
	assert.JSONEq(t, `{"version_str": "v0.1.0"}`, h.stdout.String())
	assert.Zero(t, h.backendCalls())
}

func TestRun_Epic(t *testing.T) {
	h := newHarness(t)
	h.run(t, "--epic", "-d", "-c", "00")
	assert.Equal(t, 1, h.epic)
	assert.Empty(t, h.stdout.String())
}

func TestRun_HashLookup(t *testing.T) {
	h := newHarness(t)
	h.run(t, "--hash", "transfer(address,uint256)", "-a", testAddress)
	first := h.stdout.String()
	h.run(t, "--hash", "transfer(address,uint256)", "-a", testAddress)
	assert.Equal(t, "0xa9059cbb\n", first)
	assert.Equal(t, first, h.stdout.String())
	assert.Zero(t, h.backendCalls())
	assert.Zero(t, h.configs)
}

func TestRun_ConfigurationErrorFormats(t *testing.T) {
	for _, format := range formats {
		h := newHarness(t)
		h.run(t, "--enable-iprof", "-v", "2", "-d", "-c", "00", "-a", testAddress, "-o", string(format))
		assert.Zero(t, h.backendCalls(), format)

		switch format {
		case FormatJSON:
			var out struct {
				Success bool   `json:"success"`
				Error   string `json:"error"`
			}
			require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &out))
			assert.False(t, out.Success)
			assert.Equal(t, "--enable-iprof must be used with -v LOG_LEVEL where LOG_LEVEL >= 4", out.Error)
		case FormatJSONV2:
			var out []struct {
				Meta struct {
					Logs []struct {
						Level string `json:"level"`
						Msg   string `json:"msg"`
					} `json:"logs"`
				} `json:"meta"`
			}
			require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &out))
			require.Len(t, out, 1)
			require.NotEmpty(t, out[0].Meta.Logs)
			assert.Equal(t, "error", out[0].Meta.Logs[0].Level)
		default:
			assert.Empty(t, h.stdout.String())
			assert.Contains(t, h.stderr.String(), "--enable-iprof must be used with")
		}
	}
}

func TestRun_IprofWithoutAnalysis(t *testing.T) {
	h := newHarness(t)
	h.run(t, "--enable-iprof", "-v", "4", "--storage", "0", "-a", testAddress, "-o", "json")
	assert.Contains(t, h.stdout.String(), "--enable-iprof must be used with one of")
	assert.Zero(t, h.backendCalls())
}

func TestRun_Disassemble(t *testing.T) {
	h := newHarness(t)
	h.run(t, "-d", "-c", "6060604052", "-f", "missing.txt")
	out := h.stdout.String()
	assert.True(t, strings.HasPrefix(out, "Disassembly: \n"))
	assert.Contains(t, out, "0 PUSH1 0x60\n2 PUSH1 0x40\n4 MSTORE\n")
	assert.NotContains(t, out, "Runtime Disassembly")
	assert.Zero(t, h.backendCalls())

	h.run(t, "-d", "-c", "0x33ff", "--bin-runtime")
	assert.Equal(t, "Runtime Disassembly: \n0 CALLER\n1 SELFDESTRUCT\n\n", h.stdout.String())
}

func TestRun_SignatureStoreLocked(t *testing.T) {
	h := newHarness(t)
	h.collaborators.OpenSignatures = func(cfg *config.Config, online bool) (SignatureStore, error) {
		return nil, errors.New("open signature database: resource temporarily unavailable")
	}
	h.run(t, "-d", "-c", "6060604052", "-o", "json")
	out := h.stdout.String()
	assert.True(t, strings.HasPrefix(out, "Disassembly: \n"), out)
	assert.Contains(t, out, "4 MSTORE\n")
	assert.NotContains(t, out, `"success":false`)
}

func TestRun_Codefile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "code.txt")
	require.NoError(t, os.WriteFile(path, []byte("0x6060\n6040\n\n52\n"), 0o644))
	h := newHarness(t)
	h.run(t, "-d", "-f", path)
	assert.Contains(t, h.stdout.String(), "4 MSTORE")
}

func TestRun_NoInput(t *testing.T) {
	h := newHarness(t)
	h.run(t, "-d", "-o", "json")
	assert.Contains(t, h.stdout.String(), "No input bytecode.")
}

func TestRun_GraphMultipleFiles(t *testing.T) {
	h := newHarness(t)
	// 文件不存在，若先编译会得到 Input file not found
	h.run(t, "-g", "out.html", "a.sol", "b.sol", "-o", "json")
	assert.Contains(t, h.stdout.String(), "Cannot generate call graphs from multiple input files. Please do it one at a time.")
}

func TestRun_MissingSolidityFile(t *testing.T) {
	h := newHarness(t)
	h.run(t, "-x", "missing.sol", "-o", "json")
	assert.Contains(t, h.stdout.String(), "Input file not found: missing.sol")
}

func TestRun_AddressLookup(t *testing.T) {
	hash := "0x" + strings.Repeat("ab", 32)
	h := newHarness(t)
	h.run(t, "--contract-hash-to-address", hash, "--leveldb-dir", "/data/chaindata", "-a", testAddress, "-o", "json")
	assert.Equal(t, "Address not found.\n", h.stdout.String())
	assert.Empty(t, h.stderr.String())
	assert.Equal(t, []string{"/data/chaindata"}, h.dbPaths)
	assert.Empty(t, h.urls)
	assert.True(t, h.db.closed)

	h.db.addresses[hash] = testAddress
	h.run(t, "--contract-hash-to-address", hash)
	assert.Equal(t, testAddress+"\n", h.stdout.String())
	// 未指定目录时使用配置中的默认目录
	assert.Len(t, h.dbPaths, 2)
	assert.NotEqual(t, "/data/chaindata", h.dbPaths[1])
}

func TestRun_DatabaseSearch(t *testing.T) {
	h := newHarness(t)
	h.run(t, "-s", "code#PUSH1#")
	assert.Equal(t, "0x01 "+testAddress+" balance: 7\n", h.stdout.String())
	assert.Empty(t, h.urls)

	h.run(t, "-s", "bad", "-o", "json")
	assert.Contains(t, h.stdout.String(), "Invalid search expression")
}

func TestRun_StorageRead(t *testing.T) {
	h := newHarness(t)
	h.run(t, "--storage", "0", "-c", "00", "-o", "json")
	assert.Contains(t, h.stdout.String(), "To read storage, provide the address of a deployed contract with the -a option.")

	h.run(t, "--storage", "1,2", "-a", testAddress, "--rpc", "ganache")
	assert.Equal(t, fmt.Sprintf("0x1: 0x%064x\n0x2: 0x%064x\n", 101, 102), h.stdout.String())
	assert.Equal(t, []string{"http://localhost:8545"}, h.urls)
	assert.True(t, h.rpc.closed)

	h.run(t, "--storage", "x", "-a", testAddress, "--rpc", "ganache", "-o", "json")
	assert.Contains(t, h.stdout.String(), "Invalid storage index. Please provide a numeric value.")
}

func TestRun_AddressErrors(t *testing.T) {
	h := newHarness(t)
	h.run(t, "-d", "-a", "0x1234", "--rpc", "ganache", "-o", "json")
	assert.Contains(t, h.stdout.String(), "Invalid contract address. Expected format is '0x...'.")

	h.run(t, "-d", "-a", "0x"+strings.Repeat("0", 40), "--rpc", "ganache", "-o", "json")
	assert.Contains(t, h.stdout.String(), "Received an empty response from eth_getCode.")

	h.dialErr = errors.New("connection refused")
	h.run(t, "-d", "-a", testAddress, "--rpc", "127.0.0.1:8545", "-o", "json")
	assert.Contains(t, h.stdout.String(), "IPC / RPC error: connection refused")
	assert.Equal(t, "http://127.0.0.1:8545", h.urls[len(h.urls)-1])

	h.run(t, "-d", "-a", testAddress, "--rpc", "nonsense", "-o", "json")
	assert.Contains(t, h.stdout.String(), "Invalid RPC argument")
}

func TestRun_BackendExclusive(t *testing.T) {
	h := newHarness(t)
	h.run(t, "-d", "-a", testAddress, "--rpc", "ganache", "-l")
	assert.Contains(t, h.stdout.String(), "Runtime Disassembly")
	assert.Len(t, h.urls, 1)
	assert.Empty(t, h.dbPaths)

	// dynld 使用配置文件中的rpc
	h = newHarness(t)
	t.Setenv(config.EnvInfuraID, "key")
	h.run(t, "-d", "-c", "00", "-l")
	assert.Equal(t, []string{"https://mainnet.infura.io/v3/key"}, h.urls)

	h = newHarness(t)
	h.run(t, "-d", "-c", "00", "-l", "--no-onchain-storage-access")
	assert.Zero(t, h.backendCalls())
}

func TestRun_Analyze(t *testing.T) {
	h := newHarness(t)
	h.run(t, "-x", "-c", "33ff", "--bin-runtime", "-o", "json")
	var out struct {
		Success bool `json:"success"`
		Issues  []struct {
			SWCID string `json:"swc-id"`
		} `json:"issues"`
	}
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &out))
	assert.True(t, out.Success)
	require.Len(t, out.Issues, 1)
	assert.Equal(t, "106", out.Issues[0].SWCID)

	h.run(t, "-x", "-c", "33ff", "--bin-runtime", "-m", "TxOrigin")
	assert.Contains(t, h.stdout.String(), "The analysis was completed successfully. No issues were detected.")

	h.run(t, "-x", "-c", "33ff", "--bin-runtime", "-o", "markdown")
	assert.Contains(t, h.stdout.String(), "SWC ID: 106")
}

func TestRun_AnalyzeUnknownModule(t *testing.T) {
	for _, format := range formats {
		h := newHarness(t)
		h.run(t, "-x", "-c", "33ff", "--bin-runtime", "-m", "NonexistentModule", "-o", string(format))
		out := h.stdout.String() + h.stderr.String()
		assert.Contains(t, out, "Error loading analyis modules: Invalid detection module: NonexistentModule", format)
	}
}

func TestRun_Graph(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.html")
	h := newHarness(t)
	h.run(t, "-g", path, "-c", "600035600757005b00", "--bin-runtime", "--enable-physics")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "vis.Network")

	h.run(t, "-g", filepath.Join(dir, "missing", "graph.html"), "-c", "00", "--bin-runtime", "-o", "json")
	assert.Contains(t, h.stdout.String(), "Error saving graph: ")
}

func TestRun_Statespace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "statespace.json")
	h := newHarness(t)
	h.run(t, "-j", path, "-c", "600035600757005b00", "--bin-runtime")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var space struct {
		Nodes []json.RawMessage `json:"nodes"`
		Edges []json.RawMessage `json:"edges"`
	}
	require.NoError(t, json.Unmarshal(data, &space))
	assert.Len(t, space.Nodes, 3)
	assert.Len(t, space.Edges, 2)

	h.run(t, "-j", filepath.Join(dir, "missing", "statespace.json"), "-c", "00", "--bin-runtime", "-o", "jsonv2")
	assert.Contains(t, h.stdout.String(), "Error saving json: ")
}

func TestRun_Truffle(t *testing.T) {
	h := newHarness(t)
	h.run(t, "--truffle", "-a", testAddress)
	assert.Equal(t, truffleNotFound+"\n", h.stdout.String())
	assert.Zero(t, h.backendCalls())

	buildDir := filepath.Join(h.collaborators.WorkDir, "build", "contracts")
	require.NoError(t, os.MkdirAll(buildDir, 0o755))
	artifact := `{"contractName": "Wallet", "bytecode": "", "deployedBytecode": "0x33ff", "sourcePath": "contracts/Wallet.sol"}`
	require.NoError(t, os.WriteFile(filepath.Join(buildDir, "Wallet.json"), []byte(artifact), 0o644))
	h.run(t, "--truffle", "-o", "json")
	assert.Contains(t, h.stdout.String(), `"swc-id":"106"`)
	assert.Contains(t, h.stdout.String(), `"contract":"Wallet"`)
}
