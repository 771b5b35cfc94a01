package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseArgs(t *testing.T, argv ...string) *Args {
	t.Helper()
	a := &Args{}
	fs := flag.NewFlagSet("gscanner", flag.ContinueOnError)
	a.BindFlags(fs)
	require.NoError(t, fs.Parse(argv))
	a.SolidityFiles = fs.Args()
	return a
}

func TestBindFlags(t *testing.T) {
	a := parseArgs(t)
	assert.Equal(t, FormatText, a.Outform)
	assert.Equal(t, "bfs", a.Strategy)
	assert.Equal(t, 50, a.MaxDepth)
	assert.Equal(t, 4, a.LoopBound)
	assert.Equal(t, 2, a.TransactionCount)
	assert.Equal(t, 10000, a.SolverTimeout)
	assert.Equal(t, 86400, a.ExecutionTimeout)
	assert.Equal(t, 10, a.CreateTimeout)
	assert.Equal(t, 2, a.Verbosity)
	assert.Equal(t, "infura-mainnet", a.RPC)

	a = parseArgs(t, "-x", "-o", "jsonv2", "--strategy", "dfs", "-v", "4", "-m", "TxOrigin, ArbitraryJump", "a.sol", "b.sol")
	assert.True(t, a.FireLasers)
	assert.Equal(t, FormatJSONV2, a.Outform)
	assert.Equal(t, "dfs", a.Strategy)
	assert.Equal(t, 4, a.Verbosity)
	assert.Equal(t, []string{"TxOrigin", "ArbitraryJump"}, a.ModuleNames())
	assert.Equal(t, []string{"a.sol", "b.sol"}, a.SolidityFiles)

	for _, argv := range [][]string{
		{"-o", "xml"},
		{"--strategy", "random"},
	} {
		fs := flag.NewFlagSet("gscanner", flag.ContinueOnError)
		fs.SetOutput(&bytes.Buffer{})
		(&Args{}).BindFlags(fs)
		assert.Error(t, fs.Parse(argv), "%v", argv)
	}
}

func TestStorageParams(t *testing.T) {
	a := parseArgs(t, "--storage", " mapping, 1 ,key ")
	assert.Equal(t, []string{"mapping", "1", "key"}, a.StorageParams())
	assert.Nil(t, parseArgs(t).ModuleNames())
}

func TestResolveMode(t *testing.T) {
	tests := []struct {
		argv []string
		mode Mode
	}{
		{nil, ModeHelp},
		{[]string{"-c", "00"}, ModeHelp},
		{[]string{"--epic", "-V", "-d"}, ModeEpicEscape},
		{[]string{"-V", "-d"}, ModeVersion},
		{[]string{"--hash", "f()", "-s", "code#STOP#", "-d"}, ModeHashLookup},
		{[]string{"-s", "code#STOP#", "--contract-hash-to-address", "0x1"}, ModeDatabaseSearch},
		{[]string{"--contract-hash-to-address", "0x1", "--truffle"}, ModeAddressLookup},
		{[]string{"--truffle", "--storage", "0"}, ModeTruffleProject},
		{[]string{"--storage", "0", "-d"}, ModeStorageRead},
		{[]string{"-d", "-g", "out.html"}, ModeDisassemble},
		{[]string{"-g", "out.html", "-x"}, ModeGraphExport},
		{[]string{"-x", "-j", "out.json"}, ModeAnalyze},
		{[]string{"-j", "out.json"}, ModeStatespaceExport},
	}
	for _, test := range tests {
		assert.Equal(t, test.mode, ResolveMode(parseArgs(t, test.argv...)), "%v", test.argv)
	}
	assert.Equal(t, "fire-lasers", ModeAnalyze.String())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		argv    []string
		caps    Capabilities
		message string
	}{
		{[]string{"-d", "-v", "6"}, Capabilities{}, "Invalid -v value, you can find valid values in usage"},
		{[]string{"-d", "-v", "-1"}, Capabilities{}, "Invalid -v value, you can find valid values in usage"},
		{[]string{"-d", "-q"}, Capabilities{}, "The --query-signature function requires the online signature lookup capability"},
		{[]string{"-x", "--enable-iprof"}, Capabilities{}, "--enable-iprof must be used with -v LOG_LEVEL where LOG_LEVEL >= 4"},
		{[]string{"-d", "--enable-iprof", "-v", "2"}, Capabilities{}, "--enable-iprof must be used with -v LOG_LEVEL where LOG_LEVEL >= 4"},
		{[]string{"-d", "--enable-iprof", "-v", "4"}, Capabilities{},
			"--enable-iprof must be used with one of -g, --graph, -x, --fire-lasers, -j and --statespace-json"},
		{[]string{"-d", "-q"}, Capabilities{OnlineSignatureLookup: true}, ""},
		{[]string{"-j", "out.json", "--enable-iprof", "-v", "5"}, Capabilities{}, ""},
	}
	for _, test := range tests {
		err := Validate(parseArgs(t, test.argv...), test.caps)
		if test.message == "" {
			assert.NoError(t, err, "%v", test.argv)
			continue
		}
		assert.EqualError(t, err, test.message, "%v", test.argv)
		assert.Equal(t, KindConfiguration, KindOf(err))
	}
}

func TestResolveInput(t *testing.T) {
	// code 优先于 codefile
	src, err := ResolveInput(parseArgs(t, "-c", "0x6060", "-f", "code.txt", "-a", "0x1", "a.sol"))
	require.NoError(t, err)
	assert.Equal(t, InputSource{Kind: InputLiteralBytecode, Bytecode: "6060"}, src)

	src, err = ResolveInput(parseArgs(t, "-f", "code.txt", "-a", "0x1"))
	require.NoError(t, err)
	assert.Equal(t, InputSource{Kind: InputBytecodeFile, Path: "code.txt"}, src)

	src, err = ResolveInput(parseArgs(t, "-a", "0x1", "a.sol"))
	require.NoError(t, err)
	assert.Equal(t, InputSource{Kind: InputChainAddress, Address: "0x1"}, src)

	src, err = ResolveInput(parseArgs(t, "-g", "out.html", "a.sol"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.sol"}, src.Files)

	_, err = ResolveInput(parseArgs(t, "-g", "out.html", "a.sol", "b.sol"))
	assert.EqualError(t, err, "Cannot generate call graphs from multiple input files. Please do it one at a time.")
	assert.Equal(t, KindInput, KindOf(err))

	_, err = ResolveInput(parseArgs(t, "-d"))
	assert.EqualError(t, err, "No input bytecode. Please provide EVM code via -c BYTECODE, -a ADDRESS, -f BYTECODE_FILE or <SOLIDITY_FILE>")
}

func TestReadCodefile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "code.txt")
	require.NoError(t, os.WriteFile(path, []byte("0x6060\n\n  6040 \r\n52\n"), 0o644))
	code, err := readCodefile(path)
	require.NoError(t, err)
	assert.Equal(t, "6060604052", code)

	_, err = readCodefile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestNewEnvelope(t *testing.T) {
	env := NewEnvelope(configurationError("bad flag"))
	assert.Equal(t, Envelope{Message: "bad flag", Recoverable: true}, env)

	env = NewEnvelope(errors.Wrap(errors.New("boom"), "explore"))
	assert.Equal(t, "explore: boom", env.Message)
	assert.False(t, env.Recoverable)
	assert.Contains(t, env.Trace, "TestNewEnvelope")

	err := executionError(errors.New("denied"), "Error saving graph: ")
	assert.EqualError(t, err, "Error saving graph: denied")
	assert.Equal(t, "denied", errors.Cause(err).Error())
}

func TestFormatterFail(t *testing.T) {
	env := Envelope{Message: "something failed", Trace: "something failed\nmain.go:1"}

	var out, errOut bytes.Buffer
	NewFormatter(FormatJSON, &out, &errOut).Fail(env)
	var jsonOut struct {
		Success bool          `json:"success"`
		Error   string        `json:"error"`
		Issues  []interface{} `json:"issues"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &jsonOut))
	assert.False(t, jsonOut.Success)
	assert.Equal(t, "something failed", jsonOut.Error)
	assert.NotNil(t, jsonOut.Issues)
	assert.Empty(t, errOut.String())

	out.Reset()
	NewFormatter(FormatJSONV2, &out, &errOut).Fail(env)
	assert.JSONEq(t, `[{"issues": [], "sourceType": "", "sourceFormat": "", "sourceList": [],
		"meta": {"logs": [{"level": "error", "hidden": true, "msg": "something failed"}]}}]`, out.String())

	for _, format := range []Format{FormatText, FormatMarkdown} {
		out.Reset()
		errOut.Reset()
		NewFormatter(format, &out, &errOut).Fail(env)
		assert.Empty(t, out.String())
		assert.Contains(t, errOut.String(), "main.go:1")
	}
}

func TestFormatterVersion(t *testing.T) {
	var out bytes.Buffer
	NewFormatter(FormatJSON, &out, &out).Version("v0.1.0")
	assert.JSONEq(t, `{"version_str": "v0.1.0"}`, out.String())

	out.Reset()
	NewFormatter(FormatMarkdown, &out, &out).Version("v0.1.0")
	assert.Equal(t, "gscanner version v0.1.0\n", out.String())
}

func TestSession(t *testing.T) {
	var none *Session
	assert.Equal(t, SessionNone, none.Kind())
	assert.Nil(t, none.Chain())
	assert.Nil(t, none.Database())
	assert.NoError(t, none.Close())

	rpc := &fakeRPC{}
	s := newRPCSession(rpc)
	assert.Equal(t, SessionRPC, s.Kind())
	assert.NotNil(t, s.Chain())
	assert.Nil(t, s.Database())
	require.NoError(t, s.Close())
	assert.True(t, rpc.closed)

	db := &fakeDB{}
	s = newDatabaseSession(db)
	assert.Nil(t, s.Chain())
	assert.NotNil(t, s.Database())
	require.NoError(t, s.Close())
	assert.True(t, db.closed)
}
