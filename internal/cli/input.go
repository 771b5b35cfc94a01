package cli

import (
	"context"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/Notation/gscanner/internal/gscanner"
	"github.com/Notation/gscanner/internal/util"
)

type InputKind int

const (
	InputLiteralBytecode InputKind = iota + 1
	InputBytecodeFile
	InputChainAddress
	InputSourceFiles
)

// InputSource 只有与Kind对应的字段有值
type InputSource struct {
	Kind     InputKind
	Bytecode string
	Path     string
	Address  string
	Files    []string
}

// ResolveInput 按 code, codefile, address, solidity文件 的顺序取第一个
func ResolveInput(a *Args) (InputSource, error) {
	switch {
	case a.Code != "":
		return InputSource{Kind: InputLiteralBytecode, Bytecode: util.StripHexPrefix(a.Code)}, nil
	case a.Codefile != "":
		return InputSource{Kind: InputBytecodeFile, Path: a.Codefile}, nil
	case a.Address != "":
		return InputSource{Kind: InputChainAddress, Address: a.Address}, nil
	case len(a.SolidityFiles) > 0:
		if a.Graph != "" && len(a.SolidityFiles) > 1 {
			return InputSource{}, inputError("Cannot generate call graphs from multiple input files. Please do it one at a time.")
		}
		return InputSource{Kind: InputSourceFiles, Files: a.SolidityFiles}, nil
	}
	return InputSource{}, inputError(
		"No input bytecode. Please provide EVM code via -c BYTECODE, -a ADDRESS, -f BYTECODE_FILE or <SOLIDITY_FILE>")
}

// readCodefile 去掉空行后拼接
func readCodefile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "read codefile %s", path)
	}
	var b strings.Builder
	for _, line := range strings.Split(string(data), "\n") {
		b.WriteString(strings.TrimSpace(line))
	}
	return util.StripHexPrefix(b.String()), nil
}

// load 将输入交给disassembler，返回被分析合约的地址
func (src InputSource) load(ctx context.Context, md *gscanner.Disassembler, binRuntime bool) (string, error) {
	var (
		address string
		err     error
	)
	switch src.Kind {
	case InputLiteralBytecode:
		address, err = md.LoadFromBytecode(src.Bytecode, binRuntime)
	case InputBytecodeFile:
		var code string
		if code, err = readCodefile(src.Path); err == nil {
			address, err = md.LoadFromBytecode(code, binRuntime)
		}
	case InputChainAddress:
		address, err = md.LoadFromAddress(ctx, src.Address)
	case InputSourceFiles:
		address, _, err = md.LoadFromSolidity(src.Files)
	default:
		err = errors.Errorf("unknown input kind %d", src.Kind)
	}
	if err != nil {
		return "", wrapInput(err)
	}
	return address, nil
}
