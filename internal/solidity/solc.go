package solidity

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/Notation/solc-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// for older version, compiler wrapper is not standard
// less than version 0.5.0, use compileJSON
// greater or equal 0.5.0 and less than 0.6.0, use solidity_compile('string', 'number')
// greater or equal 0.6.0, use solidity_compile('string', 'number', 'number')

// solc compiler input & output docs:
// https://docs.soliditylang.org/en/v0.5.0/using-the-compiler.html#compiler-input-and-output-json-description

const (
	SolcBinaryMetaFile = "list.json"
	SolcBinaryEndpoint = "https://raw.githubusercontent.com/ethereum/solc-bin/gh-pages/wasm/"
)

// CompilerSettings 编译参数
type CompilerSettings struct {
	Version   string // 为空时从pragma中提取
	Args      string // solc命令行风格的额外参数
	BinaryDir string // wasm编译器缓存目录
}

// CompilerOutput standard json输出中用到的部分
type CompilerOutput struct {
	Errors []struct {
		Severity         string `json:"severity"`
		FormattedMessage string `json:"formattedMessage"`
	} `json:"errors"`
	Sources map[string]struct {
		ID int `json:"id"`
	} `json:"sources"`
	Contracts map[string]map[string]struct {
		EVM struct {
			Bytecode          compiledBytecode  `json:"bytecode"`
			DeployedBytecode  compiledBytecode  `json:"deployedBytecode"`
			MethodIdentifiers map[string]string `json:"methodIdentifiers"`
		} `json:"evm"`
	} `json:"contracts"`

	contents map[string]string
}

type compiledBytecode struct {
	Object    string `json:"object"`
	SourceMap string `json:"sourceMap"`
}

// MethodIdentifiers 所有合约的 签名 -> 选择器
func (co *CompilerOutput) MethodIdentifiers() map[string]string {
	result := make(map[string]string)
	for _, contracts := range co.Contracts {
		for _, contract := range contracts {
			for signature, selector := range contract.EVM.MethodIdentifiers {
				result[signature] = selector
			}
		}
	}
	return result
}

// sourceFiles 按source id排列的源文件
func (co *CompilerOutput) sourceFiles() ([]sourceFile, error) {
	names := make([]string, 0, len(co.Sources))
	for name := range co.Sources {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return co.Sources[names[i]].ID < co.Sources[names[j]].ID
	})
	files := make([]sourceFile, len(names))
	for i, name := range names {
		content, ok := co.contents[name]
		if !ok {
			data, err := os.ReadFile(name)
			if err != nil {
				return nil, errors.Wrapf(err, "read source %s", name)
			}
			content = string(data)
		}
		files[i] = sourceFile{name: name, content: content}
	}
	return files, nil
}

type standardInput struct {
	Language string                       `json:"language"`
	Sources  map[string]map[string]string `json:"sources"`
	Settings standardSettings             `json:"settings"`
}

type standardSettings struct {
	Optimizer struct {
		Enabled bool `json:"enabled"`
		Runs    int  `json:"runs"`
	} `json:"optimizer"`
	EVMVersion      string                         `json:"evmVersion,omitempty"`
	Remappings      []string                       `json:"remappings,omitempty"`
	OutputSelection map[string]map[string][]string `json:"outputSelection"`
}

// parseSolcArgs 支持 --optimize --optimize-runs N --evm-version V 以及 prefix=path 形式的remapping
func parseSolcArgs(args string) standardSettings {
	var settings standardSettings
	settings.Optimizer.Runs = 200
	fields := strings.Fields(args)
	for i := 0; i < len(fields); i++ {
		field := fields[i]
		var value string
		if idx := strings.Index(field, "="); strings.HasPrefix(field, "--") && idx > 0 {
			field, value = field[:idx], field[idx+1:]
		}
		next := func() string {
			if value != "" {
				return value
			}
			if i+1 < len(fields) {
				i++
				return fields[i]
			}
			return ""
		}
		switch {
		case field == "--optimize":
			settings.Optimizer.Enabled = true
		case field == "--optimize-runs":
			runs, err := strconv.Atoi(next())
			if err != nil {
				log.Warnf("invalid --optimize-runs value in solc args: %v", err)
				continue
			}
			settings.Optimizer.Runs = runs
		case field == "--evm-version":
			settings.EVMVersion = next()
		case !strings.HasPrefix(field, "--") && strings.Contains(field, "="):
			settings.Remappings = append(settings.Remappings, field)
		default:
			log.Warnf("unsupported solc argument ignored: %s", field)
		}
	}
	settings.OutputSelection = map[string]map[string][]string{
		"*": {
			"*": []string{
				"metadata",
				"evm.bytecode",
				"evm.deployedBytecode",
				"evm.methodIdentifiers",
			},
			"": []string{
				"ast",
			},
		},
	}
	return settings
}

func PrepareSolcBinary(ctx context.Context, dir, version string) (string, error) {
	solcMeta, err := NewSolcBinaryMeta(ctx, dir)
	if err != nil {
		return "", errors.Wrap(err, "NewSolcBinaryMeta")
	}
	solcFile, err := solcMeta.GetSolcBinary(ctx, version)
	if err != nil {
		return "", errors.Wrap(err, "GetSolcBinary")
	}
	return solcFile, nil
}

// GetSolcJSON 编译solidity文件，返回standard json输出
func GetSolcJSON(files []string, settings CompilerSettings) (*CompilerOutput, error) {
	if len(files) == 0 {
		return nil, errors.New("no solidity file given")
	}
	contents := make(map[string]string, len(files))
	sources := make(map[string]map[string]string, len(files))
	for _, file := range files {
		fileData, err := os.ReadFile(file)
		if err != nil {
			return nil, errors.Wrap(err, "ReadFile")
		}
		contents[file] = string(fileData)
		sources[file] = map[string]string{"content": string(fileData)}
	}
	version := settings.Version
	if version == "" {
		version = ExtractVersionFromData([]byte(contents[files[0]]))
	}
	if version == "" {
		return nil, errors.Errorf("no pragma solidity found in %s, specify the compiler version with --solv", files[0])
	}
	solcFile, err := PrepareSolcBinary(context.Background(), settings.BinaryDir, version)
	if err != nil {
		return nil, errors.Wrap(err, "PrepareSolcBinary")
	}
	compiler, err := solc.NewFromFile(solcFile, version)
	if err != nil {
		return nil, errors.Wrap(err, "NewFromFile")
	}

	// 标准json输入先按规范字段序列化，再解码成编译器的输入类型
	raw, err := json.Marshal(standardInput{
		Language: "Solidity",
		Sources:  sources,
		Settings: parseSolcArgs(settings.Args),
	})
	if err != nil {
		return nil, errors.Wrap(err, "Marshal input")
	}
	var input solc.Input
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, errors.Wrap(err, "Unmarshal input")
	}
	output, err := compiler.Compile(&input)
	if err != nil {
		return nil, errors.Wrap(err, "Compile")
	}
	return decodeCompilerOutput(output, contents)
}

func decodeCompilerOutput(output interface{}, contents map[string]string) (*CompilerOutput, error) {
	raw, err := json.Marshal(output)
	if err != nil {
		return nil, errors.Wrap(err, "Marshal output")
	}
	var result CompilerOutput
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, errors.Wrap(err, "Unmarshal output")
	}
	var messages []string
	for _, e := range result.Errors {
		if strings.EqualFold(e.Severity, "error") {
			messages = append(messages, e.FormattedMessage)
		}
	}
	if len(messages) > 0 {
		return nil, errors.Errorf("solc error:\n%s", strings.Join(messages, "\n"))
	}
	result.contents = contents
	return &result, nil
}

const PragmaSolidity = "pragma solidity "

// ExtractVersionFromData 提取版本号
// ^0.8.0 / >=0.6.0 <0.9.0 取第一个版本号
func ExtractVersionFromData(fileData []byte) string {
	lines := strings.Split(string(fileData), "\n")
	for i := range lines {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, PragmaSolidity) {
			continue
		}
		constraint := strings.TrimRight(strings.TrimPrefix(line, PragmaSolidity), "; ")
		fields := strings.Fields(constraint)
		if len(fields) == 0 {
			return ""
		}
		return strings.TrimLeft(fields[0], "^~>=<")
	}
	return ""
}
