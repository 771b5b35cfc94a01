package solidity

import (
	"sort"
	"strconv"
	"strings"

	"github.com/Notation/gscanner/internal/disassembler"
)

// SourceCodeInfo 指令对应的源码位置
type SourceCodeInfo struct {
	FileName string
	LineNum  int
	Code     string
}

type sourceFile struct {
	name    string
	content string
}

// sourceMapEntry solc source map中的一项 s:l:f:j
type sourceMapEntry struct {
	offset    int
	length    int
	fileIndex int
	jump      string
}

type sourceMapping struct {
	files    []sourceFile
	runtime  []sourceMapEntry
	creation []sourceMapEntry
	// truffle产物只携带一个源文件，忽略文件下标
	singleFile bool
}

// parseSourceMap 解压缩source map，空字段沿用上一项的值
// https://docs.soliditylang.org/en/latest/internals/source_mappings.html
func parseSourceMap(srcMap string) []sourceMapEntry {
	if srcMap == "" {
		return nil
	}
	var (
		items   = strings.Split(srcMap, ";")
		result  = make([]sourceMapEntry, 0, len(items))
		current sourceMapEntry
	)
	for _, item := range items {
		fields := strings.Split(item, ":")
		for i, field := range fields {
			if field == "" {
				continue
			}
			switch i {
			case 0:
				current.offset, _ = strconv.Atoi(field)
			case 1:
				current.length, _ = strconv.Atoi(field)
			case 2:
				current.fileIndex, _ = strconv.Atoi(field)
			case 3:
				current.jump = field
			}
		}
		result = append(result, current)
	}
	return result
}

// ContractsFromOutput 从编译输出中取出有运行时字节码的合约，按文件及合约名排序
func ContractsFromOutput(output *CompilerOutput, files []string, resolver disassembler.SignatureResolver) ([]*EVMContract, error) {
	sourceFiles, err := output.sourceFiles()
	if err != nil {
		return nil, err
	}
	var result []*EVMContract
	for _, file := range files {
		names := make([]string, 0, len(output.Contracts[file]))
		for name := range output.Contracts[file] {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			compiled := output.Contracts[file][name]
			if compiled.EVM.DeployedBytecode.Object == "" {
				continue
			}
			contract, err := NewEVMContract(compiled.EVM.DeployedBytecode.Object, compiled.EVM.Bytecode.Object, name, resolver)
			if err != nil {
				return nil, err
			}
			contract.InputFile = file
			contract.source = &sourceMapping{
				files:    sourceFiles,
				runtime:  parseSourceMap(compiled.EVM.DeployedBytecode.SourceMap),
				creation: parseSourceMap(compiled.EVM.Bytecode.SourceMap),
			}
			result = append(result, contract)
		}
	}
	return result, nil
}

// GetSourceInfo 根据指令地址获取源码信息，constructor表示地址属于创建字节码
func (c *EVMContract) GetSourceInfo(address int, constructor bool) *SourceCodeInfo {
	if c.source == nil {
		return nil
	}
	var (
		disassembly = c.Disassembly
		entries     = c.source.runtime
	)
	if constructor {
		disassembly = c.CreationDisassembly
		entries = c.source.creation
	}
	index := disassembly.GetInstructionIndex(address)
	if index < 0 || index >= len(entries) {
		return nil
	}
	entry := entries[index]
	fileIndex := entry.fileIndex
	if c.source.singleFile && fileIndex >= 0 {
		fileIndex = 0
	}
	if fileIndex < 0 || fileIndex >= len(c.source.files) {
		return nil
	}
	file := c.source.files[fileIndex]
	if entry.offset < 0 || entry.offset+entry.length > len(file.content) {
		return nil
	}
	return &SourceCodeInfo{
		FileName: file.name,
		LineNum:  strings.Count(file.content[:entry.offset], "\n") + 1,
		Code:     file.content[entry.offset : entry.offset+entry.length],
	}
}
