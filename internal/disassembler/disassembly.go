package disassembler

import (
	"strconv"
	"strings"

	"github.com/Notation/gscanner/internal/opcode"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// SignatureResolver 根据4字节函数选择器查找函数签名
type SignatureResolver interface {
	Lookup(selector string) ([]string, error)
}

// Disassembly 汇编信息管理
type Disassembly struct {
	bytecode          string
	instructions      []EvmInstruction
	funcHashes        []string
	funcNameToAddress map[string]int
	funcAddressToName map[int]string
	jumpDests         map[int]int // 地址 -> 指令下标
}

func NewDisassembly(bytecode string, resolver SignatureResolver) (*Disassembly, error) {
	d := &Disassembly{
		funcNameToAddress: make(map[string]int),
		funcAddressToName: make(map[int]string),
		jumpDests:         make(map[int]int),
	}
	if err := d.AssignBytecode(bytecode, resolver); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Disassembly) AssignBytecode(bytecode string, resolver SignatureResolver) error {
	instructions, err := disassemble(bytecode)
	if err != nil {
		return errors.Wrap(err, "disassemble")
	}
	d.instructions = instructions
	d.bytecode = bytecode
	for i := range instructions {
		if instructions[i].OPCode == vm.JUMPDEST {
			d.jumpDests[instructions[i].Address] = i
		}
	}
	// 函数分发表: PUSH4 <selector> EQ PUSH2 <entry> JUMPI
	jumpTableIndices := FindOPCodeSequence([][]vm.OpCode{
		{vm.PUSH1, vm.PUSH2, vm.PUSH3, vm.PUSH4},
		{vm.EQ},
		{vm.PUSH1, vm.PUSH2, vm.PUSH3, vm.PUSH4},
		{vm.JUMPI},
	}, d.instructions)
	for _, index := range jumpTableIndices {
		functionHash, jumpTarget, functionName := getFunctionInfo(index, d.instructions, resolver)
		d.funcHashes = append(d.funcHashes, functionHash)
		if jumpTarget != 0 && functionName != "" {
			d.funcNameToAddress[functionName] = jumpTarget
			d.funcAddressToName[jumpTarget] = functionName
		}
	}
	return nil
}

func (d *Disassembly) GetBytecode() string {
	return d.bytecode
}

func (d *Disassembly) GetEASM() string {
	return instructionListToEASM(d.instructions)
}

func (d *Disassembly) GetInstructions() []EvmInstruction {
	return d.instructions
}

// GetFuncHashes 分发表中出现的函数选择器
func (d *Disassembly) GetFuncHashes() []string {
	return d.funcHashes
}

// FunctionAt 返回入口地址对应的函数名
func (d *Disassembly) FunctionAt(address int) (string, bool) {
	name, ok := d.funcAddressToName[address]
	return name, ok
}

// FunctionEntries 函数名 -> 入口地址
func (d *Disassembly) FunctionEntries() map[string]int {
	return d.funcNameToAddress
}

// JumpDest 返回地址处JUMPDEST的指令下标
func (d *Disassembly) JumpDest(address int) (int, bool) {
	index, ok := d.jumpDests[address]
	return index, ok
}

// GetInstructionIndex 返回第一个地址不小于address的指令下标
func (d *Disassembly) GetInstructionIndex(address int) int {
	for index, instruction := range d.instructions {
		if instruction.Address >= address {
			return index
		}
	}
	return -1
}

// BlockEnd 返回从start开始的基本块最后一条指令的下标
func (d *Disassembly) BlockEnd(start int) int {
	for i := start; i < len(d.instructions); i++ {
		op := d.instructions[i].OPCode
		if op == vm.JUMP || op == vm.JUMPI || opcode.IsTerminal(op) {
			return i
		}
		if i+1 < len(d.instructions) && d.instructions[i+1].OPCode == vm.JUMPDEST {
			return i
		}
	}
	return len(d.instructions) - 1
}

// BlockEASM 基本块的汇编
func (d *Disassembly) BlockEASM(start int) string {
	if start < 0 || start >= len(d.instructions) {
		return ""
	}
	return instructionListToEASM(d.instructions[start : d.BlockEnd(start)+1])
}

func getFunctionInfo(index int, instructions []EvmInstruction, resolver SignatureResolver) (
	string, int, string) {
	var (
		funcHash = instructions[index].FormatArgument()
		funcName = "_function_" + funcHash
	)
	entryPoint, err := strconv.ParseInt(strings.TrimPrefix(instructions[index+2].FormatArgument(), "0x"), 16, 64)
	if err != nil {
		log.Debugf("parse entry point of %s: %v", funcHash, err)
	}
	if resolver != nil {
		signatures, err := resolver.Lookup(funcHash)
		if err != nil {
			log.Debugf("lookup signature %s: %v", funcHash, err)
		}
		switch {
		case len(signatures) == 1:
			funcName = signatures[0]
		case len(signatures) > 1:
			funcName = "**ambiguous** " + signatures[0]
		}
	}
	return funcHash, int(entryPoint), funcName
}

