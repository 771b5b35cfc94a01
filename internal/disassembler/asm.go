package disassembler

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/Notation/gscanner/internal/opcode"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/pkg/errors"
)

// swarm元数据长度，编译器附加在字节码末尾
const swarmMetadataLength = 43

type EvmInstruction struct {
	Address  int       // 地址
	OPCode   vm.OpCode // OPCode
	Argument []byte    // 指令参数
}

// Name 指令名称
func (ei *EvmInstruction) Name() string {
	return opcode.Name(ei.OPCode)
}

func (ei *EvmInstruction) String() string {
	var builder strings.Builder
	builder.WriteString(strconv.Itoa(ei.Address))
	builder.WriteString(" ")
	builder.WriteString(ei.Name())
	if len(ei.Argument) > 0 {
		builder.WriteString(" ")
		builder.WriteString("0x" + hex.EncodeToString(ei.Argument))
	}
	builder.WriteString("\n")
	return builder.String()
}

// FormatArgument 将argument格式化成16进制的字符串
// 格式化之后的长度至少是8，不足补0
// 如[0x1,0x2]格式化之后为0x00000102
func (ei *EvmInstruction) FormatArgument() string {
	if len(ei.Argument) <= 0 {
		return ""
	}
	data := hex.EncodeToString(ei.Argument)
	if len(data) < 8 {
		return "0x" + strings.Repeat("0", 8-len(data)) + data
	}
	return "0x" + data
}

func instructionListToEASM(instructions []EvmInstruction) string {
	var builder strings.Builder
	for i := range instructions {
		builder.WriteString(instructions[i].String())
	}
	return builder.String()
}

// patterns从0开始，instructions从index开始，依次匹配
func isSequenceMatch(patterns [][]vm.OpCode, instructions []EvmInstruction, index int) bool {
	for i, pattern := range patterns {
		if index+i >= len(instructions) {
			return false
		}
		var foundOPCode bool
		for _, p := range pattern {
			if instructions[index+i].OPCode == p {
				foundOPCode = true
				break
			}
		}
		if !foundOPCode {
			return false
		}
	}
	return true
}

func FindOPCodeSequence(patterns [][]vm.OpCode, instructions []EvmInstruction) []int {
	result := make([]int, 0)
	for i := 0; i < len(instructions)-len(patterns)+1; i++ {
		if isSequenceMatch(patterns, instructions, i) {
			result = append(result, i)
		}
	}
	return result
}

// disassemble 解码code为EVMInstruction
// data 仅支持hex string
func disassemble(data string) (instructions []EvmInstruction, err error) {
	bytecode, err := hex.DecodeString(strings.TrimPrefix(data, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "decode string")
	}
	length := len(bytecode)
	if length >= swarmMetadataLength &&
		strings.Contains(string(bytecode[length-swarmMetadataLength:]), "bzzr") {
		length -= swarmMetadataLength
	}
	for address := 0; address < length; {
		op := vm.OpCode(bytecode[address])
		if opcode.Name(op) == "INVALID" {
			instructions = append(instructions, EvmInstruction{
				Address: address,
				OPCode:  vm.INVALID,
			})
			address++
			continue
		}
		currentInstruction := EvmInstruction{
			Address:  address,
			OPCode:   op,
			Argument: getPUSHArguments(op, bytecode, address),
		}
		instructions = append(instructions, currentInstruction)
		address += 1 + opcode.PushSize(op)
	}
	return instructions, nil
}

// getPUSHArguments 获取PUSH指令的参数
// PUSH1 0x80
// PUSH21 0x11B464736F6C634300081100330000000000000000
// 字节码被截断时，缺失的部分补0
func getPUSHArguments(op vm.OpCode, bytecode []byte, address int) []byte {
	n := opcode.PushSize(op)
	if n == 0 {
		return nil
	}
	arguments := make([]byte, n)
	end := address + 1 + n
	if end > len(bytecode) {
		end = len(bytecode)
	}
	copy(arguments, bytecode[address+1:end])
	return arguments
}
