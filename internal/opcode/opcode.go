// Package opcode 描述EVM指令的栈效果
// 指令名称沿用 go-ethereum core/vm 的定义
package opcode

import (
	"strings"

	"github.com/ethereum/go-ethereum/core/vm"
)

// StackEffect 指令执行时出栈/入栈的元素数量
type StackEffect struct {
	Pops   int
	Pushes int
}

var effects = map[vm.OpCode]StackEffect{
	vm.STOP:       {0, 0},
	vm.ADD:        {2, 1},
	vm.MUL:        {2, 1},
	vm.SUB:        {2, 1},
	vm.DIV:        {2, 1},
	vm.SDIV:       {2, 1},
	vm.MOD:        {2, 1},
	vm.SMOD:       {2, 1},
	vm.ADDMOD:     {3, 1},
	vm.MULMOD:     {3, 1},
	vm.EXP:        {2, 1},
	vm.SIGNEXTEND: {2, 1},

	vm.LT:     {2, 1},
	vm.GT:     {2, 1},
	vm.SLT:    {2, 1},
	vm.SGT:    {2, 1},
	vm.EQ:     {2, 1},
	vm.ISZERO: {1, 1},
	vm.AND:    {2, 1},
	vm.OR:     {2, 1},
	vm.XOR:    {2, 1},
	vm.NOT:    {1, 1},
	vm.BYTE:   {2, 1},
	vm.SHL:    {2, 1},
	vm.SHR:    {2, 1},
	vm.SAR:    {2, 1},

	vm.OpCode(0x20): {2, 1}, // KECCAK256

	vm.ADDRESS:        {0, 1},
	vm.BALANCE:        {1, 1},
	vm.ORIGIN:         {0, 1},
	vm.CALLER:         {0, 1},
	vm.CALLVALUE:      {0, 1},
	vm.CALLDATALOAD:   {1, 1},
	vm.CALLDATASIZE:   {0, 1},
	vm.CALLDATACOPY:   {3, 0},
	vm.CODESIZE:       {0, 1},
	vm.CODECOPY:       {3, 0},
	vm.GASPRICE:       {0, 1},
	vm.EXTCODESIZE:    {1, 1},
	vm.EXTCODECOPY:    {4, 0},
	vm.RETURNDATASIZE: {0, 1},
	vm.RETURNDATACOPY: {3, 0},
	vm.EXTCODEHASH:    {1, 1},

	vm.BLOCKHASH:     {1, 1},
	vm.COINBASE:      {0, 1},
	vm.TIMESTAMP:     {0, 1},
	vm.NUMBER:        {0, 1},
	vm.OpCode(0x44):  {0, 1}, // DIFFICULTY / PREVRANDAO
	vm.GASLIMIT:      {0, 1},
	vm.CHAINID:       {0, 1},
	vm.SELFBALANCE:   {0, 1},
	vm.BASEFEE:       {0, 1},
	vm.POP:           {1, 0},
	vm.MLOAD:         {1, 1},
	vm.MSTORE:        {2, 0},
	vm.MSTORE8:       {2, 0},
	vm.SLOAD:         {1, 1},
	vm.SSTORE:        {2, 0},
	vm.JUMP:          {1, 0},
	vm.JUMPI:         {2, 0},
	vm.PC:            {0, 1},
	vm.MSIZE:         {0, 1},
	vm.GAS:           {0, 1},
	vm.JUMPDEST:      {0, 0},
	vm.OpCode(0x5f):  {0, 1}, // PUSH0
	vm.LOG0:          {2, 0},
	vm.LOG1:          {3, 0},
	vm.LOG2:          {4, 0},
	vm.LOG3:          {5, 0},
	vm.LOG4:          {6, 0},
	vm.CREATE:        {3, 1},
	vm.CALL:          {7, 1},
	vm.CALLCODE:      {7, 1},
	vm.RETURN:        {2, 0},
	vm.DELEGATECALL:  {6, 1},
	vm.CREATE2:       {4, 1},
	vm.STATICCALL:    {6, 1},
	vm.REVERT:        {2, 0},
	vm.INVALID:       {0, 0},
	vm.SELFDESTRUCT:  {1, 0},
}

func init() {
	for i := 0; i < 32; i++ {
		effects[vm.PUSH1+vm.OpCode(i)] = StackEffect{0, 1}
	}
	// DUPn 读取第n个元素并复制到栈顶，SWAPn 需要n+1个元素
	for i := 0; i < 16; i++ {
		effects[vm.DUP1+vm.OpCode(i)] = StackEffect{i + 1, i + 2}
		effects[vm.SWAP1+vm.OpCode(i)] = StackEffect{i + 2, i + 2}
	}
}

// Effect 返回指令的栈效果，未定义的指令返回false
func Effect(op vm.OpCode) (StackEffect, bool) {
	e, ok := effects[op]
	return e, ok
}

// Name 返回指令名称，未定义的字节统一命名为INVALID
func Name(op vm.OpCode) string {
	if _, ok := effects[op]; !ok {
		return "INVALID"
	}
	name := op.String()
	if strings.HasPrefix(name, "opcode ") {
		return "INVALID"
	}
	return name
}

// PushSize 返回PUSHn指令的参数字节数，其他指令为0
func PushSize(op vm.OpCode) int {
	if op >= vm.PUSH1 && op <= vm.PUSH32 {
		return int(op-vm.PUSH1) + 1
	}
	return 0
}

// IsCall 是否为外部调用指令
func IsCall(op vm.OpCode) bool {
	switch op {
	case vm.CALL, vm.CALLCODE, vm.DELEGATECALL, vm.STATICCALL:
		return true
	}
	return false
}

// IsTerminal 执行后当前交易结束
func IsTerminal(op vm.OpCode) bool {
	switch op {
	case vm.STOP, vm.RETURN, vm.REVERT, vm.INVALID, vm.SELFDESTRUCT:
		return true
	}
	return false
}
