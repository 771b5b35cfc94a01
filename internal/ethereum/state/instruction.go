package state

import (
	"encoding/hex"

	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Notation/gscanner/internal/opcode"
	"github.com/Notation/gscanner/internal/util"
)

const (
	opKeccak256 = vm.OpCode(0x20)
	opPush0     = vm.OpCode(0x5f)
)

// Result 单条指令的执行结果
type Result struct {
	States []*GlobalState // 后继状态
	End    *GlobalState   // 交易结束时的状态，Reverted表示回滚
}

func boolWord(b bool) *uint256.Int {
	if b {
		return uint256.NewInt(1)
	}
	return new(uint256.Int)
}

func shiftAmount(shift *uint256.Int) (uint, bool) {
	if !shift.LtUint64(256) {
		return 0, false
	}
	return uint(shift.Uint64()), true
}

// 参数顺序与出栈顺序一致，x为原栈顶
var binaryOps = map[vm.OpCode]func(x, y *uint256.Int) *uint256.Int{
	vm.ADD:  func(x, y *uint256.Int) *uint256.Int { return new(uint256.Int).Add(x, y) },
	vm.MUL:  func(x, y *uint256.Int) *uint256.Int { return new(uint256.Int).Mul(x, y) },
	vm.SUB:  func(x, y *uint256.Int) *uint256.Int { return new(uint256.Int).Sub(x, y) },
	vm.DIV:  func(x, y *uint256.Int) *uint256.Int { return new(uint256.Int).Div(x, y) },
	vm.SDIV: func(x, y *uint256.Int) *uint256.Int { return new(uint256.Int).SDiv(x, y) },
	vm.MOD:  func(x, y *uint256.Int) *uint256.Int { return new(uint256.Int).Mod(x, y) },
	vm.SMOD: func(x, y *uint256.Int) *uint256.Int { return new(uint256.Int).SMod(x, y) },
	vm.EXP:  func(x, y *uint256.Int) *uint256.Int { return new(uint256.Int).Exp(x, y) },
	vm.SIGNEXTEND: func(x, y *uint256.Int) *uint256.Int {
		return new(uint256.Int).ExtendSign(y, x)
	},
	vm.LT:  func(x, y *uint256.Int) *uint256.Int { return boolWord(x.Lt(y)) },
	vm.GT:  func(x, y *uint256.Int) *uint256.Int { return boolWord(x.Gt(y)) },
	vm.SLT: func(x, y *uint256.Int) *uint256.Int { return boolWord(x.Slt(y)) },
	vm.SGT: func(x, y *uint256.Int) *uint256.Int { return boolWord(x.Sgt(y)) },
	vm.EQ:  func(x, y *uint256.Int) *uint256.Int { return boolWord(x.Eq(y)) },
	vm.AND: func(x, y *uint256.Int) *uint256.Int { return new(uint256.Int).And(x, y) },
	vm.OR:  func(x, y *uint256.Int) *uint256.Int { return new(uint256.Int).Or(x, y) },
	vm.XOR: func(x, y *uint256.Int) *uint256.Int { return new(uint256.Int).Xor(x, y) },
	vm.BYTE: func(x, y *uint256.Int) *uint256.Int {
		return y.Clone().Byte(x)
	},
	vm.SHL: func(x, y *uint256.Int) *uint256.Int {
		if n, ok := shiftAmount(x); ok {
			return new(uint256.Int).Lsh(y, n)
		}
		return new(uint256.Int)
	},
	vm.SHR: func(x, y *uint256.Int) *uint256.Int {
		if n, ok := shiftAmount(x); ok {
			return new(uint256.Int).Rsh(y, n)
		}
		return new(uint256.Int)
	},
	vm.SAR: func(x, y *uint256.Int) *uint256.Int {
		if n, ok := shiftAmount(x); ok {
			return new(uint256.Int).SRsh(y, n)
		}
		if y.Sign() >= 0 {
			return new(uint256.Int)
		}
		return new(uint256.Int).SetAllOne()
	},
}

var unaryOps = map[vm.OpCode]func(x *uint256.Int) *uint256.Int{
	vm.ISZERO: func(x *uint256.Int) *uint256.Int { return boolWord(x.IsZero()) },
	vm.NOT:    func(x *uint256.Int) *uint256.Int { return new(uint256.Int).Not(x) },
}

var ternaryOps = map[vm.OpCode]func(x, y, m *uint256.Int) *uint256.Int{
	vm.ADDMOD: func(x, y, m *uint256.Int) *uint256.Int { return new(uint256.Int).AddMod(x, y, m) },
	vm.MULMOD: func(x, y, m *uint256.Int) *uint256.Int { return new(uint256.Int).MulMod(x, y, m) },
}

// 只产生环境相关符号值的指令
var environmentOps = map[vm.OpCode]Taint{
	vm.ORIGIN:         TaintOrigin,
	vm.CALLER:         TaintCaller,
	vm.CALLVALUE:      TaintCallValue,
	vm.CALLDATALOAD:   TaintCalldata,
	vm.CALLDATASIZE:   TaintCalldata,
	vm.BALANCE:        TaintEnvironment,
	vm.GASPRICE:       TaintEnvironment,
	vm.EXTCODESIZE:    TaintEnvironment,
	vm.EXTCODEHASH:    TaintEnvironment,
	vm.RETURNDATASIZE: TaintCallRetval,
	vm.BLOCKHASH:      TaintEnvironment,
	vm.COINBASE:       TaintEnvironment,
	vm.TIMESTAMP:      TaintEnvironment,
	vm.NUMBER:         TaintEnvironment,
	vm.OpCode(0x44):   TaintEnvironment,
	vm.GASLIMIT:       TaintEnvironment,
	vm.CHAINID:        TaintEnvironment,
	vm.SELFBALANCE:    TaintEnvironment,
	vm.BASEFEE:        TaintEnvironment,
	vm.GAS:            TaintEnvironment,
	vm.CREATE:         TaintEnvironment,
	vm.CREATE2:        TaintEnvironment,
}

// memoryRange 具体且不超过MemoryLimit的内存区间
func memoryRange(offset, size *Value) (uint64, uint64, bool) {
	off, ok1 := offset.Uint64()
	n, ok2 := size.Uint64()
	if !ok1 || !ok2 || off > MemoryLimit || n > MemoryLimit {
		return 0, 0, false
	}
	return off, n, true
}

// AddressHex 将具体值格式化为20字节地址
func AddressHex(v *Value) (string, bool) {
	if v.IsSymbolic() {
		return "", false
	}
	address := v.word.Bytes20()
	return "0x" + hex.EncodeToString(address[:]), true
}

// Evaluate 执行当前指令，gs本身不会被修改
func Evaluate(gs *GlobalState) (*Result, error) {
	instruction, err := gs.GetCurrentInstruction()
	if err != nil {
		// 代码末尾之后等同STOP
		return &Result{End: gs.Clone()}, nil
	}
	var (
		next   = gs.Clone()
		stack  = next.MachineState.stack
		memory = next.MachineState.memory
		env    = next.Environment
		op     = instruction.OPCode
	)
	pop := func(n int) ([]*Value, error) {
		values, err := stack.PopN(n)
		if err != nil {
			return nil, errors.Wrapf(err, "%s at %d", opcode.Name(op), instruction.Address)
		}
		return values, nil
	}
	push := func(v *Value) error {
		if err := stack.Push(v); err != nil {
			return errors.Wrapf(err, "%s at %d", opcode.Name(op), instruction.Address)
		}
		return nil
	}
	advance := func() (*Result, error) {
		next.MachineState.IncreasePC()
		return &Result{States: []*GlobalState{next}}, nil
	}

	switch {
	case op >= vm.PUSH1 && op <= vm.PUSH32:
		if err := push(NewConcrete(new(uint256.Int).SetBytes(instruction.Argument))); err != nil {
			return nil, err
		}
		return advance()
	case op == opPush0:
		if err := push(NewUint64(0)); err != nil {
			return nil, err
		}
		return advance()
	case op >= vm.DUP1 && op <= vm.DUP16:
		if err := stack.Dup(int(op-vm.DUP1) + 1); err != nil {
			return nil, errors.Wrapf(err, "%s at %d", opcode.Name(op), instruction.Address)
		}
		return advance()
	case op >= vm.SWAP1 && op <= vm.SWAP16:
		if err := stack.Swap(int(op-vm.SWAP1) + 1); err != nil {
			return nil, errors.Wrapf(err, "%s at %d", opcode.Name(op), instruction.Address)
		}
		return advance()
	case op >= vm.LOG0 && op <= vm.LOG4:
		if _, err := pop(int(op-vm.LOG0) + 2); err != nil {
			return nil, err
		}
		return advance()
	}

	if fn, ok := binaryOps[op]; ok {
		args, err := pop(2)
		if err != nil {
			return nil, err
		}
		var word *uint256.Int
		if !args[0].IsSymbolic() && !args[1].IsSymbolic() {
			word = fn(args[0].word, args[1].word)
		}
		if err := push(derive(word, args...)); err != nil {
			return nil, err
		}
		return advance()
	}
	if fn, ok := unaryOps[op]; ok {
		args, err := pop(1)
		if err != nil {
			return nil, err
		}
		var word *uint256.Int
		if !args[0].IsSymbolic() {
			word = fn(args[0].word)
		}
		if err := push(derive(word, args...)); err != nil {
			return nil, err
		}
		return advance()
	}
	if fn, ok := ternaryOps[op]; ok {
		args, err := pop(3)
		if err != nil {
			return nil, err
		}
		var word *uint256.Int
		if !args[0].IsSymbolic() && !args[1].IsSymbolic() && !args[2].IsSymbolic() {
			word = fn(args[0].word, args[1].word, args[2].word)
		}
		if err := push(derive(word, args...)); err != nil {
			return nil, err
		}
		return advance()
	}
	if taint, ok := environmentOps[op]; ok {
		effect, _ := opcode.Effect(op)
		if _, err := pop(effect.Pops); err != nil {
			return nil, err
		}
		if err := push(NewSymbolic(taint)); err != nil {
			return nil, err
		}
		return advance()
	}

	switch op {
	case vm.STOP:
		return &Result{End: next}, nil
	case vm.INVALID:
		next.Reverted = true
		return &Result{End: next}, nil
	case vm.SELFDESTRUCT:
		if _, err := pop(1); err != nil {
			return nil, err
		}
		return &Result{End: next}, nil
	case vm.RETURN, vm.REVERT:
		args, err := pop(2)
		if err != nil {
			return nil, err
		}
		if off, n, ok := memoryRange(args[0], args[1]); ok {
			if data, ok := memory.ReadBytes(off, n); ok {
				next.ReturnData = data
			}
		}
		next.Reverted = op == vm.REVERT
		return &Result{End: next}, nil

	case vm.POP:
		if _, err := pop(1); err != nil {
			return nil, err
		}
	case vm.JUMPDEST:
	case vm.PC:
		if err := push(NewUint64(uint64(instruction.Address))); err != nil {
			return nil, err
		}
	case vm.MSIZE:
		if err := push(NewUint64(memory.Size())); err != nil {
			return nil, err
		}
	case vm.ADDRESS:
		if err := push(NewConcrete(new(uint256.Int).SetBytes(addressBytes(env.Address)))); err != nil {
			return nil, err
		}
	case vm.CODESIZE:
		if err := push(NewUint64(uint64(len(env.CodeBytes())))); err != nil {
			return nil, err
		}

	case opKeccak256:
		args, err := pop(2)
		if err != nil {
			return nil, err
		}
		result := derive(nil, args...)
		if off, n, ok := memoryRange(args[0], args[1]); ok {
			if data, ok := memory.ReadBytes(off, n); ok {
				result = NewConcrete(new(uint256.Int).SetBytes(crypto.Keccak256(data)))
			} else {
				taint, _ := memory.symbolicOverlap(off, off+n)
				result.taint |= taint
			}
		}
		if err := push(result); err != nil {
			return nil, err
		}

	case vm.MLOAD:
		args, err := pop(1)
		if err != nil {
			return nil, err
		}
		result := derive(nil, args...)
		if off, ok := args[0].Uint64(); ok && off <= MemoryLimit {
			result = memory.ReadWord(off)
		}
		if err := push(result); err != nil {
			return nil, err
		}
	case vm.MSTORE:
		args, err := pop(2)
		if err != nil {
			return nil, err
		}
		if off, ok := args[0].Uint64(); ok && off <= MemoryLimit {
			memory.WriteWord(off, args[1])
		}
	case vm.MSTORE8:
		args, err := pop(2)
		if err != nil {
			return nil, err
		}
		if off, ok := args[0].Uint64(); ok && off <= MemoryLimit {
			if args[1].IsSymbolic() {
				memory.WriteSymbolic(off, 1, args[1].taint)
			} else {
				memory.StoreByte(off, byte(args[1].word.Uint64()))
			}
		}

	case vm.CALLDATACOPY, vm.RETURNDATACOPY:
		args, err := pop(3)
		if err != nil {
			return nil, err
		}
		taint := TaintCalldata
		if op == vm.RETURNDATACOPY {
			taint = TaintCallRetval
		}
		if off, n, ok := memoryRange(args[0], args[2]); ok {
			memory.WriteSymbolic(off, n, taint)
		}
	case vm.EXTCODECOPY:
		args, err := pop(4)
		if err != nil {
			return nil, err
		}
		if off, n, ok := memoryRange(args[1], args[3]); ok {
			memory.WriteSymbolic(off, n, TaintEnvironment)
		}
	case vm.CODECOPY:
		args, err := pop(3)
		if err != nil {
			return nil, err
		}
		dest, n, ok := memoryRange(args[0], args[2])
		if !ok {
			break
		}
		src, ok := args[1].Uint64()
		if !ok {
			memory.WriteSymbolic(dest, n, TaintEnvironment)
			break
		}
		code := env.CodeBytes()
		data := make([]byte, n)
		if src < uint64(len(code)) {
			copy(data, code[src:])
		}
		memory.WriteBytes(dest, data)

	case vm.SLOAD:
		args, err := pop(1)
		if err != nil {
			return nil, err
		}
		if err := push(sload(next, args[0])); err != nil {
			return nil, err
		}
	case vm.SSTORE:
		args, err := pop(2)
		if err != nil {
			return nil, err
		}
		next.WorldState.SStore(args[0], args[1])
		next.StorageWritten = true

	case vm.CALL, vm.CALLCODE, vm.DELEGATECALL, vm.STATICCALL:
		effect, _ := opcode.Effect(op)
		args, err := pop(effect.Pops)
		if err != nil {
			return nil, err
		}
		loadCallee(next, args[1])
		outOffset, outSize := args[effect.Pops-2], args[effect.Pops-1]
		if off, n, ok := memoryRange(outOffset, outSize); ok {
			memory.WriteSymbolic(off, n, TaintCallRetval)
		}
		if err := push(NewCallRetval(instruction.Address)); err != nil {
			return nil, err
		}

	case vm.JUMP:
		args, err := pop(1)
		if err != nil {
			return nil, err
		}
		if !jump(next, args[0]) {
			return &Result{}, nil
		}
		return &Result{States: []*GlobalState{next}}, nil
	case vm.JUMPI:
		args, err := pop(2)
		if err != nil {
			return nil, err
		}
		dest, condition := args[0], args[1]
		if !condition.IsSymbolic() {
			if condition.word.IsZero() {
				return advance()
			}
			if !jump(next, dest) {
				return &Result{}, nil
			}
			return &Result{States: []*GlobalState{next}}, nil
		}
		next.Guards |= condition.taint
		next.MachineState.IncreaseDepth()
		taken := next.Clone()
		next.MachineState.IncreasePC()
		states := []*GlobalState{next}
		if jump(taken, dest) {
			states = append(states, taken)
		}
		return &Result{States: states}, nil

	default:
		// 未单独处理的指令按栈效果压入符号值
		effect, ok := opcode.Effect(op)
		if !ok {
			next.Reverted = true
			return &Result{End: next}, nil
		}
		if _, err := pop(effect.Pops); err != nil {
			return nil, err
		}
		for i := 0; i < effect.Pushes; i++ {
			if err := push(NewSymbolic(TaintEnvironment)); err != nil {
				return nil, err
			}
		}
	}
	return advance()
}

// jump 跳转到dest，dest不是合法的JUMPDEST时返回false
func jump(gs *GlobalState, dest *Value) bool {
	address, ok := dest.Uint64()
	if !ok {
		return false
	}
	index, ok := gs.Environment.Code.JumpDest(int(address))
	if !ok {
		return false
	}
	gs.MachineState.Jump(index)
	gs.Visits[int(address)]++
	if name, ok := gs.Environment.Code.FunctionAt(int(address)); ok {
		gs.Function = name
	}
	return true
}

func sload(gs *GlobalState, key *Value) *Value {
	if value, found := gs.WorldState.SLoad(key); found {
		return &Value{word: value.word, taint: value.taint | TaintStorage, callSite: -1}
	}
	env := gs.Environment
	if key.IsSymbolic() || gs.WorldState.SymbolicWrite() {
		return NewSymbolic(TaintStorage | key.taint)
	}
	if env.FreshStorage {
		return &Value{word: new(uint256.Int), taint: TaintStorage, callSite: -1}
	}
	if env.OnChain && env.Loader != nil {
		value, err := env.Loader.LoadStorage(env.Address, key.Word())
		if err == nil {
			loaded := &Value{word: value, taint: TaintStorage, callSite: -1}
			gs.WorldState.SStore(key, loaded)
			return loaded
		}
		log.Debugf("load storage %s of %s: %v", key, env.Address, err)
	}
	return NewSymbolic(TaintStorage)
}

// loadCallee 动态加载被调用合约的代码
func loadCallee(gs *GlobalState, callee *Value) {
	loader := gs.Environment.Loader
	if loader == nil {
		return
	}
	address, ok := AddressHex(callee)
	if !ok {
		return
	}
	if _, ok := gs.WorldState.loadedCode[address]; ok {
		return
	}
	code, err := loader.LoadCode(address)
	if err != nil {
		log.Debugf("load code of %s: %v", address, err)
		return
	}
	log.Infof("dynamically loaded %d bytes of code from %s", len(code)/2, address)
	gs.WorldState.AddLoadedCode(address, code)
}

func addressBytes(address string) []byte {
	data, err := hex.DecodeString(util.StripHexPrefix(address))
	if err != nil {
		return nil
	}
	return data
}
