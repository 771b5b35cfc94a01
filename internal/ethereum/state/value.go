// Package state 路径探索用的抽象执行状态
// 栈上的值要么是具体的256位整数，要么是带污点的符号值
package state

import (
	"strings"

	"github.com/holiman/uint256"
)

// Taint 值的来源
type Taint uint16

const (
	TaintOrigin Taint = 1 << iota
	TaintCaller
	TaintCallValue
	TaintCalldata
	TaintCallRetval
	TaintStorage
	TaintEnvironment // 区块信息、gas、余额、外部代码等
)

// TaintUserInput 交易发送方可以控制的来源
const TaintUserInput = TaintCaller | TaintOrigin | TaintCallValue | TaintCalldata

var taintNames = []struct {
	taint Taint
	name  string
}{
	{TaintOrigin, "ORIGIN"},
	{TaintCaller, "CALLER"},
	{TaintCallValue, "CALLVALUE"},
	{TaintCalldata, "CALLDATA"},
	{TaintCallRetval, "RETVAL"},
	{TaintStorage, "STORAGE"},
	{TaintEnvironment, "ENV"},
}

func (t Taint) String() string {
	var names []string
	for _, n := range taintNames {
		if t&n.taint != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

// Value 抽象栈元素，不可变
type Value struct {
	word     *uint256.Int // nil表示符号值
	taint    Taint
	callSite int // 产生该值的外部调用地址，-1表示无
}

func NewConcrete(word *uint256.Int) *Value {
	return &Value{word: word, callSite: -1}
}

func NewUint64(v uint64) *Value {
	return NewConcrete(new(uint256.Int).SetUint64(v))
}

func NewSymbolic(taint Taint) *Value {
	return &Value{taint: taint, callSite: -1}
}

// NewCallRetval 外部调用的返回值，address为调用指令地址
func NewCallRetval(address int) *Value {
	return &Value{taint: TaintCallRetval, callSite: address}
}

func (v *Value) IsSymbolic() bool {
	return v.word == nil
}

// Word 具体值的副本，符号值返回nil
func (v *Value) Word() *uint256.Int {
	if v.word == nil {
		return nil
	}
	return v.word.Clone()
}

// Uint64 具体值且不超过uint64时返回true
func (v *Value) Uint64() (uint64, bool) {
	if v.word == nil || !v.word.IsUint64() {
		return 0, false
	}
	return v.word.Uint64(), true
}

func (v *Value) Taint() Taint {
	return v.taint
}

func (v *Value) HasTaint(t Taint) bool {
	return v.taint&t != 0
}

func (v *Value) CallSite() int {
	return v.callSite
}

func (v *Value) String() string {
	if v.word != nil {
		return v.word.Hex()
	}
	if v.taint == 0 {
		return "symbolic"
	}
	return "symbolic(" + v.taint.String() + ")"
}

// derive 由操作数推导结果，污点取并集
func derive(word *uint256.Int, operands ...*Value) *Value {
	result := &Value{word: word, callSite: -1}
	for _, op := range operands {
		result.taint |= op.taint
		if result.callSite < 0 {
			result.callSite = op.callSite
		}
	}
	return result
}
