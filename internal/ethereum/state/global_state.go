package state

import (
	"encoding/hex"
	"fmt"

	"github.com/Notation/gscanner/internal/disassembler"
)

// Annotation 检测模块挂在状态上的数据
type Annotation interface {
	// PersistOverCalls 为true时在下一笔交易中保留
	PersistOverCalls() bool
	Clone() Annotation
}

// Environment 一笔交易的执行环境，同一交易的所有状态共享
type Environment struct {
	Contract string // 合约名
	Address  string // 合约地址
	Code     *disassembler.Disassembly
	Creation bool // 创建交易
	TxIndex  int  // 0为创建交易，消息调用从1开始
	Loader   ChainLoader
	// OnChain 为true时未写入过的存储槽从Loader读取
	OnChain bool
	// FreshStorage 合约在本次分析中创建，未写入过的存储槽为0
	FreshStorage bool

	codeBytes []byte
}

// CodeBytes 当前执行代码的字节
func (env *Environment) CodeBytes() []byte {
	if env.codeBytes == nil {
		data, err := hex.DecodeString(env.Code.GetBytecode())
		if err != nil {
			data = []byte{}
		}
		env.codeBytes = data
	}
	return env.codeBytes
}

type GlobalState struct {
	Environment  *Environment
	MachineState *MachineState
	WorldState   *WorldState
	Annotations  []Annotation

	Guards         Taint       // 路径上JUMPI条件的污点
	Visits         map[int]int // JUMPDEST地址 -> 经过次数
	Function       string      // 当前所在的函数
	Node           string      // 当前基本块
	StorageWritten bool
	ReturnData     []byte // RETURN的具体数据
	Reverted       bool
}

func NewGlobalState(env *Environment, worldState *WorldState, annotations ...Annotation) *GlobalState {
	return &GlobalState{
		Environment:  env,
		MachineState: NewMachineState(),
		WorldState:   worldState,
		Annotations:  annotations,
		Visits:       make(map[int]int),
		Function:     "fallback",
	}
}

func (gs *GlobalState) Clone() *GlobalState {
	newState := &GlobalState{
		Environment:    gs.Environment,
		MachineState:   gs.MachineState.Clone(),
		WorldState:     gs.WorldState.Clone(),
		Annotations:    make([]Annotation, len(gs.Annotations)),
		Guards:         gs.Guards,
		Visits:         make(map[int]int, len(gs.Visits)),
		Function:       gs.Function,
		Node:           gs.Node,
		StorageWritten: gs.StorageWritten,
		Reverted:       gs.Reverted,
	}
	for i, annotation := range gs.Annotations {
		newState.Annotations[i] = annotation.Clone()
	}
	for k, v := range gs.Visits {
		newState.Visits[k] = v
	}
	if gs.ReturnData != nil {
		newState.ReturnData = append([]byte(nil), gs.ReturnData...)
	}
	return newState
}

func (gs *GlobalState) GetCurrentInstruction() (*disassembler.EvmInstruction, error) {
	instructions := gs.Environment.Code.GetInstructions()
	pc := gs.MachineState.GetPC()
	if pc < 0 || pc >= len(instructions) {
		return nil, fmt.Errorf("pc %d out of bound", pc)
	}
	return &instructions[pc], nil
}

func (gs *GlobalState) AddAnnotation(annotation Annotation) {
	gs.Annotations = append(gs.Annotations, annotation)
}

func (gs *GlobalState) GetAnnotations() []Annotation {
	return gs.Annotations
}

// PersistentAnnotations 需要带入下一笔交易的注解
func (gs *GlobalState) PersistentAnnotations() []Annotation {
	var result []Annotation
	for _, annotation := range gs.Annotations {
		if annotation.PersistOverCalls() {
			result = append(result, annotation.Clone())
		}
	}
	return result
}
