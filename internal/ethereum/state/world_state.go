package state

import (
	"sort"
	"strings"

	"github.com/holiman/uint256"
)

// ChainLoader 按需从链上读取数据
type ChainLoader interface {
	LoadStorage(address string, slot *uint256.Int) (*uint256.Int, error)
	LoadCode(address string) (string, error)
}

// WorldState 交易之间保留的状态：被分析合约的存储与动态加载的代码
type WorldState struct {
	storage map[string]*Value // 具体key的hex -> 值
	// 写入过符号key之后，未知key的读取结果不再视为0
	symbolicWrite bool
	loadedCode    map[string]string
}

func NewWorldState() *WorldState {
	return &WorldState{
		storage:    make(map[string]*Value),
		loadedCode: make(map[string]string),
	}
}

func (ws *WorldState) Clone() *WorldState {
	newState := &WorldState{
		storage:       make(map[string]*Value, len(ws.storage)),
		symbolicWrite: ws.symbolicWrite,
		loadedCode:    make(map[string]string, len(ws.loadedCode)),
	}
	for k, v := range ws.storage {
		newState.storage[k] = v
	}
	for k, v := range ws.loadedCode {
		newState.loadedCode[k] = v
	}
	return newState
}

// SLoad 读取存储，found为false表示该槽未被本次分析写入过
func (ws *WorldState) SLoad(key *Value) (value *Value, found bool) {
	if key.IsSymbolic() {
		return nil, false
	}
	value, found = ws.storage[key.word.Hex()]
	return value, found
}

func (ws *WorldState) SStore(key, value *Value) {
	if key.IsSymbolic() {
		ws.symbolicWrite = true
		return
	}
	ws.storage[key.word.Hex()] = value
}

func (ws *WorldState) SymbolicWrite() bool {
	return ws.symbolicWrite
}

func (ws *WorldState) AddLoadedCode(address, code string) {
	ws.loadedCode[address] = code
}

// LoadedCode 动态加载过的外部合约
func (ws *WorldState) LoadedCode() map[string]string {
	return ws.loadedCode
}

// Fingerprint 用于合并相同的世界状态
func (ws *WorldState) Fingerprint() string {
	keys := make([]string, 0, len(ws.storage))
	for k := range ws.storage {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var builder strings.Builder
	for _, k := range keys {
		builder.WriteString(k)
		builder.WriteString("=")
		builder.WriteString(ws.storage[k].String())
		builder.WriteString(";")
	}
	if ws.symbolicWrite {
		builder.WriteString("*")
	}
	return builder.String()
}
