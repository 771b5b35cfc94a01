package state

import (
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

const (
	StackLimit = 1024

	// 超出该范围的内存访问按符号值处理
	MemoryLimit = 1 << 20
)

var (
	ErrStackUnderflow = errors.New("stack underflow")
	ErrStackOverflow  = errors.New("stack overflow")
)

type MachineStack struct {
	stack []*Value
}

func NewMachineStack() *MachineStack {
	return &MachineStack{stack: make([]*Value, 0, 16)}
}

func (mstack *MachineStack) Size() int {
	return len(mstack.stack)
}

func (mstack *MachineStack) Push(values ...*Value) error {
	if len(mstack.stack)+len(values) > StackLimit {
		return ErrStackOverflow
	}
	mstack.stack = append(mstack.stack, values...)
	return nil
}

func (mstack *MachineStack) Pop() (*Value, error) {
	if len(mstack.stack) == 0 {
		return nil, ErrStackUnderflow
	}
	top := mstack.stack[len(mstack.stack)-1]
	mstack.stack = mstack.stack[:len(mstack.stack)-1]
	return top, nil
}

// PopN 依次弹出n个元素，result[0]为原栈顶
func (mstack *MachineStack) PopN(n int) ([]*Value, error) {
	if len(mstack.stack) < n {
		return nil, ErrStackUnderflow
	}
	result := make([]*Value, n)
	for i := 0; i < n; i++ {
		result[i] = mstack.stack[len(mstack.stack)-1-i]
	}
	mstack.stack = mstack.stack[:len(mstack.stack)-n]
	return result, nil
}

func (mstack *MachineStack) Top() (*Value, error) {
	return mstack.Peek(0)
}

// Peek 第n个元素，0为栈顶
func (mstack *MachineStack) Peek(n int) (*Value, error) {
	if n < 0 || n >= len(mstack.stack) {
		return nil, ErrStackUnderflow
	}
	return mstack.stack[len(mstack.stack)-1-n], nil
}

// Dup 复制第n个元素到栈顶，n从1开始
func (mstack *MachineStack) Dup(n int) error {
	value, err := mstack.Peek(n - 1)
	if err != nil {
		return err
	}
	return mstack.Push(value)
}

// Swap 交换栈顶与第n+1个元素
func (mstack *MachineStack) Swap(n int) error {
	if n < 1 || n >= len(mstack.stack) {
		return ErrStackUnderflow
	}
	var (
		a = len(mstack.stack) - 1
		b = a - n
	)
	mstack.stack[a], mstack.stack[b] = mstack.stack[b], mstack.stack[a]
	return nil
}

func (mstack *MachineStack) Clone() *MachineStack {
	s := &MachineStack{stack: make([]*Value, len(mstack.stack), cap(mstack.stack))}
	copy(s.stack, mstack.stack)
	return s
}

// Memory 按字节保存具体数据，按字保存MSTORE写入的值
// 未写入的字节为0，被符号字覆盖的区域读出为符号值
type Memory struct {
	bytes map[uint64]byte
	words map[uint64]*Value
	size  uint64
}

func NewMemory() *Memory {
	return &Memory{
		bytes: make(map[uint64]byte),
		words: make(map[uint64]*Value),
	}
}

func (m *Memory) Clone() *Memory {
	newMemory := &Memory{
		bytes: make(map[uint64]byte, len(m.bytes)),
		words: make(map[uint64]*Value, len(m.words)),
		size:  m.size,
	}
	for k, v := range m.bytes {
		newMemory.bytes[k] = v
	}
	for k, v := range m.words {
		newMemory.words[k] = v
	}
	return newMemory
}

// Size 以32字节对齐的已用大小
func (m *Memory) Size() uint64 {
	return m.size
}

func (m *Memory) touch(offset, size uint64) {
	if size == 0 {
		return
	}
	if end := (offset + size + 31) / 32 * 32; end > m.size {
		m.size = end
	}
}

func (m *Memory) dropWords(start, end uint64) {
	for k := range m.words {
		if k+32 > start && k < end {
			delete(m.words, k)
		}
	}
}

// symbolicOverlap 区间内符号字的污点，ok表示存在符号字
func (m *Memory) symbolicOverlap(start, end uint64) (Taint, bool) {
	var (
		taint Taint
		found bool
	)
	for k, v := range m.words {
		if v.IsSymbolic() && k+32 > start && k < end {
			taint |= v.taint
			found = true
		}
	}
	return taint, found
}

func (m *Memory) WriteWord(offset uint64, value *Value) {
	m.dropWords(offset, offset+32)
	m.touch(offset, 32)
	if word := value.Word(); word != nil {
		data := word.Bytes32()
		for i := range data {
			m.bytes[offset+uint64(i)] = data[i]
		}
	} else {
		for i := uint64(0); i < 32; i++ {
			delete(m.bytes, offset+i)
		}
	}
	m.words[offset] = value
}

func (m *Memory) StoreByte(offset uint64, b byte) {
	m.dropWords(offset, offset+1)
	m.touch(offset, 1)
	m.bytes[offset] = b
}

func (m *Memory) WriteBytes(offset uint64, data []byte) {
	end := offset + uint64(len(data))
	m.dropWords(offset, end)
	m.touch(offset, uint64(len(data)))
	for i := range data {
		m.bytes[offset+uint64(i)] = data[i]
	}
}

// WriteSymbolic 将区间标记为带污点的符号数据
func (m *Memory) WriteSymbolic(offset, size uint64, taint Taint) {
	end := offset + size
	m.dropWords(offset, end)
	m.touch(offset, size)
	for i := offset; i < end; i++ {
		delete(m.bytes, i)
	}
	for k := offset; k < end; k += 32 {
		m.words[k] = NewSymbolic(taint)
	}
}

func (m *Memory) ReadWord(offset uint64) *Value {
	m.touch(offset, 32)
	if value, ok := m.words[offset]; ok {
		return value
	}
	if taint, ok := m.symbolicOverlap(offset, offset+32); ok {
		return NewSymbolic(taint)
	}
	var data [32]byte
	for i := range data {
		data[i] = m.bytes[offset+uint64(i)]
	}
	return NewConcrete(new(uint256.Int).SetBytes(data[:]))
}

// ReadBytes 读取具体数据，区间内存在符号值时返回false
func (m *Memory) ReadBytes(offset, size uint64) ([]byte, bool) {
	m.touch(offset, size)
	if _, ok := m.symbolicOverlap(offset, offset+size); ok {
		return nil, false
	}
	data := make([]byte, size)
	for i := range data {
		data[i] = m.bytes[offset+uint64(i)]
	}
	return data, true
}

type MachineState struct {
	pc     int // 指令下标
	depth  int
	stack  *MachineStack
	memory *Memory
}

func NewMachineState() *MachineState {
	return &MachineState{
		stack:  NewMachineStack(),
		memory: NewMemory(),
	}
}

func (ms *MachineState) GetPC() int {
	return ms.pc
}

func (ms *MachineState) IncreasePC() {
	ms.pc++
}

func (ms *MachineState) Jump(index int) {
	ms.pc = index
}

func (ms *MachineState) Depth() int {
	return ms.depth
}

func (ms *MachineState) IncreaseDepth() {
	ms.depth++
}

func (ms *MachineState) Stack() *MachineStack {
	return ms.stack
}

func (ms *MachineState) Memory() *Memory {
	return ms.memory
}

func (ms *MachineState) StackSize() int {
	return ms.stack.Size()
}

func (ms *MachineState) StackTop() (*Value, error) {
	return ms.stack.Top()
}

func (ms *MachineState) Clone() *MachineState {
	return &MachineState{
		pc:     ms.pc,
		depth:  ms.depth,
		stack:  ms.stack.Clone(),
		memory: ms.memory.Clone(),
	}
}
