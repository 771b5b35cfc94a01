package strategy

import (
	"github.com/Notation/gscanner/internal/ethereum/state"
)

// DFS 深度优先搜索策略
type DFS struct {
	states []*state.GlobalState
}

func NewDFS() *DFS {
	return &DFS{
		states: make([]*state.GlobalState, 0),
	}
}

func (dfs *DFS) Size() int {
	return len(dfs.states)
}

func (dfs *DFS) HasNext() bool {
	return len(dfs.states) > 0
}

func (dfs *DFS) Pop() (*state.GlobalState, error) {
	if len(dfs.states) <= 0 {
		return nil, ErrEmpty
	}
	gs := dfs.states[len(dfs.states)-1]
	dfs.states = dfs.states[:len(dfs.states)-1]
	return gs, nil
}

// Push 后继状态逆序入栈，保证第一个后继最先被处理
func (dfs *DFS) Push(globalStates ...*state.GlobalState) error {
	for i := len(globalStates) - 1; i >= 0; i-- {
		dfs.states = append(dfs.states, globalStates[i])
	}
	return nil
}

// BFS 广度优先搜索策略
type BFS struct {
	states []*state.GlobalState
}

func NewBFS() *BFS {
	return &BFS{}
}

func (bfs *BFS) Size() int {
	return len(bfs.states)
}

func (bfs *BFS) HasNext() bool {
	return len(bfs.states) > 0
}

func (bfs *BFS) Pop() (*state.GlobalState, error) {
	if len(bfs.states) == 0 {
		return nil, ErrEmpty
	}
	gs := bfs.states[0]
	bfs.states[0] = nil
	bfs.states = bfs.states[1:]
	return gs, nil
}

func (bfs *BFS) Push(globalStates ...*state.GlobalState) error {
	bfs.states = append(bfs.states, globalStates...)
	return nil
}
