// Package strategy 实现状态处理的策略
package strategy

import (
	"math/rand"

	"github.com/pkg/errors"

	"github.com/Notation/gscanner/internal/ethereum/state"
)

var ErrEmpty = errors.New("state queue is empty")

type Strategy interface {
	Size() int
	HasNext() bool
	Pop() (*state.GlobalState, error)
	Push(...*state.GlobalState) error
}

// Names 支持的策略名
var Names = []string{"dfs", "bfs", "naive-random", "weighted-random"}

// New 根据名字创建策略，seed用于随机策略
func New(name string, seed int64) (Strategy, error) {
	switch name {
	case "dfs":
		return NewDFS(), nil
	case "bfs":
		return NewBFS(), nil
	case "naive-random":
		return NewNaiveRandom(rand.New(rand.NewSource(seed))), nil
	case "weighted-random":
		return NewWeightedRandom(rand.New(rand.NewSource(seed))), nil
	}
	return nil, errors.Errorf("invalid strategy %q, use one of dfs, bfs, naive-random, weighted-random", name)
}
