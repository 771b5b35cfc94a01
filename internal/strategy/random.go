package strategy

import (
	"math/rand"

	"github.com/Notation/gscanner/internal/ethereum/state"
)

// NaiveRandom 等概率随机选取状态
type NaiveRandom struct {
	states []*state.GlobalState
	rnd    *rand.Rand
}

func NewNaiveRandom(rnd *rand.Rand) *NaiveRandom {
	return &NaiveRandom{rnd: rnd}
}

func (s *NaiveRandom) Size() int {
	return len(s.states)
}

func (s *NaiveRandom) HasNext() bool {
	return len(s.states) > 0
}

func (s *NaiveRandom) Pop() (*state.GlobalState, error) {
	if len(s.states) == 0 {
		return nil, ErrEmpty
	}
	return s.take(s.rnd.Intn(len(s.states))), nil
}

func (s *NaiveRandom) Push(globalStates ...*state.GlobalState) error {
	s.states = append(s.states, globalStates...)
	return nil
}

func (s *NaiveRandom) take(i int) *state.GlobalState {
	last := len(s.states) - 1
	gs := s.states[i]
	s.states[i] = s.states[last]
	s.states[last] = nil
	s.states = s.states[:last]
	return gs
}

// WeightedRandom 按 1/(depth+1) 的权重随机选取，偏向较浅的状态
type WeightedRandom struct {
	NaiveRandom
}

func NewWeightedRandom(rnd *rand.Rand) *WeightedRandom {
	return &WeightedRandom{NaiveRandom{rnd: rnd}}
}

func (s *WeightedRandom) Pop() (*state.GlobalState, error) {
	if len(s.states) == 0 {
		return nil, ErrEmpty
	}
	weights := make([]float64, len(s.states))
	var total float64
	for i, gs := range s.states {
		weights[i] = 1 / float64(gs.MachineState.Depth()+1)
		total += weights[i]
	}
	target := s.rnd.Float64() * total
	for i, w := range weights {
		if target < w {
			return s.take(i), nil
		}
		target -= w
	}
	return s.take(len(s.states) - 1), nil
}
