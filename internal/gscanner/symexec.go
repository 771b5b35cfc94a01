package gscanner

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Notation/gscanner/internal/disassembler"
	"github.com/Notation/gscanner/internal/ethereum/state"
	"github.com/Notation/gscanner/internal/module"
	"github.com/Notation/gscanner/internal/opcode"
	"github.com/Notation/gscanner/internal/solidity"
	"github.com/Notation/gscanner/internal/strategy"
)

// Node 状态空间中的基本块
type Node struct {
	ID       string `json:"id"`
	Contract string `json:"contract"`
	Function string `json:"function"`
	Start    int    `json:"start_addr"`
	Code     string `json:"code"`
}

// Edge 基本块之间的跳转，Condition为符号条件
type Edge struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Condition string `json:"condition,omitempty"`
}

type statespace struct {
	nodes    []*Node
	nodeByID map[string]*Node
	edges    []Edge
	edgeSeen map[Edge]bool
}

func newStatespace() *statespace {
	return &statespace{
		nodeByID: make(map[string]*Node),
		edgeSeen: make(map[Edge]bool),
	}
}

// addNode 以gs所在合约、代码类型及index处的指令地址标识基本块
func (s *statespace) addNode(gs *state.GlobalState, index int) string {
	var (
		env  = gs.Environment
		kind = "runtime"
	)
	if env.Creation {
		kind = "constructor"
	}
	address := env.Code.GetInstructions()[index].Address
	id := fmt.Sprintf("%s:%s:%d", env.Contract, kind, address)
	if _, ok := s.nodeByID[id]; ok {
		return id
	}
	node := &Node{
		ID:       id,
		Contract: env.Contract,
		Function: gs.Function,
		Start:    address,
		Code:     env.Code.BlockEASM(index),
	}
	s.nodes = append(s.nodes, node)
	s.nodeByID[id] = node
	return id
}

func (s *statespace) addEdge(from, to, condition string) {
	if from == "" {
		return
	}
	edge := Edge{From: from, To: to, Condition: condition}
	if s.edgeSeen[edge] {
		return
	}
	s.edgeSeen[edge] = true
	s.edges = append(s.edges, edge)
}

type profileRecord struct {
	count    int
	total    time.Duration
	min, max time.Duration
}

// instructionProfiler 按指令统计执行次数与耗时
type instructionProfiler struct {
	records map[vm.OpCode]*profileRecord
}

func newInstructionProfiler() *instructionProfiler {
	return &instructionProfiler{records: make(map[vm.OpCode]*profileRecord)}
}

func (p *instructionProfiler) record(op vm.OpCode, d time.Duration) {
	r, ok := p.records[op]
	if !ok {
		r = &profileRecord{min: d, max: d}
		p.records[op] = r
	}
	r.count++
	r.total += d
	if d < r.min {
		r.min = d
	}
	if d > r.max {
		r.max = d
	}
}

func (p *instructionProfiler) String() string {
	ops := make([]vm.OpCode, 0, len(p.records))
	var total time.Duration
	for op, r := range p.records {
		ops = append(ops, op)
		total += r.total
	}
	sort.Slice(ops, func(i, j int) bool {
		return p.records[ops[i]].total > p.records[ops[j]].total
	})
	var b strings.Builder
	b.WriteString("Instruction Statistics:\n")
	for _, op := range ops {
		r := p.records[op]
		percent := 0.0
		if total > 0 {
			percent = float64(r.total) * 100 / float64(total)
		}
		fmt.Fprintf(&b, "[%-12s] %8.4f %%,  nr %6d,  total %8.4f s,  avg %8.4f s,  min %8.4f s,  max %8.4f s\n",
			opcode.Name(op), percent, r.count, r.total.Seconds(),
			r.total.Seconds()/float64(r.count), r.min.Seconds(), r.max.Seconds())
	}
	return b.String()
}

// openState 交易结束后可继续调用的状态
type openState struct {
	world       *state.WorldState
	annotations []state.Annotation
}

// symExec 对一个合约执行创建交易及若干轮消息调用
type symExec struct {
	options  Options
	contract *solidity.EVMContract
	address  string
	resolver disassembler.SignatureResolver
	loader   state.ChainLoader
	onChain  bool
	modules  *module.ModuleManager
	space    *statespace
	iprof    *instructionProfiler
}

func (s *symExec) newStrategy() strategy.Strategy {
	strat, err := strategy.New(s.options.Strategy, time.Now().UnixNano())
	if err != nil {
		// 名字在NewAnalyzer中已经校验过
		return strategy.NewBFS()
	}
	return strat
}

func (s *symExec) run(ctx context.Context, txCount int) error {
	var (
		open  []openState
		fresh bool
	)
	if s.contract.CreationCode != "" {
		ends, err := s.create(ctx)
		if err != nil {
			return err
		}
		var code string
		for _, end := range ends {
			if end.Reverted {
				continue
			}
			open = append(open, openState{world: end.WorldState, annotations: end.PersistentAnnotations()})
			if code == "" && len(end.ReturnData) > 0 {
				code = hex.EncodeToString(end.ReturnData)
			}
		}
		if len(open) == 0 {
			log.Warn("No contract was created during the execution of contract creation. " +
				"Increase the resources for creation execution (--max-depth or --create-timeout)")
			return nil
		}
		if code != "" && code != s.contract.Code {
			if err := s.contract.SetRuntimeCode(code, s.resolver); err != nil {
				return errors.Wrap(err, "SetRuntimeCode")
			}
		}
		fresh = true
	} else {
		open = []openState{{world: state.NewWorldState()}}
	}

	runtime := s.contract.Disassembly
	if len(runtime.GetInstructions()) == 0 {
		log.Infof("contract %s has no runtime code", s.contract.Name)
		return nil
	}

	written := true
	for i := 1; i <= txCount; i++ {
		if ctx.Err() != nil {
			log.Info("Hit execution timeout, returning.")
			return nil
		}
		if !s.options.DisableDependencyPruning && !written {
			log.Infof("Skipping message call %d: no storage was written in the previous transaction", i)
			return nil
		}
		log.Infof("Starting message call transaction, iteration: %d, %d initial states", i, len(open))

		initial := make([]*state.GlobalState, 0, len(open))
		for _, o := range dedupe(open) {
			env := &state.Environment{
				Contract:     s.contract.Name,
				Address:      s.address,
				Code:         runtime,
				TxIndex:      i,
				Loader:       s.loader,
				OnChain:      s.onChain,
				FreshStorage: fresh,
			}
			gs := state.NewGlobalState(env, o.world.Clone(), o.annotations...)
			gs.Node = s.space.addNode(gs, 0)
			initial = append(initial, gs)
		}

		written = false
		open = nil
		for _, end := range s.execute(ctx, initial) {
			if end.Reverted {
				continue
			}
			if end.StorageWritten {
				written = true
			}
			open = append(open, openState{world: end.WorldState, annotations: end.PersistentAnnotations()})
		}
		if len(open) == 0 {
			return nil
		}
	}
	return nil
}

func (s *symExec) create(ctx context.Context) ([]*state.GlobalState, error) {
	if s.options.CreateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.options.CreateTimeout)
		defer cancel()
	}
	code := s.contract.CreationDisassembly
	if len(code.GetInstructions()) == 0 {
		return nil, errors.Errorf("contract %s has no creation code", s.contract.Name)
	}
	env := &state.Environment{
		Contract:     s.contract.Name,
		Address:      s.address,
		Code:         code,
		Creation:     true,
		Loader:       s.loader,
		FreshStorage: true,
	}
	gs := state.NewGlobalState(env, state.NewWorldState())
	gs.Function = "constructor"
	gs.Node = s.space.addNode(gs, 0)
	log.Infof("creating contract %s", s.contract.Name)
	return s.execute(ctx, []*state.GlobalState{gs}), nil
}

// dedupe 合并存储相同的状态
func dedupe(open []openState) []openState {
	seen := make(map[string]bool, len(open))
	result := make([]openState, 0, len(open))
	for _, o := range open {
		fp := o.world.Fingerprint()
		if seen[fp] {
			continue
		}
		seen[fp] = true
		result = append(result, o)
	}
	return result
}

// execute 按策略执行全部状态直到结束或超时，返回交易结束时的状态
func (s *symExec) execute(ctx context.Context, initial []*state.GlobalState) []*state.GlobalState {
	var (
		strat = s.newStrategy()
		ends  []*state.GlobalState
	)
	_ = strat.Push(initial...)
	for strat.HasNext() {
		if ctx.Err() != nil {
			log.Infof("Hit timeout, %d states left unexplored", strat.Size())
			break
		}
		gs, err := strat.Pop()
		if err != nil {
			break
		}
		end, next := s.step(gs)
		if end != nil {
			ends = append(ends, end)
		}
		_ = strat.Push(next...)
	}
	return ends
}

func (s *symExec) step(gs *state.GlobalState) (*state.GlobalState, []*state.GlobalState) {
	instruction, err := gs.GetCurrentInstruction()
	if err != nil {
		// 超出代码末尾
		result, _ := state.Evaluate(gs)
		return result.End, nil
	}
	op := instruction.OPCode

	var condition *state.Value
	if op == vm.JUMPI {
		condition, _ = gs.MachineState.Stack().Peek(1)
	}
	s.modules.ExecutePreHooks(op, gs)

	start := time.Now()
	result, err := state.Evaluate(gs)
	if s.iprof != nil {
		s.iprof.record(op, time.Since(start))
	}
	if err != nil {
		log.Debugf("%s: path aborted: %v", s.contract.Name, err)
		return nil, nil
	}
	if result.End != nil {
		return result.End, nil
	}

	next := make([]*state.GlobalState, 0, len(result.States))
	for _, successor := range result.States {
		if s.options.MaxDepth > 0 && successor.MachineState.Depth() > s.options.MaxDepth {
			log.Debugf("%s: max depth reached at %d", s.contract.Name, instruction.Address)
			continue
		}
		if s.exceedsLoopBound(successor) {
			log.Debugf("%s: loop bound reached at %d", s.contract.Name, instruction.Address)
			continue
		}
		s.track(gs, op, successor, condition)
		next = append(next, successor)
	}
	s.modules.ExecutePostHooks(op, next)
	return nil, next
}

func (s *symExec) exceedsLoopBound(gs *state.GlobalState) bool {
	if s.options.LoopBound <= 0 {
		return false
	}
	instruction, err := gs.GetCurrentInstruction()
	if err != nil || instruction.OPCode != vm.JUMPDEST {
		return false
	}
	return gs.Visits[instruction.Address] > s.options.LoopBound
}

// track 后继状态进入新的基本块时记录节点与边
func (s *symExec) track(prev *state.GlobalState, op vm.OpCode, next *state.GlobalState, condition *state.Value) {
	var (
		pc           = next.MachineState.GetPC()
		instructions = next.Environment.Code.GetInstructions()
	)
	if pc >= len(instructions) {
		return
	}
	jumped := pc != prev.MachineState.GetPC()+1
	if !jumped && op != vm.JUMPI && instructions[pc].OPCode != vm.JUMPDEST {
		return
	}
	var label string
	if condition != nil && condition.IsSymbolic() {
		label = condition.String()
		if !jumped {
			label = "!" + label
		}
	}
	id := s.space.addNode(next, pc)
	s.space.addEdge(prev.Node, id, label)
	next.Node = id
}
