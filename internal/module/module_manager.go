package module

import (
	"github.com/ethereum/go-ethereum/core/vm"
	log "github.com/sirupsen/logrus"

	"github.com/Notation/gscanner/internal/ethereum/state"
	"github.com/Notation/gscanner/internal/report"
)

type Hook func(*state.GlobalState) ([]*report.Issue, error)

type ModuleManager struct {
	Modules   []DetectionModule
	PreHooks  map[vm.OpCode][]Hook
	PostHooks map[vm.OpCode][]Hook
}

func NewModuleManager() *ModuleManager {
	return &ModuleManager{
		Modules:   make([]DetectionModule, 0),
		PreHooks:  make(map[vm.OpCode][]Hook),
		PostHooks: make(map[vm.OpCode][]Hook),
	}
}

func (mm *ModuleManager) AddModule(dm DetectionModule) {
	mm.Modules = append(mm.Modules, dm)
	for _, op := range dm.GetPreHooks() {
		mm.PreHooks[op] = append(mm.PreHooks[op], dm.Execute)
	}
	for _, op := range dm.GetPostHooks() {
		mm.PostHooks[op] = append(mm.PostHooks[op], dm.ExecutePost)
	}
}

// NotFoundError 模块名不存在
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return "Invalid detection module: " + e.Name
}

// AllModules 全部检测模块，每次调用返回新的实例
func AllModules() []DetectionModule {
	return []DetectionModule{
		NewAccidentallyKillable(),
		NewArbitraryJump(),
		NewStateChangeAfterCall(),
		NewTxOrigin(),
		NewUncheckedRetval(),
	}
}

// Load 按名字加载模块，名字区分大小写，为空时加载全部
func Load(names []string) (*ModuleManager, error) {
	var (
		mm      = NewModuleManager()
		modules = AllModules()
		byName  = make(map[string]DetectionModule, len(modules))
	)
	for _, m := range modules {
		byName[m.Name()] = m
	}
	if len(names) == 0 {
		for _, m := range modules {
			mm.AddModule(m)
		}
		return mm, nil
	}
	for _, name := range names {
		m, ok := byName[name]
		if !ok {
			return nil, &NotFoundError{Name: name}
		}
		mm.AddModule(m)
	}
	return mm, nil
}

func runHooks(hooks []Hook, globalState *state.GlobalState) {
	for _, hook := range hooks {
		if _, err := hook(globalState); err != nil {
			log.Debugf("hook: %v", err)
		}
	}
}

// ExecutePreHooks 执行op的前置hook，op为即将执行的指令
func (mm *ModuleManager) ExecutePreHooks(op vm.OpCode, globalState *state.GlobalState) {
	runHooks(mm.PreHooks[op], globalState)
}

// ExecutePostHooks 对op的每个后继状态执行后置hook
func (mm *ModuleManager) ExecutePostHooks(op vm.OpCode, globalStates []*state.GlobalState) {
	hooks := mm.PostHooks[op]
	if len(hooks) == 0 {
		return
	}
	for _, gs := range globalStates {
		runHooks(hooks, gs)
	}
}

func (mm *ModuleManager) RetrieveIssues() []*report.Issue {
	var result []*report.Issue
	for _, m := range mm.Modules {
		result = append(result, m.GetIssues()...)
	}
	return result
}

func (mm *ModuleManager) Reset() {
	for _, m := range mm.Modules {
		m.Reset()
	}
}
