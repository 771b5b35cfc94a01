package module

import (
	"github.com/ethereum/go-ethereum/core/vm"

	"github.com/Notation/gscanner/internal/ethereum/state"
	"github.com/Notation/gscanner/internal/report"
)

type BaseModule struct {
	name      string
	swcData   *SWCData    // SWC信息
	severity  string
	preHooks  []vm.OpCode // 在这些指令执行前，执行本模块的hook
	postHooks []vm.OpCode // 在这些指令执行后，对每个后继状态执行本模块的hook
	Issues    []*report.Issue
	reported  map[int]bool // 同一地址只报告一次
}

func newBaseModule(name, swcID, severity string) *BaseModule {
	return &BaseModule{
		name:     name,
		swcData:  SWCDataMap[swcID],
		severity: severity,
		Issues:   make([]*report.Issue, 0),
		reported: make(map[int]bool),
	}
}

func (bm *BaseModule) Name() string {
	return bm.name
}

func (bm *BaseModule) Execute(globalState *state.GlobalState) ([]*report.Issue, error) {
	return nil, nil
}

func (bm *BaseModule) ExecutePost(globalState *state.GlobalState) ([]*report.Issue, error) {
	return nil, nil
}

func (bm *BaseModule) GetPreHooks() []vm.OpCode {
	return bm.preHooks
}

func (bm *BaseModule) GetPostHooks() []vm.OpCode {
	return bm.postHooks
}

func (bm *BaseModule) GetSWCData() *SWCData {
	return bm.swcData
}

func (bm *BaseModule) GetIssues() []*report.Issue {
	return bm.Issues
}

func (bm *BaseModule) Reset() {
	bm.Issues = make([]*report.Issue, 0)
	bm.reported = make(map[int]bool)
}

// newIssue 生成issue并记录，地址已报告过时返回nil
func (bm *BaseModule) newIssue(globalState *state.GlobalState, address int, title, head, tail string) *report.Issue {
	if bm.reported[address] {
		return nil
	}
	bm.reported[address] = true
	issue := &report.Issue{
		Contract:        globalState.Environment.Contract,
		Function:        globalState.Function,
		Address:         address,
		SWCID:           bm.swcData.ID,
		Title:           title,
		Severity:        bm.severity,
		DescriptionHead: head,
		DescriptionTail: tail,
		Creation:        globalState.Environment.Creation,
	}
	bm.Issues = append(bm.Issues, issue)
	return issue
}

type DetectionModule interface {
	Name() string
	Execute(*state.GlobalState) ([]*report.Issue, error)
	ExecutePost(*state.GlobalState) ([]*report.Issue, error)
	GetPreHooks() []vm.OpCode
	GetPostHooks() []vm.OpCode
	GetSWCData() *SWCData
	GetIssues() []*report.Issue
	Reset()
}
