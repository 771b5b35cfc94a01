package module

import (
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Notation/gscanner/internal/ethereum/state"
	"github.com/Notation/gscanner/internal/report"
)

type returnValue struct {
	address int // 调用指令地址
	checked bool
}

// uncheckedRetvalAnnotation 当前交易中外部调用的返回值
type uncheckedRetvalAnnotation struct {
	retvals []returnValue
}

func (a *uncheckedRetvalAnnotation) PersistOverCalls() bool {
	return false
}

func (a *uncheckedRetvalAnnotation) Clone() state.Annotation {
	return &uncheckedRetvalAnnotation{retvals: append([]returnValue(nil), a.retvals...)}
}

func getRetvalAnnotation(globalState *state.GlobalState) *uncheckedRetvalAnnotation {
	for _, ano := range globalState.GetAnnotations() {
		if a, ok := ano.(*uncheckedRetvalAnnotation); ok {
			return a
		}
	}
	a := &uncheckedRetvalAnnotation{}
	globalState.AddAnnotation(a)
	return a
}

type UncheckedRetval struct {
	*BaseModule
}

func NewUncheckedRetval() *UncheckedRetval {
	ur := &UncheckedRetval{
		BaseModule: newBaseModule("UncheckedRetval", "104", report.SeverityMedium),
	}
	ur.preHooks = []vm.OpCode{vm.STOP, vm.RETURN, vm.JUMPI}
	ur.postHooks = []vm.OpCode{vm.CALL, vm.DELEGATECALL, vm.STATICCALL, vm.CALLCODE}
	return ur
}

func (ur *UncheckedRetval) Execute(globalState *state.GlobalState) (issues []*report.Issue, err error) {
	log.Debug("Entering UncheckedRetval")
	defer log.Debug("Exiting UncheckedRetval")

	currentInstruction, err := globalState.GetCurrentInstruction()
	if err != nil {
		return nil, errors.Wrap(err, "GetCurrentInstruction")
	}
	anno := getRetvalAnnotation(globalState)

	if currentInstruction.OPCode == vm.JUMPI {
		condition, err := globalState.MachineState.Stack().Peek(1)
		if err != nil {
			return nil, errors.Wrap(err, "Peek")
		}
		if !condition.HasTaint(state.TaintCallRetval) {
			return nil, nil
		}
		for i := range anno.retvals {
			if anno.retvals[i].address == condition.CallSite() {
				anno.retvals[i].checked = true
			}
		}
		return nil, nil
	}

	for _, retval := range anno.retvals {
		if retval.checked {
			continue
		}
		issue := ur.newIssue(globalState, retval.address,
			"Unchecked return value from external call.",
			"The return value of a message call is not checked.",
			"External calls return a boolean value. If the callee halts with an exception, 'false' is returned and "+
				"execution continues in the caller. The caller should check whether an exception happened and react "+
				"accordingly to avoid unexpected behavior. For example it is often desirable to wrap external calls "+
				"in require() so the transaction is reverted if the call fails.")
		if issue != nil {
			issues = append(issues, issue)
		}
	}
	return issues, nil
}

// ExecutePost 记录调用的返回值
func (ur *UncheckedRetval) ExecutePost(globalState *state.GlobalState) ([]*report.Issue, error) {
	retval, err := globalState.MachineState.StackTop()
	if err != nil {
		return nil, errors.Wrap(err, "StackTop")
	}
	if retval.CallSite() < 0 {
		return nil, nil
	}
	anno := getRetvalAnnotation(globalState)
	anno.retvals = append(anno.retvals, returnValue{address: retval.CallSite()})
	log.Debugf("UncheckedRetval append: address %d", retval.CallSite())
	return nil, nil
}
