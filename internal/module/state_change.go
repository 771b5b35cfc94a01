package module

import (
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Notation/gscanner/internal/ethereum/state"
	"github.com/Notation/gscanner/internal/report"
)

// 低于该gas的调用无法重入
const callStipend = 2300

type externalCall struct {
	address     int
	userDefined bool // 被调用地址可由调用者控制
}

type stateChangeCallsAnnotation struct {
	calls []externalCall
}

func (a *stateChangeCallsAnnotation) PersistOverCalls() bool {
	return false
}

func (a *stateChangeCallsAnnotation) Clone() state.Annotation {
	return &stateChangeCallsAnnotation{calls: append([]externalCall(nil), a.calls...)}
}

// StateChangeAfterCall 外部调用之后写存储，可能被重入
type StateChangeAfterCall struct {
	*BaseModule
}

func NewStateChangeAfterCall() *StateChangeAfterCall {
	m := &StateChangeAfterCall{
		BaseModule: newBaseModule("StateChangeAfterCall", "107", report.SeverityMedium),
	}
	m.preHooks = []vm.OpCode{vm.CALL, vm.DELEGATECALL, vm.CALLCODE, vm.SSTORE}
	return m
}

func (m *StateChangeAfterCall) Execute(globalState *state.GlobalState) ([]*report.Issue, error) {
	log.Debug("Entering StateChangeAfterCall")
	defer log.Debug("Exiting StateChangeAfterCall")

	instruction, err := globalState.GetCurrentInstruction()
	if err != nil {
		return nil, errors.Wrap(err, "GetCurrentInstruction")
	}
	var anno *stateChangeCallsAnnotation
	for _, a := range globalState.GetAnnotations() {
		if found, ok := a.(*stateChangeCallsAnnotation); ok {
			anno = found
			break
		}
	}

	if instruction.OPCode != vm.SSTORE {
		stack := globalState.MachineState.Stack()
		gas, err := stack.Peek(0)
		if err != nil {
			return nil, errors.Wrap(err, "Peek")
		}
		to, err := stack.Peek(1)
		if err != nil {
			return nil, errors.Wrap(err, "Peek")
		}
		if g, ok := gas.Uint64(); ok && g <= callStipend {
			return nil, nil
		}
		userDefined := to.HasTaint(state.TaintUserInput)
		if !to.IsSymbolic() && !userDefined {
			return nil, nil
		}
		if anno == nil {
			anno = &stateChangeCallsAnnotation{}
			globalState.AddAnnotation(anno)
		}
		anno.calls = append(anno.calls, externalCall{address: instruction.Address, userDefined: userDefined})
		return nil, nil
	}

	if anno == nil || len(anno.calls) == 0 {
		return nil, nil
	}
	target := "a fixed address"
	for _, call := range anno.calls {
		if call.userDefined {
			target = "a user-defined address"
			break
		}
	}
	issue := m.newIssue(globalState, instruction.Address,
		"State access after external call",
		"Write to persistent state following external call",
		"The contract account state is accessed after an external call to "+target+". "+
			"To prevent reentrancy issues, consider accessing the state only before the call, especially if the "+
			"callee is untrusted. Alternatively, a reentrancy lock can be used to prevent untrusted callees from "+
			"re-entering the contract in an intermediate state.")
	if issue == nil {
		return nil, nil
	}
	return []*report.Issue{issue}, nil
}
