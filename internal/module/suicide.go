package module

import (
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Notation/gscanner/internal/ethereum/state"
	"github.com/Notation/gscanner/internal/report"
)

type AccidentallyKillable struct {
	*BaseModule
}

func NewAccidentallyKillable() *AccidentallyKillable {
	ak := &AccidentallyKillable{
		BaseModule: newBaseModule("AccidentallyKillable", "106", report.SeverityHigh),
	}
	ak.preHooks = []vm.OpCode{vm.SELFDESTRUCT}
	return ak
}

// Execute 路径上没有对调用者的判断即可执行SELFDESTRUCT时报告
func (ak *AccidentallyKillable) Execute(globalState *state.GlobalState) ([]*report.Issue, error) {
	log.Debug("Entering AccidentallyKillable")
	defer log.Debug("Exiting AccidentallyKillable")

	if globalState.Guards&(state.TaintCaller|state.TaintOrigin) != 0 {
		return nil, nil
	}
	to, err := globalState.MachineState.StackTop()
	if err != nil {
		return nil, errors.Wrap(err, "StackTop")
	}
	currentInstruction, err := globalState.GetCurrentInstruction()
	if err != nil {
		return nil, errors.Wrap(err, "GetCurrentInstruction")
	}

	tail := "Any sender can trigger execution of the SELFDESTRUCT instruction to destroy this " +
		"contract account. Review the transaction trace generated for this issue and make sure that " +
		"appropriate security controls are in place to prevent unrestricted access."
	if to.HasTaint(state.TaintUserInput) {
		tail = "Any sender can trigger execution of the SELFDESTRUCT instruction to destroy this " +
			"contract account and withdraw its balance to an arbitrary address. Review the transaction trace " +
			"generated for this issue and make sure that appropriate security controls are in place to prevent " +
			"unrestricted access."
	}
	issue := ak.newIssue(globalState, currentInstruction.Address,
		"Unprotected Selfdestruct",
		"Any sender can cause the contract to self-destruct.",
		tail)
	if issue == nil {
		return nil, nil
	}
	return []*report.Issue{issue}, nil
}
