package module

import (
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Notation/gscanner/internal/ethereum/state"
	"github.com/Notation/gscanner/internal/report"
)

// 能够影响跳转地址的来源
const jumpControl = state.TaintUserInput | state.TaintStorage | state.TaintCallRetval

type ArbitraryJump struct {
	*BaseModule
}

func NewArbitraryJump() *ArbitraryJump {
	arbitraryJump := &ArbitraryJump{
		BaseModule: newBaseModule("ArbitraryJump", "127", report.SeverityHigh),
	}
	arbitraryJump.preHooks = []vm.OpCode{vm.JUMP, vm.JUMPI}
	return arbitraryJump
}

func (arbitraryJump *ArbitraryJump) Execute(globalState *state.GlobalState) ([]*report.Issue, error) {
	log.Debug("Entering ArbitraryJump")
	defer log.Debug("Exiting ArbitraryJump")

	jumpAddress, err := globalState.MachineState.StackTop()
	if err != nil {
		return nil, errors.Wrap(err, "StackTop")
	}
	if !jumpAddress.IsSymbolic() || !jumpAddress.HasTaint(jumpControl) {
		return nil, nil
	}

	currentInstruction, err := globalState.GetCurrentInstruction()
	if err != nil {
		return nil, errors.Wrap(err, "GetCurrentInstruction")
	}
	issue := arbitraryJump.newIssue(globalState, currentInstruction.Address,
		"Jump to an arbitrary instruction",
		"The caller can redirect execution to arbitrary bytecode locations.",
		"It is possible to redirect the control flow to arbitrary locations in the code. "+
			"This may allow an attacker to bypass security controls or manipulate the business logic of the smart contract. "+
			"Avoid using low-level-operations and assembly to prevent this issue.")
	if issue == nil {
		return nil, nil
	}
	return []*report.Issue{issue}, nil
}
