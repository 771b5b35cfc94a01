package module

import (
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Notation/gscanner/internal/ethereum/state"
	"github.com/Notation/gscanner/internal/report"
)

type TxOrigin struct {
	*BaseModule
}

func NewTxOrigin() *TxOrigin {
	txOrigin := &TxOrigin{
		BaseModule: newBaseModule("TxOrigin", "115", report.SeverityLow),
	}
	txOrigin.preHooks = []vm.OpCode{vm.JUMPI}
	return txOrigin
}

// Execute JUMPI的条件来自ORIGIN时报告
func (txOrigin *TxOrigin) Execute(globalState *state.GlobalState) ([]*report.Issue, error) {
	log.Debug("Entering TxOrigin")
	defer log.Debug("Exiting TxOrigin")

	condition, err := globalState.MachineState.Stack().Peek(1)
	if err != nil {
		return nil, errors.Wrap(err, "Peek")
	}
	if !condition.HasTaint(state.TaintOrigin) {
		return nil, nil
	}
	instruction, err := globalState.GetCurrentInstruction()
	if err != nil {
		return nil, errors.Wrap(err, "GetCurrentInstruction")
	}
	issue := txOrigin.newIssue(globalState, instruction.Address,
		"Dependence on tx.origin",
		"Use of tx.origin as a part of authorization control.",
		"The tx.origin environment variable has been found to influence a control flow decision. "+
			"Note that using tx.origin as a security control might cause a situation where a user inadvertently "+
			"authorizes a smart contract to perform an action on their behalf. It is recommended to use msg.sender instead.")
	if issue == nil {
		return nil, nil
	}
	return []*report.Issue{issue}, nil
}
