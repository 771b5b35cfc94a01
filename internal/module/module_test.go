package module

import (
	"testing"

	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Notation/gscanner/internal/disassembler"
	"github.com/Notation/gscanner/internal/ethereum/state"
	"github.com/Notation/gscanner/internal/report"
)

// explore 深度优先执行全部路径并触发hook
func explore(t *testing.T, code string, mm *ModuleManager) []*report.Issue {
	d, err := disassembler.NewDisassembly(code, nil)
	require.NoError(t, err)
	env := &state.Environment{
		Contract:     "MAIN",
		Address:      "0xaffeaffeaffeaffeaffeaffeaffeaffeaffeaffe",
		Code:         d,
		FreshStorage: true,
	}
	work := []*state.GlobalState{state.NewGlobalState(env, state.NewWorldState())}
	for len(work) > 0 {
		gs := work[len(work)-1]
		work = work[:len(work)-1]
		instruction, err := gs.GetCurrentInstruction()
		if err != nil {
			continue
		}
		mm.ExecutePreHooks(instruction.OPCode, gs)
		result, err := state.Evaluate(gs)
		require.NoError(t, err)
		mm.ExecutePostHooks(instruction.OPCode, result.States)
		work = append(work, result.States...)
	}
	return mm.RetrieveIssues()
}

func load(t *testing.T, name string) *ModuleManager {
	mm, err := Load([]string{name})
	require.NoError(t, err)
	return mm
}

func TestTxOrigin(t *testing.T) {
	// ORIGIN PUSH1 5 JUMPI STOP JUMPDEST STOP
	issues := explore(t, "32600557005b00", load(t, "TxOrigin"))
	require.Len(t, issues, 1)
	assert.Equal(t, "115", issues[0].SWCID)
	assert.Equal(t, 3, issues[0].Address)
	assert.Equal(t, report.SeverityLow, issues[0].Severity)
	assert.Equal(t, "MAIN", issues[0].Contract)

	// CALLER
	assert.Empty(t, explore(t, "33600557005b00", load(t, "TxOrigin")))
}

func TestArbitraryJump(t *testing.T) {
	// PUSH1 0 CALLDATALOAD JUMP
	issues := explore(t, "60003556", load(t, "ArbitraryJump"))
	require.Len(t, issues, 1)
	assert.Equal(t, "127", issues[0].SWCID)
	assert.Equal(t, 3, issues[0].Address)
	assert.Equal(t, report.SeverityHigh, issues[0].Severity)

	// PUSH1 3 JUMP JUMPDEST STOP
	assert.Empty(t, explore(t, "6003565b00", load(t, "ArbitraryJump")))
}

func TestAccidentallyKillable(t *testing.T) {
	// CALLER SELFDESTRUCT
	issues := explore(t, "33ff", load(t, "AccidentallyKillable"))
	require.Len(t, issues, 1)
	assert.Equal(t, "106", issues[0].SWCID)
	assert.Equal(t, 1, issues[0].Address)
	assert.Contains(t, issues[0].DescriptionTail, "arbitrary address")

	// CALLER PUSH1 5 JUMPI STOP JUMPDEST PUSH1 0 SELFDESTRUCT
	assert.Empty(t, explore(t, "33600557005b6000ff", load(t, "AccidentallyKillable")))
}

const (
	callFixed  = "600060006000600060006112345af1"
	callCaller = "6000600060006000600033"
)

func TestUncheckedRetval(t *testing.T) {
	// CALL POP STOP
	issues := explore(t, callFixed+"5000", load(t, "UncheckedRetval"))
	require.Len(t, issues, 1)
	assert.Equal(t, "104", issues[0].SWCID)
	assert.Equal(t, 14, issues[0].Address)
	assert.Equal(t, report.SeverityMedium, issues[0].Severity)

	// CALL PUSH1 19 JUMPI STOP JUMPDEST STOP
	assert.Empty(t, explore(t, callFixed+"601357005b00", load(t, "UncheckedRetval")))
}

func TestStateChangeAfterCall(t *testing.T) {
	// 0 0 0 0 0 CALLER GAS CALL PUSH1 1 PUSH1 0 SSTORE STOP
	issues := explore(t, callCaller+"5af1"+"600160005500", load(t, "StateChangeAfterCall"))
	require.Len(t, issues, 1)
	assert.Equal(t, "107", issues[0].SWCID)
	assert.Equal(t, 17, issues[0].Address)
	assert.Contains(t, issues[0].DescriptionTail, "a user-defined address")

	// 固定地址
	assert.Empty(t, explore(t, callFixed+"600160005500", load(t, "StateChangeAfterCall")))
	// gas 2300
	assert.Empty(t, explore(t, callCaller+"6108fcf1"+"600160005500", load(t, "StateChangeAfterCall")))
}

func TestModuleManager(t *testing.T) {
	mm, err := Load(nil)
	require.NoError(t, err)
	assert.Len(t, mm.Modules, 5)
	assert.Len(t, mm.PreHooks[vm.JUMPI], 3)
	assert.Len(t, mm.PostHooks[vm.CALL], 1)

	_, err = Load([]string{"txorigin"})
	assert.EqualError(t, err, "Invalid detection module: txorigin")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "txorigin", notFound.Name)

	mm, err = Load([]string{"TxOrigin", "ArbitraryJump"})
	require.NoError(t, err)
	assert.Len(t, mm.Modules, 2)

	// 同一地址只报告一次，Reset之后重新报告
	m := load(t, "AccidentallyKillable")
	assert.Len(t, explore(t, "33ff", m), 1)
	assert.Len(t, explore(t, "33ff", m), 1)
	m.Reset()
	assert.Empty(t, m.RetrieveIssues())
	assert.Len(t, explore(t, "33ff", m), 1)
}
