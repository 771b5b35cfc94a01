// Package report 检测结果的汇总与输出
package report

import (
	"fmt"
	"strings"

	"github.com/Notation/gscanner/internal/solidity"
)

const (
	SeverityHigh   = "High"
	SeverityMedium = "Medium"
	SeverityLow    = "Low"
)

type Issue struct {
	Contract string
	Function string
	Address  int

	SWCID           string
	Title           string
	Severity        string
	DescriptionHead string
	DescriptionTail string

	Creation     bool // 出现在创建交易中
	BytecodeHash string
	File         string
	Line         int
	Code         string
}

// Description 完整描述
func (is *Issue) Description() string {
	if is.DescriptionTail == "" {
		return is.DescriptionHead
	}
	return is.DescriptionHead + "\n" + is.DescriptionTail
}

// AddCodeInfo 补充源码位置，只对有源码的合约生效
func (is *Issue) AddCodeInfo(contract *solidity.EVMContract) {
	if hash, err := contract.BytecodeHash(); err == nil {
		is.BytecodeHash = hash
	}
	if contract.InputFile == "" {
		return
	}
	codeInfo := contract.GetSourceInfo(is.Address, is.Creation)
	if codeInfo == nil {
		is.File = "Internal File"
		return
	}
	is.File = codeInfo.FileName
	is.Line = codeInfo.LineNum
	is.Code = codeInfo.Code
}

func (is *Issue) key() string {
	return fmt.Sprintf("%s|%s|%d|%s", is.Contract, is.Function, is.Address, is.Title)
}

func (is *Issue) String() string {
	var b strings.Builder
	b.WriteString(titleColor.Sprintf("==== %s ====", is.Title))
	b.WriteString("\n")
	fmt.Fprintf(&b, "SWC ID: %s\n", is.SWCID)
	fmt.Fprintf(&b, "Severity: %s\n", is.Severity)
	fmt.Fprintf(&b, "Contract: %s\n", orDefault(is.Contract, "Unknown"))
	fmt.Fprintf(&b, "Function name: %s\n", is.Function)
	fmt.Fprintf(&b, "PC address: %d\n", is.Address)
	b.WriteString(is.Description())
	b.WriteString("\n--------------------\n")
	switch {
	case is.File != "" && is.Line > 0:
		b.WriteString(fileColor.Sprintf("In file: %s:%d", is.File, is.Line))
		b.WriteString("\n")
	case is.File != "":
		b.WriteString(fileColor.Sprintf("In file: %s", is.File))
		b.WriteString("\n")
	}
	if is.Code != "" {
		fmt.Fprintf(&b, "\n%s\n\n--------------------\n", is.Code)
	}
	return b.String()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
