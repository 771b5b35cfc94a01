package solidity

import (
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/Notation/gscanner/internal/signatures"
)

var (
	regCodeTerm = regexp.MustCompile(`^code#([a-zA-Z0-9\s,\[\]]+)#$`)
	regFuncTerm = regexp.MustCompile(`^func#([a-zA-Z0-9\s_,()\[\]]+)#$`)
	regOr       = regexp.MustCompile(`(?i)\s+or\s+`)
	regAnd      = regexp.MustCompile(`(?i)\s+and\s+`)
	regNot      = regexp.MustCompile(`(?i)^not\s+`)
)

// MatchesExpression 判断合约是否满足搜索表达式
// code#PUSH1 0x60,MSTORE# 匹配连续的指令序列，逗号分隔多条指令
// func#transfer(address,uint256)# 匹配函数分发表中的函数
// 表达式之间可用 and / or / not 组合，优先级 not > and > or
func (c *EVMContract) MatchesExpression(expression string) (bool, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return false, errors.New("empty search expression")
	}
	var listing string
	for _, disjunct := range regOr.Split(expression, -1) {
		matched := true
		for _, term := range regAnd.Split(disjunct, -1) {
			term = strings.TrimSpace(term)
			negate := false
			if loc := regNot.FindStringIndex(term); loc != nil {
				negate = true
				term = term[loc[1]:]
			}
			var ok bool
			switch {
			case regCodeTerm.MatchString(term):
				if listing == "" {
					listing = c.instructionListing()
				}
				code := regCodeTerm.FindStringSubmatch(term)[1]
				ok = strings.Contains(listing, "\n"+strings.ReplaceAll(code, ",", "\n")+"\n")
			case regFuncTerm.MatchString(term):
				selector := signatures.HashForFunctionSignature(regFuncTerm.FindStringSubmatch(term)[1])
				for _, hash := range c.Disassembly.GetFuncHashes() {
					if hash == selector {
						ok = true
						break
					}
				}
			default:
				return false, errors.Errorf("invalid search expression: %s", term)
			}
			if ok == negate {
				matched = false
			}
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}

// instructionListing 不带地址的指令列表，首尾各有一个换行便于整行匹配
func (c *EVMContract) instructionListing() string {
	var builder strings.Builder
	builder.WriteString("\n")
	instructions := c.Disassembly.GetInstructions()
	for i := range instructions {
		builder.WriteString(instructions[i].Name())
		if len(instructions[i].Argument) > 0 {
			builder.WriteString(" 0x")
			builder.WriteString(hex.EncodeToString(instructions[i].Argument))
		}
		builder.WriteString("\n")
	}
	return builder.String()
}
