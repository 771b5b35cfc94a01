package solidity

import (
	"regexp"
	"strings"

	"github.com/Notation/gscanner/internal/disassembler"
	"github.com/Notation/gscanner/internal/util"
	"github.com/pkg/errors"
)

const (
	ContractAddressPattern = `(_{2}.{38})`
)

var regCode *regexp.Regexp

func init() {
	regCode, _ = regexp.Compile(ContractAddressPattern)
}

type EVMContract struct {
	Name string

	Code        string
	Disassembly *disassembler.Disassembly

	CreationCode        string
	CreationDisassembly *disassembler.Disassembly

	InputFile string
	source    *sourceMapping
}

// NewEVMContract 创建合约，code为运行时字节码，creationCode为创建字节码，二者可以有一个为空
// 库地址占位符会被替换为固定地址
func NewEVMContract(code, creationCode, name string, resolver disassembler.SignatureResolver) (*EVMContract, error) {
	c := &EVMContract{
		Name:         name,
		Code:         replaceAddress(util.StripHexPrefix(code)),
		CreationCode: replaceAddress(util.StripHexPrefix(creationCode)),
	}
	var err error
	c.Disassembly, err = disassembler.NewDisassembly(c.Code, resolver)
	if err != nil {
		return nil, errors.Wrapf(err, "disassemble runtime code of %s", name)
	}
	c.CreationDisassembly, err = disassembler.NewDisassembly(c.CreationCode, resolver)
	if err != nil {
		return nil, errors.Wrapf(err, "disassemble creation code of %s", name)
	}
	return c, nil
}

func (c *EVMContract) BytecodeHash() (string, error) {
	codeStr, _, err := util.GetCodeHash(c.Code)
	return codeStr, err
}

func (c *EVMContract) GetEASM() string {
	return c.Disassembly.GetEASM()
}

func (c *EVMContract) GetCreationEASM() string {
	return c.CreationDisassembly.GetEASM()
}

// SetRuntimeCode 替换运行时字节码，创建交易执行完毕后得到的代码通过这里写回
func (c *EVMContract) SetRuntimeCode(code string, resolver disassembler.SignatureResolver) error {
	disassembly, err := disassembler.NewDisassembly(code, resolver)
	if err != nil {
		return errors.Wrap(err, "NewDisassembly")
	}
	c.Code = code
	c.Disassembly = disassembly
	return nil
}

func replaceAddress(code string) string {
	return regCode.ReplaceAllString(code, strings.Repeat("aa", 20))
}
