package gscanner

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Notation/gscanner/internal/solidity"
)

var solidityTestSettings = solidity.CompilerSettings{Version: "0.8.17"}

// fakeCompile 返回固定的编译输出，file中包含Base与Token两个合约
func fakeCompile(t *testing.T, file string) compileFunc {
	return func(files []string, settings solidity.CompilerSettings) (*solidity.CompilerOutput, error) {
		raw := map[string]interface{}{
			"sources": map[string]interface{}{file: map[string]interface{}{"id": 0}},
			"contracts": map[string]interface{}{
				file: map[string]interface{}{
					"Token": map[string]interface{}{
						"evm": map[string]interface{}{
							"bytecode":          map[string]interface{}{"object": "6080604052"},
							"deployedBytecode":  map[string]interface{}{"object": "33ff"},
							"methodIdentifiers": map[string]interface{}{"transfer(address,uint256)": "a9059cbb"},
						},
					},
					"Base": map[string]interface{}{
						"evm": map[string]interface{}{
							"bytecode":         map[string]interface{}{"object": "6080604052"},
							"deployedBytecode": map[string]interface{}{"object": "00"},
						},
					},
					"Iface": map[string]interface{}{
						"evm": map[string]interface{}{
							"bytecode":         map[string]interface{}{"object": ""},
							"deployedBytecode": map[string]interface{}{"object": ""},
						},
					},
				},
			},
		}
		data, err := json.Marshal(raw)
		require.NoError(t, err)
		var output solidity.CompilerOutput
		require.NoError(t, json.Unmarshal(data, &output))
		return &output, nil
	}
}
