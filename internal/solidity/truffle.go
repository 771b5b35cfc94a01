package solidity

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Notation/gscanner/internal/disassembler"
)

// TruffleBuildDir truffle compile的产物目录，相对于项目根目录
const TruffleBuildDir = "build/contracts"

// TruffleArtifact build/contracts/*.json 中用到的字段
type TruffleArtifact struct {
	ContractName      string `json:"contractName"`
	Bytecode          string `json:"bytecode"`
	DeployedBytecode  string `json:"deployedBytecode"`
	SourceMap         string `json:"sourceMap"`
	DeployedSourceMap string `json:"deployedSourceMap"`
	Source            string `json:"source"`
	SourcePath        string `json:"sourcePath"`
}

// LoadTruffleContracts 读取truffle项目的编译产物
// 产物目录不存在时返回的错误满足 errors.Is(err, os.ErrNotExist)
func LoadTruffleContracts(projectDir string, resolver disassembler.SignatureResolver) ([]*EVMContract, error) {
	buildDir := filepath.Join(projectDir, TruffleBuildDir)
	entries, err := os.ReadDir(buildDir)
	if err != nil {
		return nil, errors.Wrapf(err, "read truffle build directory %s", buildDir)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var contracts []*EVMContract
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(buildDir, name))
		if err != nil {
			return nil, errors.Wrap(err, "ReadFile")
		}
		var artifact TruffleArtifact
		if err := json.Unmarshal(data, &artifact); err != nil {
			return nil, errors.Wrapf(err, "decode artifact %s", name)
		}
		deployed := strings.TrimPrefix(artifact.DeployedBytecode, "0x")
		if deployed == "" {
			log.Debugf("skip %s: no deployed bytecode", artifact.ContractName)
			continue
		}
		contract, err := NewEVMContract(deployed, artifact.Bytecode, artifact.ContractName, resolver)
		if err != nil {
			return nil, err
		}
		contract.InputFile = artifact.SourcePath
		contract.source = &sourceMapping{
			files:      []sourceFile{{name: artifact.SourcePath, content: artifact.Source}},
			runtime:    parseSourceMap(artifact.DeployedSourceMap),
			creation:   parseSourceMap(artifact.SourceMap),
			singleFile: true,
		}
		contracts = append(contracts, contract)
	}
	return contracts, nil
}
