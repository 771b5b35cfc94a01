package solidity

import (
	"context"
	"encoding/json"
	"os"
	"path"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Notation/gscanner/internal/util"
)

// https://github.com/ethereum/solc-bin/tree/gh-pages/bin
type SolcBinaryVersionInfo struct {
	Path       string   `json:"path"`
	Version    string   `json:"version"`
	Build      string   `json:"build"`
	LogVersion string   `json:"longVersion"`
	Keccak256  string   `json:"keccak256"`
	Sha256     string   `json:"sha256"`
	URLs       []string `json:"urls"`
}

type SolcBinaryMeta struct {
	Builds []SolcBinaryVersionInfo `json:"builds"`

	dir string
}

func NewSolcBinaryMeta(ctx context.Context, dir string) (*SolcBinaryMeta, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "MkdirAll")
	}
	localMetaFilePath := path.Join(dir, SolcBinaryMetaFile)
	metaFileExists, err := util.FileExists(localMetaFilePath)
	if err != nil {
		return nil, errors.Wrap(err, "FileExists")
	}
	if !metaFileExists {
		log.Infof("downloading solc binary list to %s", localMetaFilePath)
		err := util.DownloadFile(ctx, localMetaFilePath, SolcBinaryEndpoint+SolcBinaryMetaFile)
		if err != nil {
			return nil, errors.Wrap(err, "DownloadFile")
		}
	}
	meta, err := readSolcMeta(localMetaFilePath)
	if err != nil {
		return nil, err
	}
	meta.dir = dir
	return meta, nil
}

// GetSolcBinary 从版本列表中取对应的版本，本地不存在时下载
func (sbm *SolcBinaryMeta) GetSolcBinary(ctx context.Context, version string) (string, error) {
	version = strings.TrimPrefix(version, "^")
	var solcBinaryPath string
	for i := range sbm.Builds {
		if sbm.Builds[i].Version != version ||
			strings.Contains(sbm.Builds[i].Path, "nightly") {
			continue
		}
		solcBinaryPath = sbm.Builds[i].Path
		break
	}
	if solcBinaryPath == "" {
		return "", errors.Errorf("no solc version matches %s", version)
	}
	localSolcBinaryPath := path.Join(sbm.dir, solcBinaryPath)
	binaryFileExists, err := util.FileExists(localSolcBinaryPath)
	if err != nil {
		return "", errors.Wrap(err, "FileExists")
	}
	if binaryFileExists {
		return localSolcBinaryPath, nil
	}
	log.Infof("downloading solc %s", version)
	err = util.DownloadFile(ctx, localSolcBinaryPath, SolcBinaryEndpoint+solcBinaryPath)
	if err != nil {
		return "", errors.Wrap(err, "DownloadFile")
	}
	return localSolcBinaryPath, nil
}

func readSolcMeta(filePath string) (*SolcBinaryMeta, error) {
	fileData, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrap(err, "ReadFile")
	}
	var solcMeta SolcBinaryMeta
	err = json.Unmarshal(fileData, &solcMeta)
	if err != nil {
		return nil, errors.Wrap(err, "Unmarshal")
	}
	return &solcMeta, nil
}
