// Package config 管理 ~/.gscanner 下的配置文件与本地数据目录
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Notation/gscanner/internal/util"
)

const (
	FileName = "config.toml"

	EnvDir      = "GSCANNER_DIR"
	EnvInfuraID = "INFURA_ID"

	DefaultDynamicLoading = "infura"
)

type Config struct {
	LevelDBDir     string `toml:"leveldb_dir"`
	DynamicLoading string `toml:"dynamic_loading"`
	InfuraID       string `toml:"infura_id"`

	dir string
}

// Dir 配置目录，GSCANNER_DIR 优先
func Dir() (string, error) {
	if dir := os.Getenv(EnvDir); dir != "" {
		return homedir.Expand(dir)
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", errors.Wrap(err, "homedir.Dir")
	}
	return filepath.Join(home, ".gscanner"), nil
}

func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(dir)
}

// LoadFrom 读取dir下的配置文件，文件不存在时写入默认配置
func LoadFrom(dir string) (*Config, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create config dir %s", dir)
	}
	path := filepath.Join(dir, FileName)
	exist, err := util.FileExists(path)
	if err != nil {
		return nil, err
	}
	if !exist {
		log.Infof("creating default config %s", path)
		if err := writeDefault(path); err != nil {
			return nil, err
		}
	}
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	cfg.dir = dir
	if cfg.LevelDBDir == "" {
		cfg.LevelDBDir = DefaultLevelDBDir(runtime.GOOS)
	}
	if cfg.LevelDBDir, err = homedir.Expand(cfg.LevelDBDir); err != nil {
		return nil, errors.Wrap(err, "expand leveldb_dir")
	}
	if cfg.DynamicLoading == "" {
		cfg.DynamicLoading = DefaultDynamicLoading
	}
	if id := os.Getenv(EnvInfuraID); id != "" {
		cfg.InfuraID = id
	}
	return cfg, nil
}

func writeDefault(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "Create")
	}
	defer f.Close()
	defaults := Config{
		LevelDBDir:     DefaultLevelDBDir(runtime.GOOS),
		DynamicLoading: DefaultDynamicLoading,
	}
	if err := toml.NewEncoder(f).Encode(defaults); err != nil {
		return errors.Wrap(err, "Encode")
	}
	return nil
}

// DefaultLevelDBDir geth chaindata的默认位置
func DefaultLevelDBDir(goos string) string {
	switch goos {
	case "darwin":
		return filepath.Join("~", "Library", "Ethereum", "geth", "chaindata")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "Ethereum", "geth", "chaindata")
	default:
		return filepath.Join("~", ".ethereum", "geth", "chaindata")
	}
}

func (c *Config) Dir() string {
	return c.dir
}

func (c *Config) SignatureDBPath() string {
	return filepath.Join(c.dir, "signatures")
}

func (c *Config) SolcBinaryDir() string {
	return filepath.Join(c.dir, "solc")
}

// DynamicLoadingLocator 动态加载使用的rpc地址，"infura" 表示 infura 主网
func (c *Config) DynamicLoadingLocator() string {
	if c.DynamicLoading == DefaultDynamicLoading {
		return "infura-mainnet"
	}
	return c.DynamicLoading
}
