package cli

import (
	log "github.com/sirupsen/logrus"
)

// Mode 一次调用只执行一种模式
type Mode int

const (
	ModeHelp Mode = iota
	ModeVersion
	ModeEpicEscape
	ModeHashLookup
	ModeDatabaseSearch
	ModeAddressLookup
	ModeTruffleProject
	ModeStorageRead
	ModeDisassemble
	ModeGraphExport
	ModeAnalyze
	ModeStatespaceExport
)

var modeNames = map[Mode]string{
	ModeHelp:             "help",
	ModeVersion:          "version",
	ModeEpicEscape:       "epic",
	ModeHashLookup:       "hash",
	ModeDatabaseSearch:   "search",
	ModeAddressLookup:    "contract-hash-to-address",
	ModeTruffleProject:   "truffle",
	ModeStorageRead:      "storage",
	ModeDisassemble:      "disassemble",
	ModeGraphExport:      "graph",
	ModeAnalyze:          "fire-lasers",
	ModeStatespaceExport: "statespace-json",
}

func (m Mode) String() string {
	return modeNames[m]
}

// needsInput 需要解析输入的模式
func (m Mode) needsInput() bool {
	return m >= ModeStorageRead
}

// usesDatabase 只访问本地链数据库的模式
func (m Mode) usesDatabase() bool {
	return m == ModeDatabaseSearch || m == ModeAddressLookup
}

// hasCommand 是否给出了至少一个命令
func (a *Args) hasCommand() bool {
	return a.Search != "" || a.Hash != "" || a.Disassemble || a.Graph != "" || a.FireLasers ||
		a.Storage != "" || a.Truffle || a.StatespaceJSON != "" || a.ContractHashToAddress != ""
}

// ResolveMode 按固定优先级选择模式，同时给出多个命令时只有第一个生效
func ResolveMode(a *Args) Mode {
	switch {
	case a.Epic:
		return ModeEpicEscape
	case a.Version:
		return ModeVersion
	case !a.hasCommand():
		return ModeHelp
	case a.Hash != "":
		return ModeHashLookup
	case a.Search != "":
		return ModeDatabaseSearch
	case a.ContractHashToAddress != "":
		return ModeAddressLookup
	case a.Truffle:
		return ModeTruffleProject
	case a.Storage != "":
		return ModeStorageRead
	case a.Disassemble:
		return ModeDisassemble
	case a.Graph != "":
		return ModeGraphExport
	case a.FireLasers:
		return ModeAnalyze
	default:
		return ModeStatespaceExport
	}
}

// logLevels -v 0-5
var logLevels = []log.Level{
	log.PanicLevel,
	log.FatalLevel,
	log.ErrorLevel,
	log.WarnLevel,
	log.InfoLevel,
	log.DebugLevel,
}
