package cli

import (
	log "github.com/sirupsen/logrus"
)

// Capabilities 启动时确定的可选功能
type Capabilities struct {
	OnlineSignatureLookup bool
}

// Validate 检查参数组合，在任何后端或输入处理之前执行
// 合法的 -v 会设置全局日志级别
func Validate(a *Args, caps Capabilities) error {
	if a.Verbosity < 0 || a.Verbosity >= len(logLevels) {
		return configurationError("Invalid -v value, you can find valid values in usage")
	}
	log.SetLevel(logLevels[a.Verbosity])

	if a.QuerySignature && !caps.OnlineSignatureLookup {
		return configurationError("The --query-signature function requires the online signature lookup capability")
	}

	if a.EnableIprof {
		if a.Verbosity < 4 {
			return configurationError("--enable-iprof must be used with -v LOG_LEVEL where LOG_LEVEL >= 4")
		}
		if a.Graph == "" && !a.FireLasers && a.StatespaceJSON == "" {
			return configurationError("--enable-iprof must be used with one of -g, --graph, -x, --fire-lasers, -j and --statespace-json")
		}
	}
	return nil
}
