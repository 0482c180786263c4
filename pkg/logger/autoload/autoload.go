// Package autoload initializes the global logger from the LOG_* environment
// on import:
//
//	import _ "github.com/vaani-ai/voice-sales-agent/pkg/logger/autoload"
package autoload

import (
	configx "github.com/vaani-ai/voice-sales-agent/pkg/config"
	logx "github.com/vaani-ai/voice-sales-agent/pkg/logger"
)

func init() {
	cfg := configx.MustNew[logx.Config]("LOG")
	logx.Init(*cfg)
}
