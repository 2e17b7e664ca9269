package vm

import (
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

// log is the package logger for the runtime core. Verbosity is configured
// by the embedder through commonlog.Configure (see the config package).
var log = commonlog.GetLogger("atomvm.vm")
