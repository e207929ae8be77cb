package order

import "go.opentelemetry.io/contrib/bridges/otelslog"

const scopeName = "github.com/TurboJessadakorn/drive-through-realtime-agent/core/order"

var logger = otelslog.NewLogger(scopeName)
