package solver

import (
	"github.com/charmbracelet/log"

	"github.com/operator-framework/wcsp/pkg/wcsp"
)

type DefaultTracer struct{}

func (DefaultTracer) Trace(_ wcsp.SearchPosition) {
}

// LoggingTracer logs every search node at debug level.
type LoggingTracer struct {
	Logger *log.Logger
}

func (t LoggingTracer) Trace(p wcsp.SearchPosition) {
	kv := []interface{}{"depth", p.Depth(), "variable", p.Variable(), "value", p.Value(), "lb", p.Lb(), "ub", p.Ub()}
	if err := p.Err(); err != nil {
		kv = append(kv, "err", err)
	}
	t.Logger.Debug("node", kv...)
}
