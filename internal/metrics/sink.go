package metrics

import "github.com/hashicorp/go-hclog"

// Sink records named scalar values. AddScalar must not block the caller and
// must be safe for concurrent use by several local updates.
type Sink interface {
	AddScalar(tag string, value float64)
}

// Discard drops every scalar.
var Discard Sink = discard{}

type discard struct{}

func (discard) AddScalar(string, float64) {}

// Multi fans a scalar out to every sink in order.
type Multi []Sink

func (m Multi) AddScalar(tag string, value float64) {
	for _, s := range m {
		s.AddScalar(tag, value)
	}
}

// WithPrefix returns a sink that records tag as prefix/tag on s.
func WithPrefix(s Sink, prefix string) Sink {
	if prefix == "" {
		return s
	}
	return prefixed{sink: s, prefix: prefix + "/"}
}

type prefixed struct {
	sink   Sink
	prefix string
}

func (p prefixed) AddScalar(tag string, value float64) {
	p.sink.AddScalar(p.prefix+tag, value)
}

// LogSink writes scalars to an hclog logger at trace level.
type LogSink struct {
	Logger hclog.Logger
}

func (l LogSink) AddScalar(tag string, value float64) {
	l.Logger.Trace("scalar", "tag", tag, "value", value)
}
