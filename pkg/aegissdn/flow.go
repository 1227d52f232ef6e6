package aegissdn

import (
	"context"
	"fmt"
)

// Flow is a convenience builder that lets callers say Conf → Southbound →
// Export without touching the underlying hexagonal wiring.
type Flow struct {
	cfg  *Config
	opts []RuntimeOption
}

// FlowOption mutates the Flow after configuration is loaded.
type FlowOption func(*Flow)

// SouthboundOption configures the substrate side: switches, journal, queue
// and observability.
type SouthboundOption func(*Flow)

// ExportOption configures where decision events go.
type ExportOption func(*Flow)

// Conf loads YAML from disk, applies FlowOption values, and returns a Flow builder.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

// ConfFromConfig bootstraps a Flow from an in-memory Config.
func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	f := &Flow{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

// Config returns the underlying configuration so callers can tweak it before building a runtime.
func (f *Flow) Config() *Config {
	if f == nil {
		return nil
	}
	return f.cfg
}

// Options appends raw RuntimeOption values to the builder for advanced scenarios.
func (f *Flow) Options(opts ...RuntimeOption) *Flow {
	if f == nil {
		return nil
	}
	f.appendOptions(opts...)
	return f
}

// Southbound records substrate-side overrides.
func (f *Flow) Southbound(opts ...SouthboundOption) *Flow {
	if f == nil {
		return nil
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Export records sink-side overrides and builds a Runtime ready to run.
func (f *Flow) Export(opts ...ExportOption) (*Runtime, error) {
	if f == nil {
		return nil, fmt.Errorf("flow is nil")
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return NewRuntime(f.cfg, f.opts...)
}

// Run is a shortcut for Export + runtime.Run.
func (f *Flow) Run(ctx context.Context, opts ...ExportOption) error {
	rt, err := f.Export(opts...)
	if err != nil {
		return err
	}
	return rt.Run(ctx)
}

// WithFlowOptions appends RuntimeOption values during Conf.
func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return func(f *Flow) {
		if f != nil {
			f.appendOptions(opts...)
		}
	}
}

// SouthboundSubstrate injects a custom substrate (an OpenFlow library, a
// simulator) in place of the built-in emulator.
func SouthboundSubstrate(s Substrate) SouthboundOption {
	return func(f *Flow) {
		if f != nil && s != nil {
			f.appendOptions(WithSubstrate(s))
		}
	}
}

// SouthboundNotifier routes migration notices to n.
func SouthboundNotifier(n MigrationNotifier) SouthboundOption {
	return func(f *Flow) {
		if f != nil && n != nil {
			f.appendOptions(WithMigrationNotifier(n))
		}
	}
}

// SouthboundJournal lets callers bring their own journal implementation.
func SouthboundJournal(j Journal) SouthboundOption {
	return func(f *Flow) {
		if f != nil && j != nil {
			f.appendOptions(WithJournal(j))
		}
	}
}

// SouthboundQueue swaps the in-memory queue for a caller-provided implementation.
func SouthboundQueue(q EventQueue) SouthboundOption {
	return func(f *Flow) {
		if f != nil && q != nil {
			f.appendOptions(WithEventQueue(q))
		}
	}
}

// SouthboundObservability overrides the default Prometheus-based observability stack.
func SouthboundObservability(obs Observability) SouthboundOption {
	return func(f *Flow) {
		if f != nil && obs != nil {
			f.appendOptions(WithObservability(obs))
		}
	}
}

// ExportSink adds a custom sink.
func ExportSink(s Sink) ExportOption {
	return func(f *Flow) {
		if f != nil && s != nil {
			f.appendOptions(WithSink(s))
		}
	}
}

// ExportCallback adds a sink built from a simple callback function.
func ExportCallback(name string, fn EventBatchSink) ExportOption {
	return func(f *Flow) {
		if f != nil {
			f.appendOptions(WithSink(NewCallbackSink(name, fn)))
		}
	}
}

func (f *Flow) appendOptions(opts ...RuntimeOption) {
	for _, opt := range opts {
		if opt != nil {
			f.opts = append(f.opts, opt)
		}
	}
}
