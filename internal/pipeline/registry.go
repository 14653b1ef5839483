package pipeline

import (
	"fmt"

	"github.com/chainline/chainline/internal/logging"
)

// Factory builds a worker body from its bound base state. Collaborators
// (warehouse clients, sinks, listers) are closed over at registration time.
type Factory func(base *Base) (WorkFunc, error)

// Definition declares one worker variant: its registered name, its
// parameter schema, and its factory.
type Definition struct {
	Name    string
	Spec    []ParamSpec
	Factory Factory
}

// Registry is the closed table of worker variants. Names are validated at
// registration so dispatch on an unknown name fails fast.
type Registry struct {
	logger *logging.Logger
	sink   LogSink
	defs   map[string]Definition
}

type RegistryOption func(*Registry)

// WithLogSink routes every invocation's log records to sink in addition to
// the process logger.
func WithLogSink(sink LogSink) RegistryOption {
	return func(r *Registry) {
		r.sink = sink
	}
}

func NewRegistry(logger *logging.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		logger: logger,
		defs:   make(map[string]Definition),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a worker definition. It rejects empty or duplicate names,
// nil factories, and schemas with repeated parameter names.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("worker definition requires a name")
	}
	if def.Factory == nil {
		return fmt.Errorf("worker %s requires a factory", def.Name)
	}
	if _, exists := r.defs[def.Name]; exists {
		return fmt.Errorf("worker %s already registered", def.Name)
	}
	seen := make(map[string]struct{}, len(def.Spec))
	for _, spec := range def.Spec {
		if _, dup := seen[spec.Name]; dup {
			return fmt.Errorf("worker %s declares parameter %q twice", def.Name, spec.Name)
		}
		seen[spec.Name] = struct{}{}
	}
	r.defs[def.Name] = def
	return nil
}

// MustRegister panics on registration failure. Used for the static worker
// fleet wired at startup.
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	def, ok := r.defs[name]
	return def, ok
}

// Validate checks that a WorkItem names a registered variant and that its
// parameters satisfy the variant's schema. Used by the harness before it
// submits an item to the queue.
func (r *Registry) Validate(item WorkItem) error {
	def, ok := r.defs[item.WorkerType]
	if !ok {
		return NewConfigurationError("worker_type", fmt.Sprintf("unknown worker type %q", item.WorkerType))
	}
	_, err := BindParams(def.Spec, item.Params)
	return err
}

// New constructs a parameter-bound invocation of the named worker variant.
// Binding failures surface immediately as ConfigurationError; nothing is
// deferred to execution.
func (r *Registry) New(name string, raw map[string]any, instanceID, executionID string) (*Invocation, error) {
	def, ok := r.defs[name]
	if !ok {
		return nil, NewConfigurationError("worker_type", fmt.Sprintf("unknown worker type %q", name))
	}
	params, err := BindParams(def.Spec, raw)
	if err != nil {
		return nil, err
	}
	base := &Base{
		workerType:  name,
		instanceID:  instanceID,
		executionID: executionID,
		params:      params,
		logger:      r.logger,
		sink:        r.sink,
	}
	work, err := def.Factory(base)
	if err != nil {
		return nil, err
	}
	return &Invocation{Base: base, work: work}, nil
}
