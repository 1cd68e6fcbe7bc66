package wire

import "sync"

// Registry maps a wire class name to its ordered field list, used to
// expand the gateway's positional object encoding. It is constructed
// once by the composition root and passed to whatever decodes payloads;
// there is no package-level instance.
type Registry struct {
	mu     sync.RWMutex
	fields map[string][]string
}

func NewRegistry() *Registry {
	return &Registry{fields: map[string][]string{}}
}

// Register records the field list for a class, replacing any previous
// registration.
func (r *Registry) Register(class string, fields []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dup := make([]string, len(fields))
	copy(dup, fields)
	r.fields[class] = dup
}

// Fields returns the field list for a class.
func (r *Registry) Fields(class string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fields, ok := r.fields[class]
	return fields, ok
}

// Classes returns the number of registered classes.
func (r *Registry) Classes() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.fields)
}

// Clear drops all registrations.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fields = map[string][]string{}
}
