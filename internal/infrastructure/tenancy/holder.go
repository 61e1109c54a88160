package tenancy

import "sync"

// Holder stores the tenant of one unit of work together with the stack of
// tenants it temporarily replaced. A Holder belongs to a single request or
// task; it is safe for concurrent use so that helper goroutines spawned by
// that request may read it.
type Holder struct {
	mu      sync.Mutex
	current ID
	stack   []ID
}

// NewHolder returns an empty holder.
func NewHolder() *Holder {
	return &Holder{}
}

// NewHolderWith returns a holder with id already active.
func NewHolderWith(id ID) *Holder {
	return &Holder{current: id}
}

// Get returns the active tenant, or false when none is active.
func (h *Holder) Get() (ID, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current, h.current != ""
}

// Set replaces the active tenant. Set("") clears it; the stack is untouched.
func (h *Holder) Set(id ID) {
	h.mu.Lock()
	h.current = id
	h.mu.Unlock()
}

// Require returns the active tenant or ErrMissingTenantContext.
func (h *Holder) Require() (ID, error) {
	if id, ok := h.Get(); ok {
		return id, nil
	}
	return "", ErrMissingTenantContext
}

// Push saves the active tenant and activates id.
func (h *Holder) Push(id ID) {
	h.mu.Lock()
	h.stack = append(h.stack, h.current)
	h.current = id
	h.mu.Unlock()
}

// Pop restores the tenant saved by the matching Push and returns it.
// Popping an empty stack leaves the holder cleared and reports false.
func (h *Holder) Pop() (ID, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.stack)
	if n == 0 {
		h.current = ""
		return "", false
	}
	h.current = h.stack[n-1]
	h.stack[n-1] = ""
	h.stack = h.stack[:n-1]
	return h.current, h.current != ""
}

// Depth returns the number of saved tenants.
func (h *Holder) Depth() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.stack)
}

// Clear drops the active tenant and every saved one.
func (h *Holder) Clear() {
	h.mu.Lock()
	h.current = ""
	h.stack = nil
	h.mu.Unlock()
}

// Run executes body with id active and restores the previous tenant
// afterwards, including when body returns an error or panics.
func (h *Holder) Run(id ID, body func() error) error {
	h.Push(id)
	defer h.Pop()
	return body()
}

// WithTenant is Run for bodies that produce a value.
func WithTenant[T any](h *Holder, id ID, body func() (T, error)) (T, error) {
	h.Push(id)
	defer h.Pop()
	return body()
}
