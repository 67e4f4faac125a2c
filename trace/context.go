package trace

// Context is a reference-counted cactus-stack node: one per live call
// invocation, pointing at its caller's context and the call-site
// TraceLocation (spec §4.5). Tags keep a context alive by holding a
// reference; releasing the last reference to a non-root context releases
// its parent in turn.
type Context struct {
	parent    *Context
	callPoint TraceLocation
	funcID    uint32
	depth     int
	refcount  int32
}

// rootRefcount anchors the dummy root context at an effectively-infinite
// count so Release on it is a no-op (spec §9: "a dummy root context with
// effectively-infinite refcount anchors the cactus stack").
const rootRefcount = 1 << 30

// NewRoot creates the dummy root context every call-chain hangs from.
func NewRoot() *Context {
	return &Context{refcount: rootRefcount}
}

func (c *Context) isRoot() bool {
	return c.parent == nil
}

// Call creates a child context for a new invocation made from c at
// callPoint, retaining c.
func (c *Context) Call(callPoint TraceLocation, funcID uint32) *Context {
	c.Retain()
	return &Context{parent: c, callPoint: callPoint, funcID: funcID, depth: c.depth + 1, refcount: 1}
}

// Retain increments the reference count and returns c.
func (c *Context) Retain() *Context {
	if !c.isRoot() {
		c.refcount++
	}
	return c
}

// Release decrements the reference count, releasing the parent in turn
// once the count reaches zero.
func (c *Context) Release() {
	if c.isRoot() {
		return
	}
	c.refcount--
	if c.refcount == 0 {
		c.parent.Release()
	}
}

// FuncID reports which function this invocation is executing.
func (c *Context) FuncID() uint32 {
	return c.funcID
}

func chainToRoot(c *Context) []*Context {
	if c == nil {
		return nil
	}
	chain := make([]*Context, 0, c.depth+1)
	for c != nil {
		chain = append(chain, c)
		c = c.parent
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// diverge finds the nearest common ancestor of a and b, plus each side's
// first step away from that ancestor (nil if the ancestor *is* that side,
// i.e. one context is a direct ancestor of the other).
func diverge(a, b *Context) (ancestor, divA, divB *Context) {
	ca := chainToRoot(a)
	cb := chainToRoot(b)
	i := 0
	for i < len(ca) && i < len(cb) && ca[i] == cb[i] {
		i++
	}
	ancestor = ca[i-1]
	if i < len(ca) {
		divA = ca[i]
	}
	if i < len(cb) {
		divB = cb[i]
	}
	return ancestor, divA, divB
}
