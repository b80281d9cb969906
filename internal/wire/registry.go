package wire

// wl_registry opcodes.
const (
	opRegistryBind = 0

	evtRegistryGlobal       = 0
	evtRegistryGlobalRemove = 1
)

// Global is one entry of the compositor's global object directory.
type Global struct {
	Name      uint32
	Interface string
	Version   uint32
}

// GlobalHandler is invoked when a matching global is announced.
type GlobalHandler func(r *Registry, name, version uint32)

// Registry is the wl_registry proxy. Globals announced by the compositor are
// recorded and matched against per-interface handlers.
type Registry struct {
	BaseProxy
	conn     *Conn
	globals  map[uint32]Global
	handlers map[string]GlobalHandler
}

// GetRegistry creates the wl_registry for this connection. The directory
// contents only become visible after a subsequent roundtrip.
func (c *Conn) GetRegistry() (*Registry, error) {
	r := &Registry{
		conn:     c,
		globals:  make(map[uint32]Global),
		handlers: make(map[string]GlobalHandler),
	}
	r.SetID(c.NewID())
	c.Register(r)
	if err := c.SendRequest(displayID, opDisplayGetRegistry, r.ID()); err != nil {
		c.Unregister(r.ID())
		return nil, err
	}
	return r, nil
}

// OnGlobal registers a handler for one interface name. Must be installed
// before the roundtrip that populates the directory.
func (r *Registry) OnGlobal(iface string, handler GlobalHandler) {
	r.handlers[iface] = handler
}

// Bind binds a global to the given proxy, allocating an id if the proxy does
// not carry one yet. The proxy is registered before the request is queued so
// no event racing the bind can be lost.
func (r *Registry) Bind(name uint32, iface string, version uint32, p Proxy) error {
	if p.ID() == 0 {
		p.SetID(r.conn.NewID())
	}
	r.conn.Register(p)
	if err := r.conn.SendRequest(r.ID(), opRegistryBind, name, iface, version, p.ID()); err != nil {
		r.conn.Unregister(p.ID())
		return err
	}
	return nil
}

// Dispatch consumes wl_registry events.
func (r *Registry) Dispatch(ev *Event) {
	switch ev.Opcode {
	case evtRegistryGlobal:
		name := ev.Uint32()
		iface := ev.String()
		version := ev.Uint32()
		if ev.Err() != nil {
			return
		}
		r.globals[name] = Global{Name: name, Interface: iface, Version: version}
		if handler, ok := r.handlers[iface]; ok {
			handler(r, name, version)
		}
	case evtRegistryGlobalRemove:
		delete(r.globals, ev.Uint32())
	}
}

// FindGlobal looks up an announced global by interface name.
func (r *Registry) FindGlobal(iface string) (Global, bool) {
	for _, g := range r.globals {
		if g.Interface == iface {
			return g, true
		}
	}
	return Global{}, false
}
