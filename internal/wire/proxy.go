package wire

// Proxy is the client-side representation of one protocol object. Every
// bound object implements Dispatch to consume its own events.
type Proxy interface {
	ID() uint32
	SetID(id uint32)
	Dispatch(*Event)
}

// BaseProxy carries the object identity shared by all proxy types. Embed it
// and implement Dispatch.
type BaseProxy struct {
	id uint32
}

// ID returns the protocol object id.
func (p *BaseProxy) ID() uint32 {
	return p.id
}

// SetID sets the protocol object id. Called once, at allocation or when the
// compositor announces a server-created object.
func (p *BaseProxy) SetID(id uint32) {
	p.id = id
}
