package nvpairs

// Protocol binds a protocol name (e.g. "modbus-tcp") to its properties.
type Protocol struct {
	Name       string `json:"name"`
	Properties List   `json:"properties"`
}

// Protocols is an ordered sequence of protocol property sets attached to
// a device.
type Protocols []Protocol

// Add returns the list with a protocol entry appended.
func (ps Protocols) Add(name string, props List) Protocols {
	return append(ps, Protocol{Name: name, Properties: props})
}

// Properties looks up the property list for a protocol name. The second
// return is false when the protocol is absent.
func (ps Protocols) Properties(name string) (List, bool) {
	if name == "" {
		return nil, false
	}
	for _, p := range ps {
		if p.Name == name {
			return p.Properties, true
		}
	}
	return nil, false
}

// Clone returns a structural copy, including each property list.
func (ps Protocols) Clone() Protocols {
	if ps == nil {
		return nil
	}
	out := make(Protocols, len(ps))
	for i, p := range ps {
		out[i] = Protocol{Name: p.Name, Properties: p.Properties.Clone()}
	}
	return out
}

// Equal reports set equality over protocol names, requiring each pair of
// property lists to be Equal in turn.
func (ps Protocols) Equal(other Protocols) bool {
	if len(ps) != len(other) {
		return false
	}
	for _, p := range ps {
		props, ok := other.Properties(p.Name)
		if !ok || !p.Properties.Equal(props) {
			return false
		}
	}
	return true
}
