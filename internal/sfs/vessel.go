package sfs

import "errors"

// ErrNoFlightState is returned when a document has no GAME/FLIGHTSTATE node.
var ErrNoFlightState = errors.New("save has no GAME/FLIGHTSTATE node")

// Node names and vessel keys of the save schema.
const (
	NodeGame        = "GAME"
	NodeFlightState = "FLIGHTSTATE"
	NodeVessel      = "VESSEL"

	KeyName = "name"
	KeyType = "type"
	KeyPID  = "pid"
	KeyLat  = "lat"
	KeyLon  = "lon"
	KeyAlt  = "alt"
	KeyHgt  = "hgt"
)

// Vessel is a typed view over a VESSEL node. Writes go straight to the node.
type Vessel struct {
	node *Node
}

// FlightState returns the GAME/FLIGHTSTATE node.
func (d *Document) FlightState() (*Node, error) {
	fs := d.Root.Path(NodeGame, NodeFlightState)
	if fs == nil {
		return nil, ErrNoFlightState
	}
	return fs, nil
}

// Vessels returns the vessels of the flight state in declaration order.
func (d *Document) Vessels() ([]Vessel, error) {
	fs, err := d.FlightState()
	if err != nil {
		return nil, err
	}
	nodes := fs.Children(NodeVessel)
	vessels := make([]Vessel, len(nodes))
	for i, n := range nodes {
		vessels[i] = Vessel{node: n}
	}
	return vessels, nil
}

// Node returns the underlying node.
func (v Vessel) Node() *Node { return v.node }

// Name returns the vessel's display name.
func (v Vessel) Name() string {
	s, _ := v.node.Value(KeyName)
	return s
}

// Type returns the vessel type (e.g. DeployedGroundPart).
func (v Vessel) Type() string {
	s, _ := v.node.Value(KeyType)
	return s
}

// PID returns the persistent vessel id.
func (v Vessel) PID() string {
	s, _ := v.node.Value(KeyPID)
	return s
}

// Value returns a raw vessel field.
func (v Vessel) Value(key string) (string, bool) { return v.node.Value(key) }

// SetValue overwrites a raw vessel field.
func (v Vessel) SetValue(key, value string) { v.node.SetValue(key, value) }
