package save

// Saveable is implemented by any stateful object that participates in
// save/load. Implementations live in the gameplay layer; this package only
// sees the capability.
type Saveable interface {
	// SaveID returns a stable identifier, unique among live saveables.
	SaveID() string
	// TypeTag names the codec registered for this saveable's state.
	TypeTag() string
	// CaptureState returns a JSON-serializable value describing current state.
	CaptureState() (any, error)
	// RestoreState consumes a value produced by the codec for TypeTag.
	RestoreState(v any) error
}
