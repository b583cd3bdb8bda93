package bubble

// Physics constants for the bubble field. They are tuned for visual feel in
// the browser renderer and must stay exactly as they are for visual parity.
const (
	DefaultRadius  = 40.0
	MarginFactor   = 2.0 // spawn margin = MarginFactor * radius
	InitialSpeed   = 4.0 // initial velocity per axis in [-InitialSpeed/2, InitialSpeed/2]
	Damping        = 0.995
	BorderWidth    = 2.0 // rendered border; half of it counts toward wall contact
	BounceFactor   = 0.9
	MinBounceSpeed = 0.5
	HoverRadius    = 80.0
	RepelImpulse   = 2.0
	SeparationSlop = 0.5

	// DefaultFrameHz matches a typical display refresh.
	DefaultFrameHz = 60
)
