package bubble

// Field is the body registry for one live simulation: a flat slice of bodies
// updated in place every frame, plus the interaction state the next frame
// reads. A Field is not safe for concurrent use; a Session owns it.
type Field struct {
	bodies   []Body
	index    map[string]int
	hovered  string
	width    float64
	height   float64
	tick     uint64
	events   []CollisionEvent
	activity Activity
	rng      RandomSource
}

// BodySnapshot is the render-facing view of one body.
type BodySnapshot struct {
	ID            string  `json:"id"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	VX            float64 `json:"vx"`
	VY            float64 `json:"vy"`
	Radius        float64 `json:"radius"`
	DisplayRadius float64 `json:"display_radius"`
	Hovered       bool    `json:"hovered,omitempty"`
	Payload       Item    `json:"payload"`
}

// Snapshot is an immutable copy of a Field taken between frames.
type Snapshot struct {
	Tick     uint64         `json:"tick"`
	Width    float64        `json:"width"`
	Height   float64        `json:"height"`
	Hovered  string         `json:"hovered,omitempty"`
	Activity Activity       `json:"activity"`
	Bodies   []BodySnapshot `json:"bodies"`
}

// NewField initializes a registry from items for an arena of the given size.
func NewField(items []Item, width, height float64, rng RandomSource) *Field {
	f := &Field{width: width, height: height, rng: rng}
	f.Reset(items)
	return f
}

// Reset replaces the whole body set. Nothing from the previous bodies survives
// except the hover flag, and only when the hovered id is still present.
func (f *Field) Reset(items []Item) {
	f.bodies = Initialize(items, f.width, f.height, f.rng)
	f.index = make(map[string]int, len(f.bodies))
	for i := range f.bodies {
		f.index[f.bodies[i].ID] = i
	}
	if _, ok := f.index[f.hovered]; !ok {
		f.hovered = ""
	}
	f.events = nil
}

// SetHovered flags id as hovered, or clears the flag when id is "". Unknown ids
// clear the flag and report false. Takes effect on the next Step.
func (f *Field) SetHovered(id string) bool {
	if id == "" {
		f.hovered = ""
		return true
	}
	if _, ok := f.index[id]; !ok {
		f.hovered = ""
		return false
	}
	f.hovered = id
	return true
}

func (f *Field) Hovered() string { return f.hovered }

// Resize records the arena size used by the next Step.
func (f *Field) Resize(width, height float64) {
	f.width = width
	f.height = height
}

func (f *Field) Size() (float64, float64) { return f.width, f.height }

func (f *Field) Len() int { return len(f.bodies) }

func (f *Field) Tick() uint64 { return f.tick }

// Step advances the simulation by one frame and counts the contacts it
// resolved.
func (f *Field) Step() {
	f.events = f.events[:0]
	step(f.bodies, f.width, f.height, f.hovered, &f.events)
	f.activity.Add(f.events)
	f.tick++
}

// Activity returns the contacts counted since the field was created. Counts
// carry over dataset resets, like the tick counter.
func (f *Field) Activity() Activity { return f.activity }

// Body returns a copy of the body with the given id.
func (f *Field) Body(id string) (Body, bool) {
	i, ok := f.index[id]
	if !ok {
		return Body{}, false
	}
	b := f.bodies[i]
	b.Payload = b.Payload.Clone()
	return b, true
}

// Snapshot copies the current state for the renderer.
func (f *Field) Snapshot() Snapshot {
	s := Snapshot{
		Tick:     f.tick,
		Width:    f.width,
		Height:   f.height,
		Hovered:  f.hovered,
		Activity: f.activity,
		Bodies:   make([]BodySnapshot, len(f.bodies)),
	}
	for i := range f.bodies {
		b := &f.bodies[i]
		hovered := isHovered(b, f.hovered)
		display := b.Radius
		if hovered {
			display = HoverRadius
		}
		s.Bodies[i] = BodySnapshot{
			ID:            b.ID,
			X:             b.Position.X,
			Y:             b.Position.Y,
			VX:            b.Velocity.X,
			VY:            b.Velocity.Y,
			Radius:        b.Radius,
			DisplayRadius: display,
			Hovered:       hovered,
			Payload:       b.Payload.Clone(),
		}
	}
	return s
}
