package bubble

import "math"

// Collision event types.
const (
	EventWall  = "wall"
	EventBody  = "body"
	EventRepel = "repel"
)

// CollisionEvent records one resolved contact. Events are diagnostics only.
type CollisionEvent struct {
	Type     string  `json:"type"`
	BodyID   string  `json:"body_id"`
	TargetID string  `json:"target_id,omitempty"`
	Speed    float64 `json:"speed"`
}

// Activity counts resolved contacts by kind over the life of a field.
type Activity struct {
	Wall  uint64 `json:"wall"`
	Body  uint64 `json:"body"`
	Repel uint64 `json:"repel"`
}

// Add counts events into a.
func (a *Activity) Add(events []CollisionEvent) {
	for _, ev := range events {
		switch ev.Type {
		case EventWall:
			a.Wall++
		case EventBody:
			a.Body++
		case EventRepel:
			a.Repel++
		}
	}
}

// Total is the number of contacts of every kind.
func (a Activity) Total() uint64 {
	return a.Wall + a.Body + a.Repel
}

// Tick advances the bodies by one frame in place and returns the same slice.
//
// Stages run strictly in order: integration of every body, wall resolution of
// every body, then a single pass over all unordered pairs. hoveredID names the
// body that is pinned and enlarged this frame; "" means none. A non-positive
// arena dimension skips walls and pairs for the frame.
func Tick(bodies []Body, width, height float64, hoveredID string) []Body {
	step(bodies, width, height, hoveredID, nil)
	return bodies
}

func step(bodies []Body, width, height float64, hoveredID string, events *[]CollisionEvent) {
	if len(bodies) == 0 {
		return
	}

	for i := range bodies {
		integrate(&bodies[i], isHovered(&bodies[i], hoveredID))
	}

	if width <= 0 || height <= 0 {
		return
	}

	for i := range bodies {
		b := &bodies[i]
		if isHovered(b, hoveredID) {
			continue
		}
		if resolveBoundary(b, width, height) && events != nil {
			*events = append(*events, CollisionEvent{
				Type:   EventWall,
				BodyID: b.ID,
				Speed:  b.Velocity.Magnitude(),
			})
		}
	}

	resolveCollisions(bodies, hoveredID, events)
}

func isHovered(b *Body, hoveredID string) bool {
	return hoveredID != "" && b.ID == hoveredID
}

func integrate(b *Body, hovered bool) {
	if hovered {
		b.Velocity = Vec2{}
		return
	}
	b.Position = b.Position.Plus(b.Velocity)
	b.Velocity = b.Velocity.Times(Damping)
}

// resolveBoundary clamps the body inside the arena and reflects the velocity
// component of every wall it touches. Reports whether any wall was hit.
func resolveBoundary(b *Body, width, height float64) bool {
	r := b.EffectiveRadius()
	hit := false

	if b.Position.X-r <= 0 {
		b.Position.X = r
		b.Velocity.X = bounceSpeed(b.Velocity.X)
		hit = true
	}
	if b.Position.X+r >= width {
		b.Position.X = width - r
		b.Velocity.X = -bounceSpeed(b.Velocity.X)
		hit = true
	}
	if b.Position.Y-r <= 0 {
		b.Position.Y = r
		b.Velocity.Y = bounceSpeed(b.Velocity.Y)
		hit = true
	}
	if b.Position.Y+r >= height {
		b.Position.Y = height - r
		b.Velocity.Y = -bounceSpeed(b.Velocity.Y)
		hit = true
	}
	return hit
}

func bounceSpeed(v float64) float64 {
	return math.Max(MinBounceSpeed, math.Abs(v)*BounceFactor)
}

func collisionRadius(b *Body, hoveredID string) float64 {
	if isHovered(b, hoveredID) {
		return HoverRadius
	}
	return b.Radius
}

// resolveCollisions makes one pass over all pairs i < j. Overlaps involving
// several bodies may need a few frames to separate fully.
func resolveCollisions(bodies []Body, hoveredID string, events *[]CollisionEvent) {
	for i := 0; i < len(bodies); i++ {
		for j := i + 1; j < len(bodies); j++ {
			resolvePair(&bodies[i], &bodies[j], hoveredID, events)
		}
	}
}

func resolvePair(a, b *Body, hoveredID string, events *[]CollisionEvent) {
	delta := b.Position.Minus(a.Position)
	distance := delta.Magnitude()
	minDistance := collisionRadius(a, hoveredID) + collisionRadius(b, hoveredID)
	if distance >= minDistance {
		return
	}

	// Coincident centres have no direction; Angle falls back to +X.
	angle := delta.Angle()

	switch {
	case isHovered(a, hoveredID):
		push := Unit(angle).Times(RepelImpulse)
		b.Velocity = b.Velocity.Plus(push)
		b.Position = b.Position.Plus(push)
		record(events, EventRepel, a.ID, b.ID, b.Velocity.Magnitude())

	case isHovered(b, hoveredID):
		push := Unit(angle).Times(RepelImpulse)
		a.Velocity = a.Velocity.Minus(push)
		a.Position = a.Position.Minus(push)
		record(events, EventRepel, b.ID, a.ID, a.Velocity.Magnitude())

	default:
		sin, cos := math.Sincos(angle)
		impact := math.Abs(a.Velocity.Minus(b.Velocity).Dot(Vec2{X: cos, Y: sin}))

		va := a.Velocity.Rotate(sin, cos)
		vb := b.Velocity.Rotate(sin, cos)
		// Equal masses: swap the normal components, keep the tangential ones.
		va.X, vb.X = vb.X, va.X
		a.Velocity = va.RotateBack(sin, cos)
		b.Velocity = vb.RotateBack(sin, cos)

		half := (minDistance - distance + SeparationSlop) / 2
		sep := Vec2{X: half * cos, Y: half * sin}
		a.Position = a.Position.Minus(sep)
		b.Position = b.Position.Plus(sep)

		record(events, EventBody, a.ID, b.ID, impact)
	}
}

func record(events *[]CollisionEvent, typ, bodyID, targetID string, speed float64) {
	if events == nil {
		return
	}
	*events = append(*events, CollisionEvent{Type: typ, BodyID: bodyID, TargetID: targetID, Speed: speed})
}
