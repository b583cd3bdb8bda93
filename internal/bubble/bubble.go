package bubble

// Link is one entry listed inside an expanded bubble.
type Link struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

// Item is the display payload a bubble is created from. The simulator carries
// it through unchanged.
type Item struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Links []Link `json:"items"`
}

// Clone returns a copy that shares no memory with the receiver.
func (it Item) Clone() Item {
	out := it
	if it.Links != nil {
		out.Links = make([]Link, len(it.Links))
		copy(out.Links, it.Links)
	}
	return out
}

// Body is the physics state of one bubble.
type Body struct {
	ID       string  `json:"id"`
	Position Vec2    `json:"position"`
	Velocity Vec2    `json:"velocity"`
	Radius   float64 `json:"radius"`
	Payload  Item    `json:"payload"`
}

// EffectiveRadius is the radius used for wall contact: the base radius plus
// half of the rendered border.
func (b *Body) EffectiveRadius() float64 {
	return b.Radius + BorderWidth/2
}

// RandomSource yields uniform values in [0, 1). *math/rand/v2.Rand satisfies it.
type RandomSource interface {
	Float64() float64
}

// Initialize creates one body per item, placed uniformly at random inside the
// arena with a margin of two radii from every edge and a random velocity in
// [-2, 2] per axis. Draw order per body is x, y, vx, vy.
func Initialize(items []Item, width, height float64, rng RandomSource) []Body {
	bodies := make([]Body, len(items))
	for i, item := range items {
		radius := DefaultRadius
		x := spawnCoord(width, radius, rng.Float64())
		y := spawnCoord(height, radius, rng.Float64())
		bodies[i] = Body{
			ID:       item.ID,
			Position: Vec2{X: x, Y: y},
			Velocity: Vec2{
				X: (rng.Float64() - 0.5) * InitialSpeed,
				Y: (rng.Float64() - 0.5) * InitialSpeed,
			},
			Radius:  radius,
			Payload: item.Clone(),
		}
	}
	return bodies
}

// spawnCoord maps r in [0,1) onto [margin, dimension-margin]. An axis too
// short to hold the margin centres the body instead.
func spawnCoord(dimension, radius, r float64) float64 {
	margin := MarginFactor * radius
	span := dimension - 2*margin
	if span < 0 {
		if dimension <= 0 {
			return 0
		}
		return dimension / 2
	}
	return margin + r*span
}
