package bubble

import (
	"math"
	"math/rand/v2"
	"testing"
)

const eps = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= eps
}

// seqRand replays a fixed sequence of values, cycling when exhausted.
type seqRand struct {
	vals []float64
	i    int
}

func (r *seqRand) Float64() float64 {
	v := r.vals[r.i%len(r.vals)]
	r.i++
	return v
}

func testItems(n int) []Item {
	items := make([]Item, n)
	for i := range items {
		id := string(rune('a' + i))
		items[i] = Item{ID: id, Name: "Category " + id, Links: []Link{{Name: "Go", URL: "https://go.dev"}}}
	}
	return items
}

func TestInitializeKeepsMargin(t *testing.T) {
	items := testItems(5)
	rng := rand.New(rand.NewPCG(1, 2))

	bodies := Initialize(items, 1000, 800, rng)
	if len(bodies) != 5 {
		t.Fatalf("got %d bodies, want 5", len(bodies))
	}

	for _, b := range bodies {
		if b.Radius != DefaultRadius {
			t.Errorf("body %s radius=%f want %f", b.ID, b.Radius, DefaultRadius)
		}
		if b.Position.X < 80 || b.Position.X > 920 {
			t.Errorf("body %s x=%f outside [80, 920]", b.ID, b.Position.X)
		}
		if b.Position.Y < 80 || b.Position.Y > 720 {
			t.Errorf("body %s y=%f outside [80, 720]", b.ID, b.Position.Y)
		}
		if math.Abs(b.Velocity.X) > 2 || math.Abs(b.Velocity.Y) > 2 {
			t.Errorf("body %s velocity (%f,%f) outside [-2, 2]", b.ID, b.Velocity.X, b.Velocity.Y)
		}
	}
}

func TestInitializeExtremeDraws(t *testing.T) {
	items := testItems(2)

	low := Initialize(items, 1000, 800, &seqRand{vals: []float64{0}})
	for _, b := range low {
		if b.Position.X != 80 || b.Position.Y != 80 {
			t.Errorf("low draw placed %s at (%f,%f), want (80,80)", b.ID, b.Position.X, b.Position.Y)
		}
		if b.Velocity.X != -2 || b.Velocity.Y != -2 {
			t.Errorf("low draw velocity (%f,%f), want (-2,-2)", b.Velocity.X, b.Velocity.Y)
		}
	}

	high := Initialize(items, 1000, 800, &seqRand{vals: []float64{0.9999999}})
	for _, b := range high {
		if b.Position.X > 920 || b.Position.Y > 720 {
			t.Errorf("high draw placed %s at (%f,%f) past the margin", b.ID, b.Position.X, b.Position.Y)
		}
	}
}

func TestInitializeDrawOrderAndPayload(t *testing.T) {
	items := testItems(1)
	bodies := Initialize(items, 1000, 800, &seqRand{vals: []float64{0.5, 0.25, 0.75, 0}})

	b := bodies[0]
	if !almostEqual(b.Position.X, 80+0.5*840) || !almostEqual(b.Position.Y, 80+0.25*640) {
		t.Errorf("position (%f,%f) does not follow x,y draw order", b.Position.X, b.Position.Y)
	}
	if !almostEqual(b.Velocity.X, 1) || !almostEqual(b.Velocity.Y, -2) {
		t.Errorf("velocity (%f,%f) does not follow vx,vy draw order", b.Velocity.X, b.Velocity.Y)
	}
	if b.Payload.Name != items[0].Name || len(b.Payload.Links) != 1 {
		t.Errorf("payload not carried through: %+v", b.Payload)
	}

	items[0].Links[0].Name = "mutated"
	if b.Payload.Links[0].Name != "Go" {
		t.Errorf("payload shares memory with the input item")
	}
}

func TestInitializeTinyArenaCentres(t *testing.T) {
	bodies := Initialize(testItems(1), 100, 0, &seqRand{vals: []float64{0.9}})
	if bodies[0].Position.X != 50 {
		t.Errorf("x=%f, want centred at 50", bodies[0].Position.X)
	}
	if bodies[0].Position.Y != 0 {
		t.Errorf("y=%f, want 0 for an unlaid-out axis", bodies[0].Position.Y)
	}
}

func TestElasticSwapAndSeparation(t *testing.T) {
	bodies := []Body{
		{ID: "a", Position: Vec2{X: 100, Y: 100}, Velocity: Vec2{X: 1, Y: 0}, Radius: 40},
		{ID: "b", Position: Vec2{X: 170, Y: 100}, Velocity: Vec2{X: -1, Y: 0}, Radius: 40},
	}

	resolveCollisions(bodies, "", nil)

	if !almostEqual(bodies[0].Velocity.X, -1) || !almostEqual(bodies[1].Velocity.X, 1) {
		t.Errorf("normal velocities not exchanged: a=%f b=%f", bodies[0].Velocity.X, bodies[1].Velocity.X)
	}
	if !almostEqual(bodies[0].Velocity.Y, 0) || !almostEqual(bodies[1].Velocity.Y, 0) {
		t.Errorf("tangential velocities changed: a=%f b=%f", bodies[0].Velocity.Y, bodies[1].Velocity.Y)
	}
	if !almostEqual(bodies[0].Position.X, 94.75) || !almostEqual(bodies[1].Position.X, 175.25) {
		t.Errorf("separation wrong: a.x=%f b.x=%f, want 94.75 and 175.25", bodies[0].Position.X, bodies[1].Position.X)
	}
	gap := bodies[1].Position.X - bodies[0].Position.X
	if !almostEqual(gap, 80.5) {
		t.Errorf("gap=%f, want 80.5 (70 + 10.5)", gap)
	}
}

func TestElasticCollisionKeepsTangentialComponent(t *testing.T) {
	// 45 degree contact: only the component along the normal is exchanged.
	bodies := []Body{
		{ID: "a", Position: Vec2{X: 0, Y: 0}, Velocity: Vec2{X: 1, Y: 0}, Radius: 40},
		{ID: "b", Position: Vec2{X: 50, Y: 50}, Velocity: Vec2{}, Radius: 40},
	}
	before := bodies[0].Velocity.Dot(bodies[0].Velocity) + bodies[1].Velocity.Dot(bodies[1].Velocity)

	resolveCollisions(bodies, "", nil)

	after := bodies[0].Velocity.Dot(bodies[0].Velocity) + bodies[1].Velocity.Dot(bodies[1].Velocity)
	if math.Abs(before-after) > 1e-9 {
		t.Errorf("kinetic energy changed: before=%f after=%f", before, after)
	}
	if !almostEqual(bodies[0].Velocity.X, 0.5) || !almostEqual(bodies[0].Velocity.Y, -0.5) {
		t.Errorf("a velocity=(%f,%f), want (0.5,-0.5)", bodies[0].Velocity.X, bodies[0].Velocity.Y)
	}
	if !almostEqual(bodies[1].Velocity.X, 0.5) || !almostEqual(bodies[1].Velocity.Y, 0.5) {
		t.Errorf("b velocity=(%f,%f), want (0.5,0.5)", bodies[1].Velocity.X, bodies[1].Velocity.Y)
	}
}

func TestNoInteractionAtContactDistance(t *testing.T) {
	bodies := []Body{
		{ID: "a", Position: Vec2{X: 100, Y: 100}, Velocity: Vec2{X: 1}, Radius: 40},
		{ID: "b", Position: Vec2{X: 180, Y: 100}, Velocity: Vec2{X: -1}, Radius: 40},
	}
	resolveCollisions(bodies, "", nil)
	if bodies[0].Velocity.X != 1 || bodies[1].Position.X != 180 {
		t.Errorf("bodies exactly touching should not interact: %+v", bodies)
	}
}

func TestCoincidentBodiesSeparateAlongX(t *testing.T) {
	bodies := []Body{
		{ID: "a", Position: Vec2{X: 300, Y: 300}, Radius: 40},
		{ID: "b", Position: Vec2{X: 300, Y: 300}, Radius: 40},
	}

	resolveCollisions(bodies, "", nil)

	for _, b := range bodies {
		if math.IsNaN(b.Position.X) || math.IsNaN(b.Position.Y) || math.IsNaN(b.Velocity.X) || math.IsNaN(b.Velocity.Y) {
			t.Fatalf("NaN after coincident collision: %+v", b)
		}
	}
	if !almostEqual(bodies[1].Position.X-bodies[0].Position.X, 80.5) {
		t.Errorf("coincident bodies separated by %f, want 80.5 along X", bodies[1].Position.X-bodies[0].Position.X)
	}
	if bodies[0].Position.Y != 300 || bodies[1].Position.Y != 300 {
		t.Errorf("coincident bodies moved off the X axis")
	}
}

func TestBoundaryClampScenario(t *testing.T) {
	b := Body{ID: "a", Position: Vec2{X: 38, Y: 100}, Velocity: Vec2{X: -3, Y: 0}, Radius: 40}

	if !resolveBoundary(&b, 1000, 800) {
		t.Fatalf("expected a wall hit")
	}
	if b.Position.X != 41 {
		t.Errorf("x=%f, want 41", b.Position.X)
	}
	if !almostEqual(b.Velocity.X, 2.7) {
		t.Errorf("vx=%f, want 2.7", b.Velocity.X)
	}
	if b.Position.Y != 100 || b.Velocity.Y != 0 {
		t.Errorf("y axis touched: y=%f vy=%f", b.Position.Y, b.Velocity.Y)
	}
}

func TestBoundaryAllWalls(t *testing.T) {
	cases := []struct {
		name   string
		pos    Vec2
		vel    Vec2
		wantP  Vec2
		wantVX float64
		wantVY float64
	}{
		{"right", Vec2{X: 990, Y: 400}, Vec2{X: 4, Y: 0}, Vec2{X: 959, Y: 400}, -3.6, 0},
		{"top", Vec2{X: 500, Y: 10}, Vec2{X: 0, Y: -2}, Vec2{X: 500, Y: 41}, 0, 1.8},
		{"bottom", Vec2{X: 500, Y: 790}, Vec2{X: 0, Y: 1}, Vec2{X: 500, Y: 759}, 0, -0.9},
		{"corner", Vec2{X: 5, Y: 795}, Vec2{X: -1, Y: 1}, Vec2{X: 41, Y: 759}, 0.9, -0.9},
		{"slow floor", Vec2{X: 30, Y: 400}, Vec2{X: -0.1, Y: 0}, Vec2{X: 41, Y: 400}, 0.5, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := Body{ID: "a", Position: tc.pos, Velocity: tc.vel, Radius: 40}
			resolveBoundary(&b, 1000, 800)
			if !almostEqual(b.Position.X, tc.wantP.X) || !almostEqual(b.Position.Y, tc.wantP.Y) {
				t.Errorf("position=(%f,%f), want (%f,%f)", b.Position.X, b.Position.Y, tc.wantP.X, tc.wantP.Y)
			}
			if !almostEqual(b.Velocity.X, tc.wantVX) || !almostEqual(b.Velocity.Y, tc.wantVY) {
				t.Errorf("velocity=(%f,%f), want (%f,%f)", b.Velocity.X, b.Velocity.Y, tc.wantVX, tc.wantVY)
			}
		})
	}
}

func TestBounceNeverGainsEnergyAndKeepsMinSpeed(t *testing.T) {
	for _, speed := range []float64{0.6, 1, 2.5, 7, 30} {
		b := Body{ID: "a", Position: Vec2{X: 20, Y: 400}, Velocity: Vec2{X: -speed}, Radius: 40}
		resolveBoundary(&b, 1000, 800)
		got := math.Abs(b.Velocity.X)
		if got > speed {
			t.Errorf("speed %f grew to %f after bounce", speed, got)
		}
		if got < MinBounceSpeed {
			t.Errorf("speed %f fell to %f, below the floor", speed, got)
		}
	}
}

func TestContainmentAfterBoundaryResolution(t *testing.T) {
	const width, height = 640.0, 480.0
	rng := rand.New(rand.NewPCG(7, 11))
	bodies := Initialize(testItems(12), width, height, rng)
	for i := range bodies {
		bodies[i].Velocity = bodies[i].Velocity.Times(5)
	}
	hovered := bodies[3].ID

	for tick := 0; tick < 600; tick++ {
		for i := range bodies {
			integrate(&bodies[i], isHovered(&bodies[i], hovered))
		}
		for i := range bodies {
			b := &bodies[i]
			if isHovered(b, hovered) {
				continue
			}
			resolveBoundary(b, width, height)
			r := b.EffectiveRadius()
			if b.Position.X < r || b.Position.X > width-r || b.Position.Y < r || b.Position.Y > height-r {
				t.Fatalf("tick %d: body %s at (%f,%f) escaped the arena", tick, b.ID, b.Position.X, b.Position.Y)
			}
		}
		resolveCollisions(bodies, hovered, nil)
	}
}

func TestDampingConverges(t *testing.T) {
	bodies := []Body{{ID: "a", Position: Vec2{X: 5e5, Y: 5e5}, Velocity: Vec2{X: 1, Y: 1}, Radius: 40}}

	prev := bodies[0].Velocity.Magnitude()
	for i := 0; i < 200; i++ {
		Tick(bodies, 1e6, 1e6, "")
		cur := bodies[0].Velocity.Magnitude()
		if cur >= prev {
			t.Fatalf("tick %d: speed %f did not decrease from %f", i, cur, prev)
		}
		prev = cur
	}
	want := math.Sqrt2 * math.Pow(Damping, 200)
	if math.Abs(prev-want) > 1e-9 {
		t.Errorf("speed after 200 ticks=%f, want %f", prev, want)
	}
}

func TestOverlapsSeparateOverAFewTicks(t *testing.T) {
	bodies := []Body{
		{ID: "a", Position: Vec2{X: 500, Y: 500}, Radius: 40},
		{ID: "b", Position: Vec2{X: 530, Y: 500}, Radius: 40},
		{ID: "c", Position: Vec2{X: 560, Y: 510}, Radius: 40},
		{ID: "d", Position: Vec2{X: 520, Y: 540}, Radius: 40},
	}

	for i := 0; i < 60; i++ {
		Tick(bodies, 2000, 2000, "")
	}

	for i := 0; i < len(bodies); i++ {
		for j := i + 1; j < len(bodies); j++ {
			d := bodies[j].Position.Minus(bodies[i].Position).Magnitude()
			if d < 80-0.5 {
				t.Errorf("bodies %s and %s still overlap: distance=%f", bodies[i].ID, bodies[j].ID, d)
			}
		}
	}
}

func TestHoveredBodyIsPinned(t *testing.T) {
	bodies := []Body{
		{ID: "h", Position: Vec2{X: 500, Y: 400}, Velocity: Vec2{X: 3, Y: 1}, Radius: 40},
		{ID: "n", Position: Vec2{X: 590, Y: 400}, Velocity: Vec2{X: -2, Y: 0}, Radius: 40},
		{ID: "m", Position: Vec2{X: 200, Y: 200}, Velocity: Vec2{X: 1, Y: 1}, Radius: 40},
	}

	Tick(bodies, 1000, 800, "h")
	if bodies[0].Position != (Vec2{X: 500, Y: 400}) {
		t.Fatalf("hovered body moved on its first pinned tick: %+v", bodies[0].Position)
	}
	if !bodies[0].Velocity.IsZero() {
		t.Fatalf("hovered body velocity not zeroed: %+v", bodies[0].Velocity)
	}

	for i := 0; i < 50; i++ {
		before := bodies[0]
		Tick(bodies, 1000, 800, "h")
		if bodies[0].Position != before.Position || bodies[0].Velocity != before.Velocity {
			t.Fatalf("tick %d: hovered body drifted from %+v to %+v", i, before, bodies[0])
		}
	}
}

func TestHoverRepulsionIsOneSided(t *testing.T) {
	t.Run("hovered first", func(t *testing.T) {
		h := Body{ID: "h", Position: Vec2{X: 500, Y: 500}, Radius: 40}
		c := Body{ID: "c", Position: Vec2{X: 600, Y: 500}, Velocity: Vec2{X: -1, Y: 0.5}, Radius: 40}
		hBefore := h

		resolvePair(&h, &c, "h", nil)

		if h.Position != hBefore.Position || h.Velocity != hBefore.Velocity || h.Radius != hBefore.Radius {
			t.Errorf("hovered body changed: %+v -> %+v", hBefore, h)
		}
		if !almostEqual(c.Position.X, 602) || !almostEqual(c.Position.Y, 500) {
			t.Errorf("pushed position=(%f,%f), want (602,500)", c.Position.X, c.Position.Y)
		}
		if !almostEqual(c.Velocity.X, 1) || !almostEqual(c.Velocity.Y, 0.5) {
			t.Errorf("pushed velocity=(%f,%f), want (1,0.5)", c.Velocity.X, c.Velocity.Y)
		}
	})

	t.Run("hovered second", func(t *testing.T) {
		c := Body{ID: "c", Position: Vec2{X: 500, Y: 400}, Radius: 40}
		h := Body{ID: "h", Position: Vec2{X: 500, Y: 500}, Radius: 40}
		hBefore := h

		resolvePair(&c, &h, "h", nil)

		if h.Position != hBefore.Position || h.Velocity != hBefore.Velocity || h.Radius != hBefore.Radius {
			t.Errorf("hovered body changed: %+v -> %+v", hBefore, h)
		}
		if !almostEqual(c.Position.Y, 398) || !almostEqual(c.Velocity.Y, -2) {
			t.Errorf("other body not pushed away upward: pos=%+v vel=%+v", c.Position, c.Velocity)
		}
	})

	t.Run("hover radius widens reach", func(t *testing.T) {
		a := Body{ID: "a", Position: Vec2{X: 500, Y: 500}, Radius: 40}
		b := Body{ID: "b", Position: Vec2{X: 600, Y: 500}, Radius: 40}

		resolvePair(&a, &b, "", nil)
		if b.Position.X != 600 {
			t.Fatalf("bodies 100px apart interacted without hover")
		}
		resolvePair(&a, &b, "a", nil)
		if b.Position.X == 600 {
			t.Fatalf("hovered radius did not reach a body 100px away")
		}
	})
}

func TestTickEdgeCases(t *testing.T) {
	if got := Tick(nil, 800, 600, ""); len(got) != 0 {
		t.Errorf("empty tick returned %d bodies", len(got))
	}

	bodies := []Body{
		{ID: "a", Position: Vec2{X: -10, Y: 5}, Velocity: Vec2{X: 1, Y: 1}, Radius: 40},
		{ID: "b", Position: Vec2{X: -10, Y: 5}, Velocity: Vec2{X: 1, Y: 1}, Radius: 40},
	}
	Tick(bodies, 0, 600, "")
	for _, b := range bodies {
		if b.Position.X != -9 || b.Position.Y != 6 {
			t.Errorf("unlaid-out arena: body %s at (%f,%f), want integration only (-9,6)", b.ID, b.Position.X, b.Position.Y)
		}
		if math.IsNaN(b.Position.X) {
			t.Fatalf("NaN with zero arena")
		}
	}
}

func TestTickDeterminism(t *testing.T) {
	run := func() []Body {
		bodies := Initialize(testItems(8), 900, 700, rand.New(rand.NewPCG(42, 42)))
		for i := 0; i < 300; i++ {
			hovered := ""
			if i >= 100 && i < 150 {
				hovered = bodies[2].ID
			}
			Tick(bodies, 900, 700, hovered)
		}
		return bodies
	}

	a, b := run(), run()
	for i := range a {
		if a[i].Position != b[i].Position || a[i].Velocity != b[i].Velocity {
			t.Errorf("non-deterministic body %s: %+v vs %+v", a[i].ID, a[i].Position, b[i].Position)
		}
	}
}
