package tilecache

// Rectangle is an integer axis-aligned region in buffer coordinates.
type Rectangle struct {
	X, Y, W, H int
}

// NewRectangle constructs a Rectangle from its components.
func NewRectangle(x, y, w, h int) Rectangle {
	return Rectangle{X: x, Y: y, W: w, H: h}
}

// Empty reports whether r has no area.
func (r Rectangle) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Contains reports whether r fully contains other.
func (r Rectangle) Contains(other Rectangle) bool {
	if other.Empty() {
		return true
	}
	return other.X >= r.X && other.Y >= r.Y &&
		other.X+other.W <= r.X+r.W &&
		other.Y+other.H <= r.Y+r.H
}

// Intersects reports whether r and other share any area.
func (r Rectangle) Intersects(other Rectangle) bool {
	if r.Empty() || other.Empty() {
		return false
	}
	return r.X < other.X+other.W && other.X < r.X+r.W &&
		r.Y < other.Y+other.H && other.Y < r.Y+r.H
}

// Intersect returns the overlapping region of r and other. The result is
// empty (W or H <= 0) if they do not overlap.
func (r Rectangle) Intersect(other Rectangle) Rectangle {
	x1 := max(r.X, other.X)
	y1 := max(r.Y, other.Y)
	x2 := min(r.X+r.W, other.X+other.W)
	y2 := min(r.Y+r.H, other.Y+other.H)
	if x2 <= x1 || y2 <= y1 {
		return Rectangle{}
	}
	return Rectangle{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}
}

// Equal reports whether r and other describe the same region.
func (r Rectangle) Equal(other Rectangle) bool {
	return r.X == other.X && r.Y == other.Y && r.W == other.W && r.H == other.H
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
