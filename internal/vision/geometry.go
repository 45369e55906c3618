package vision

// IoU computes intersection-over-union for two boxes. Degenerate boxes
// (zero or negative area) contribute zero overlap so they never win a
// match.
func IoU(a, b Box) float64 {
	if !a.Valid() || !b.Valid() {
		return 0
	}

	x1 := max(a.X1, b.X1)
	y1 := max(a.Y1, b.Y1)
	x2 := min(a.X2, b.X2)
	y2 := min(a.Y2, b.Y2)

	interW := max(0.0, x2-x1)
	interH := max(0.0, y2-y1)
	inter := interW * interH
	if inter <= 0 {
		return 0
	}

	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// CenterDist computes the Euclidean distance between two box centres.
func CenterDist(a, b Box) float64 {
	return a.Center().Dist(b.Center())
}

// predictBox extrapolates the next position of a track from its last two
// observed boxes using a constant-velocity step. With fewer than two
// observations the velocity is zero and the last box is returned as is.
func predictBox(prev, last Box, hasPrev bool) Box {
	if !hasPrev {
		return last
	}
	dx := last.X1 - prev.X1
	dy := last.Y1 - prev.Y1
	dx2 := last.X2 - prev.X2
	dy2 := last.Y2 - prev.Y2
	return Box{
		X1: last.X1 + dx,
		Y1: last.Y1 + dy,
		X2: last.X2 + dx2,
		Y2: last.Y2 + dy2,
	}
}

// clamp01 restricts v to [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
