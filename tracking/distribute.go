package tracking

import (
	"math"

	"github.com/golang/geo/r2"
)

// DistributeKeypointPairs bounds a candidate match set by spatial spread of
// its destination keypoints. Destination positions are normalized to their
// unit bounding square and bucketed into a gridSize x gridSize grid; the first
// pair landing in each cell is kept. A well-spread subset conditions the
// subsequent homography fit far better than the same number of clustered
// matches.
func DistributeKeypointPairs(pairs []KeypointPair, gridSize int) []KeypointPair {
	if gridSize <= 0 || len(pairs) <= 1 {
		return pairs
	}

	minPt := r2.Point{X: math.MaxFloat64, Y: math.MaxFloat64}
	maxPt := r2.Point{X: -math.MaxFloat64, Y: -math.MaxFloat64}
	for _, p := range pairs {
		pos := p.Destination.Position
		minPt.X = math.Min(minPt.X, pos.X)
		minPt.Y = math.Min(minPt.Y, pos.Y)
		maxPt.X = math.Max(maxPt.X, pos.X)
		maxPt.Y = math.Max(maxPt.Y, pos.Y)
	}

	spanX := maxPt.X - minPt.X
	spanY := maxPt.Y - minPt.Y
	if spanX < 1e-9 || spanY < 1e-9 {
		// All destinations collapse onto a line or a point; one representative
		// is as good as any.
		return pairs[:1]
	}

	occupied := make(map[int]struct{}, gridSize*gridSize)
	kept := make([]KeypointPair, 0, gridSize*gridSize)
	for _, p := range pairs {
		pos := p.Destination.Position
		cx := int((pos.X - minPt.X) / spanX * float64(gridSize))
		cy := int((pos.Y - minPt.Y) / spanY * float64(gridSize))
		if cx >= gridSize {
			cx = gridSize - 1
		}
		if cy >= gridSize {
			cy = gridSize - 1
		}
		cell := cy*gridSize + cx
		if _, ok := occupied[cell]; ok {
			continue
		}
		occupied[cell] = struct{}{}
		kept = append(kept, p)
	}
	return kept
}
