package vision

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Assigner solves the track-to-detection association problem. Rows of the
// input matrices are tracks (predicted boxes), columns are detections. The
// returned slice maps track index to detection index, or -1 if the track
// is left unmatched this frame.
//
// A pair is acceptable only if IoU ≥ iouThreshold OR centre distance ≤
// distThreshold (an "or" gate). Both implementations must honour it.
type Assigner interface {
	Assign(iou, dist [][]float64) []int
}

// assignmentCosts holds the gating and fusion parameters shared by both
// assigner implementations.
type assignmentCosts struct {
	IoUWeight     float64 // Weight of the IoU term in the fused cost
	IoUThreshold  float64
	DistThreshold float64
}

// fusedCost builds the combined cost matrix
//
//	w·(1−IoU) + (1−w)·clamp(dist/distThreshold, 0, 1)
//
// with pairs failing the acceptance gate set to a forbidden cost. The
// matrix algebra mirrors the similarity-fusion step of the batch IoU
// pipeline: costs are assembled as dense matrices and combined elementwise.
func (c assignmentCosts) fusedCost(iou, dist [][]float64) [][]float64 {
	rows := len(iou)
	if rows == 0 {
		return nil
	}
	cols := len(iou[0])
	if cols == 0 {
		return nil
	}

	iouM := mat.NewDense(rows, cols, nil)
	distM := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		iouM.SetRow(i, iou[i])
		distM.SetRow(i, dist[i])
	}

	fused := mat.NewDense(rows, cols, nil)
	fused.Apply(func(i, j int, _ float64) float64 {
		ov := iouM.At(i, j)
		dv := distM.At(i, j)
		if ov < c.IoUThreshold && dv > c.DistThreshold {
			return forbiddenCost
		}
		norm := clamp01(dv / c.DistThreshold)
		return c.IoUWeight*(1-ov) + (1-c.IoUWeight)*norm
	}, fused)

	out := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		out[i] = fused.RawRowView(i)
	}
	return out
}

// HungarianAssigner solves the association exactly as a minimum-cost
// bipartite matching over the fused cost matrix.
type HungarianAssigner struct {
	assignmentCosts
}

// Assign implements Assigner.
func (a *HungarianAssigner) Assign(iou, dist [][]float64) []int {
	cost := a.fusedCost(iou, dist)
	if cost == nil {
		result := make([]int, len(iou))
		for i := range result {
			result[i] = -1
		}
		return result
	}
	return hungarianAssign(cost)
}

// GreedyAssigner is the two-phase fallback matcher: first pair greedily by
// highest IoU while IoU ≥ IoUThreshold, then pair the remainder greedily by
// smallest centre distance while distance ≤ DistThreshold. It is selected
// by configuration and exists so deployments can avoid the O(n³) exact
// solver; the degradation is silent.
type GreedyAssigner struct {
	assignmentCosts
}

type candidatePair struct {
	track, det int
	score      float64
}

// Assign implements Assigner.
func (a *GreedyAssigner) Assign(iou, dist [][]float64) []int {
	rows := len(iou)
	result := make([]int, rows)
	for i := range result {
		result[i] = -1
	}
	if rows == 0 || len(iou[0]) == 0 {
		return result
	}
	cols := len(iou[0])

	trackUsed := make([]bool, rows)
	detUsed := make([]bool, cols)

	// Phase 1: highest IoU first.
	var byIoU []candidatePair
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if iou[i][j] >= a.IoUThreshold {
				byIoU = append(byIoU, candidatePair{i, j, iou[i][j]})
			}
		}
	}
	sort.Slice(byIoU, func(x, y int) bool { return byIoU[x].score > byIoU[y].score })
	for _, p := range byIoU {
		if trackUsed[p.track] || detUsed[p.det] {
			continue
		}
		result[p.track] = p.det
		trackUsed[p.track] = true
		detUsed[p.det] = true
	}

	// Phase 2: smallest centre distance among the remainder.
	var byDist []candidatePair
	for i := 0; i < rows; i++ {
		if trackUsed[i] {
			continue
		}
		for j := 0; j < cols; j++ {
			if detUsed[j] {
				continue
			}
			if dist[i][j] <= a.DistThreshold {
				byDist = append(byDist, candidatePair{i, j, dist[i][j]})
			}
		}
	}
	sort.Slice(byDist, func(x, y int) bool { return byDist[x].score < byDist[y].score })
	for _, p := range byDist {
		if trackUsed[p.track] || detUsed[p.det] {
			continue
		}
		result[p.track] = p.det
		trackUsed[p.track] = true
		detUsed[p.det] = true
	}

	return result
}
