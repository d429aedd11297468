package planning

import (
	"math/big"
	"time"

	"github.com/hylla/waypoint/internal/domain"
)

// LinkedTask is one task contributing to a milestone's automatic progress.
type LinkedTask struct {
	TaskID    string
	Weight    int
	Completed bool
}

// LinkedTasksFromStatuses derives completion flags from task statuses.
func LinkedTasksFromStatuses(in []domain.LinkedTaskStatus) []LinkedTask {
	out := make([]LinkedTask, 0, len(in))
	for _, t := range in {
		out = append(out, LinkedTask{
			TaskID:    t.TaskID,
			Weight:    t.Weight,
			Completed: t.Status.IsCompleted(),
		})
	}
	return out
}

// ProgressResult carries a progress value and any task ids whose weight had to be floored.
type ProgressResult struct {
	Value             int
	DegenerateTaskIDs []string
}

// EffectiveProgress returns the milestone completion in [0,100].
func EffectiveProgress(m domain.Milestone, tasks []LinkedTask) int {
	return ComputeProgress(m, tasks).Value
}

// ComputeProgress returns the milestone completion together with degenerate input warnings.
// Manual milestones report their clamped percentage. Automatic milestones report
// round(100 * completed weight / total weight), rounding halves up; weights <= 0 count as 1.
func ComputeProgress(m domain.Milestone, tasks []LinkedTask) ProgressResult {
	if m.ProgressMode == domain.ProgressModeManual {
		return ProgressResult{Value: clampPercent(m.ProgressPercentage)}
	}
	var (
		res       ProgressResult
		total     = new(big.Int)
		completed = new(big.Int)
	)
	for _, t := range tasks {
		w := int64(t.Weight)
		if w <= 0 {
			w = 1
			res.DegenerateTaskIDs = append(res.DegenerateTaskIDs, t.TaskID)
		}
		bw := big.NewInt(w)
		total.Add(total, bw)
		if t.Completed {
			completed.Add(completed, bw)
		}
	}
	if total.Sign() == 0 {
		return res
	}
	// Sums are unbounded, so round half up in big arithmetic.
	num := new(big.Int).Mul(completed, big.NewInt(200))
	num.Add(num, total)
	den := new(big.Int).Lsh(total, 1)
	res.Value = clampPercent(int(num.Quo(num, den).Int64()))
	return res
}

// IsOverdue reports whether m is past due and not completed. Progress plays no part.
func IsOverdue(m domain.Milestone, now time.Time) bool {
	return m.IsOverdue(now)
}

func clampPercent(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
