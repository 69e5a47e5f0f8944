package detection

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ResultKeyPrefix is the Result Store key convention: result:<task_id>.
const ResultKeyPrefix = "result:"

// ResultKey returns the Result Store key for taskID.
func ResultKey(taskID string) string {
	return ResultKeyPrefix + taskID
}

// Hit is one per-input classification reported by the worker.
type Hit struct {
	CharacterName string  `json:"character_name"`
	Confidence    float64 `json:"confidence"`
	ImageIndex    int     `json:"image_index"`
}

// Result is the record the worker pool writes at ResultKey(task_id).
type Result struct {
	Status           string  `json:"status"`
	Detections       []Hit   `json:"detections"`
	BestOverall      *Hit    `json:"best_overall"`
	TotalImages      int     `json:"total_images"`
	SuccessfulImages int     `json:"successful_images"`
	Error            *string `json:"error"`
}

// DecodeResult parses a Result Store payload. Any decoding problem, including
// an unknown worker status, is reported as ErrMalformedResult.
func DecodeResult(raw []byte) (Result, error) {
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}
	if _, ok := ParseWorkerStatus(res.Status); !ok {
		return Result{}, fmt.Errorf("%w: unknown status %q", ErrMalformedResult, res.Status)
	}
	return res, nil
}

// Fold derives the terminal outcome for rec from res. It is pure: the
// reconciler performs the read and the write around it. The boolean is false
// when nothing should be written, either because rec is not in progress or
// because the worker has not reached a terminal state.
func Fold(rec Record, res Result) (Outcome, bool) {
	if rec.Status != StatusInProgress {
		return Outcome{}, false
	}
	ws, ok := ParseWorkerStatus(res.Status)
	if !ok {
		return Outcome{}, false
	}
	status, terminal := ws.LedgerStatus()
	if !terminal {
		return Outcome{}, false
	}
	out := Outcome{Status: status, Primary: CharacterNone, Secondary: CharacterNone}
	if res.BestOverall != nil {
		out.Primary, _ = ParseCharacter(res.BestOverall.CharacterName)
	}
	out.Secondary = secondaryCharacter(res.Detections, out.Primary)
	return out, true
}

// UnknownLabels lists labels in res that are not part of the enumeration.
func UnknownLabels(res Result) []string {
	var out []string
	check := func(h Hit) {
		if h.CharacterName == "" {
			return
		}
		if _, ok := ParseCharacter(h.CharacterName); !ok {
			out = append(out, h.CharacterName)
		}
	}
	if res.BestOverall != nil {
		check(*res.BestOverall)
	}
	for _, h := range res.Detections {
		check(h)
	}
	return out
}

func secondaryCharacter(hits []Hit, primary Character) Character {
	if primary.IsNone() {
		return CharacterNone
	}
	sorted := make([]Hit, len(hits))
	copy(sorted, hits)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})
	for _, h := range sorted {
		c, ok := ParseCharacter(h.CharacterName)
		if !ok || c.IsNone() || c == primary {
			continue
		}
		return c
	}
	return CharacterNone
}
