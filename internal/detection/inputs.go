package detection

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultThumbnailTemplate = "https://vz-clips.b-cdn.net/{video_id}/thumbnail_{n}.jpg"
	DefaultThumbnailCount    = 5
)

// InputTemplate derives a clip's input references from its stable video id.
// {video_id} is replaced by the id and {n} by the 1-based frame number.
type InputTemplate struct {
	pattern string
	count   int
}

func NewInputTemplate(pattern string, count int) (InputTemplate, error) {
	if strings.TrimSpace(pattern) == "" {
		pattern = DefaultThumbnailTemplate
	}
	if !strings.Contains(pattern, "{video_id}") {
		return InputTemplate{}, fmt.Errorf("input template %q has no {video_id} placeholder", pattern)
	}
	if count < 1 || count > MaxInputs {
		return InputTemplate{}, fmt.Errorf("input count %d outside 1..%d", count, MaxInputs)
	}
	if count > 1 && !strings.Contains(pattern, "{n}") {
		return InputTemplate{}, fmt.Errorf("input template %q needs {n} for %d references", pattern, count)
	}
	return InputTemplate{pattern: pattern, count: count}, nil
}

// Refs returns the references for videoID, in frame order.
func (t InputTemplate) Refs(videoID string) []string {
	refs := make([]string, 0, t.count)
	base := strings.ReplaceAll(t.pattern, "{video_id}", videoID)
	for i := 1; i <= t.count; i++ {
		refs = append(refs, strings.ReplaceAll(base, "{n}", strconv.Itoa(i)))
	}
	return refs
}
