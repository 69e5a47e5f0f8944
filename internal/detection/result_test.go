package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeResult(t *testing.T) {
	res, err := DecodeResult([]byte(wraithResult))
	require.NoError(t, err)
	assert.Equal(t, "completed", res.Status)
	require.NotNil(t, res.BestOverall)
	assert.Equal(t, "wraith", res.BestOverall.CharacterName)
	assert.Equal(t, 5, res.TotalImages)
	assert.Equal(t, 4, res.SuccessfulImages)
	assert.Nil(t, res.Error)

	for _, raw := range []string{`not json`, `{"status": "exploded"}`, `{}`} {
		_, err := DecodeResult([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformedResult, raw)
	}
}

func TestFold(t *testing.T) {
	inProgress := Record{ClipID: "c", TaskID: "t", Status: StatusInProgress}

	out, ok := Fold(inProgress, Result{
		Status:      "completed",
		BestOverall: &Hit{CharacterName: "bloodhound", Confidence: 0.8},
		Detections: []Hit{
			{CharacterName: "bloodhound", Confidence: 0.8},
			{CharacterName: "mirage", Confidence: 0.4},
			{CharacterName: "seer", Confidence: 0.6},
		},
	})
	require.True(t, ok)
	assert.Equal(t, Outcome{Status: StatusCompleted, Primary: CharacterBloodhound, Secondary: CharacterSeer}, out)

	out, ok = Fold(inProgress, Result{Status: "completed", Detections: []Hit{{CharacterName: "seer", Confidence: 0.2}}})
	require.True(t, ok)
	assert.Equal(t, Outcome{Status: StatusCompleted, Primary: CharacterNone, Secondary: CharacterNone}, out)

	_, ok = Fold(inProgress, Result{Status: "processing"})
	assert.False(t, ok)

	done := inProgress
	done.Status = StatusCompleted
	_, ok = Fold(done, Result{Status: "completed"})
	assert.False(t, ok, "terminal records are never re-folded")
}

func TestUnknownLabels(t *testing.T) {
	res := Result{
		BestOverall: &Hit{CharacterName: "chief"},
		Detections:  []Hit{{CharacterName: "wraith"}, {CharacterName: ""}, {CharacterName: "arbiter"}},
	}
	assert.Equal(t, []string{"chief", "arbiter"}, UnknownLabels(res))
	assert.Equal(t, "result:abc", ResultKey("abc"))
}

func TestInputTemplate(t *testing.T) {
	tmpl, err := NewInputTemplate("https://cdn.example/{video_id}/thumbnail_{n}.jpg", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://cdn.example/v/thumbnail_1.jpg",
		"https://cdn.example/v/thumbnail_2.jpg",
	}, tmpl.Refs("v"))

	single, err := NewInputTemplate("https://cdn.example/{video_id}/thumbnail.jpg", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn.example/v/thumbnail.jpg"}, single.Refs("v"))

	def, err := NewInputTemplate("", DefaultThumbnailCount)
	require.NoError(t, err)
	assert.Len(t, def.Refs("v"), DefaultThumbnailCount)
	assert.NoError(t, ValidateInputs(def.Refs("v")))

	_, err = NewInputTemplate("https://cdn.example/static.jpg", 1)
	assert.Error(t, err)
	_, err = NewInputTemplate("https://cdn.example/{video_id}.jpg", 3)
	assert.Error(t, err)
	_, err = NewInputTemplate("https://cdn.example/{video_id}/{n}.jpg", MaxInputs+1)
	assert.Error(t, err)
}
