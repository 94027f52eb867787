package domain

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocator(t *testing.T) {
	loc, err := ParseLocator("s3://bucket/a/b/c")
	assert.NoError(t, err)
	assert.Equal(t, "bucket", loc.Bucket)
	assert.Equal(t, "a/b/c", loc.Key)
	assert.Equal(t, "s3://bucket/a/b/c", loc.String())
}

func TestParseLocator_Malformed(t *testing.T) {
	for _, locator := range []string{
		"s3://bucket",
		"s3://bucket/",
		"s3:///key",
		"bucket/key",
		"://bucket/key",
		"",
	} {
		_, err := ParseLocator(locator)
		assert.ErrorIs(t, err, ErrMalformedLocator, locator)
	}
}

func TestFormatPrompt(t *testing.T) {
	assert.Equal(t, "USER: <video>\ndescribe ASSISTANT:", FormatPrompt("describe"))
}

func TestParseAnalysisRequest(t *testing.T) {
	req, err := ParseAnalysisRequest(`{"video_s3_uri":"s3://b/k","prompt":"describe","field_name":"summaryResult"}`)
	assert.NoError(t, err)
	assert.Equal(t, "s3://b/k", req.Locator)
	assert.Equal(t, "describe", req.Instruction)
	assert.Equal(t, PromptPrefix+"describe"+PromptSuffix, req.FormattedPrompt)
	assert.Equal(t, "summaryResult", req.TargetField)
	assert.Equal(t, "summaryError", req.ErrorField)
}

func TestParseAnalysisRequest_DefaultField(t *testing.T) {
	req, err := ParseAnalysisRequest(`{"video_s3_uri":"s3://b/k","prompt":"what happens?"}`)
	assert.NoError(t, err)
	assert.Equal(t, FieldPromptResult, req.TargetField)
	assert.Equal(t, FieldPromptError, req.ErrorField)
}

func TestParseAnalysisRequest_Invalid(t *testing.T) {
	cases := map[string]string{
		"invalid json":   `{"video_s3_uri":`,
		"missing uri":    `{"prompt":"describe"}`,
		"missing prompt": `{"video_s3_uri":"s3://b/k"}`,
		"empty prompt":   `{"video_s3_uri":"s3://b/k","prompt":""}`,
		"unmapped field": `{"video_s3_uri":"s3://b/k","prompt":"p","field_name":"titleResult"}`,
		"not an object":  `"hello"`,
		"wrong type":     `{"video_s3_uri":1,"prompt":"p"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAnalysisRequest(body)
			assert.ErrorIs(t, err, ErrMessageParse)
		})
	}
}

func TestErrorFieldFor(t *testing.T) {
	f, ok := ErrorFieldFor("promptResult")
	assert.True(t, ok)
	assert.Equal(t, "promptError", f)

	f, ok = ErrorFieldFor("summaryResult")
	assert.True(t, ok)
	assert.Equal(t, "summaryError", f)

	_, ok = ErrorFieldFor("transcriptResult")
	assert.False(t, ok)
}

func TestRecordKey(t *testing.T) {
	key := RecordKey{OwnerID: "u1", ContentID: "v1"}
	assert.Equal(t, "$main#userId_u1", key.PartitionKey())
	assert.Equal(t, "$user#videos_1#id_v1", key.SortKey())
}

func TestContentHandle_Release(t *testing.T) {
	path := filepath.Join(t.TempDir(), "video.mp4")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o600))

	h := &ContentHandle{LocalPath: path, OwnerID: "u1", ContentID: "v1"}
	assert.NoError(t, h.Release())
	assert.NoFileExists(t, path)

	// Second release is a no-op
	assert.NoError(t, h.Release())
	assert.Equal(t, RecordKey{OwnerID: "u1", ContentID: "v1"}, h.Key())
}

func TestInferenceTimeoutIsInferenceFailure(t *testing.T) {
	assert.ErrorIs(t, ErrInferenceTimeout, ErrInferenceFailure)
	assert.NotErrorIs(t, ErrInferenceFailure, ErrInferenceTimeout)
}
