package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseLocator splits scheme://bucket/key into its bucket and key.
func ParseLocator(locator string) (Locator, error) {
	scheme, rest, ok := strings.Cut(locator, "://")
	if !ok || scheme == "" {
		return Locator{}, fmt.Errorf("%w: missing scheme in %q", ErrMalformedLocator, locator)
	}

	bucket, key, ok := strings.Cut(rest, "/")
	if bucket == "" {
		return Locator{}, fmt.Errorf("%w: missing container in %q", ErrMalformedLocator, locator)
	}
	if !ok || key == "" {
		return Locator{}, fmt.Errorf("%w: missing object path in %q", ErrMalformedLocator, locator)
	}

	return Locator{Bucket: bucket, Key: key}, nil
}

func FormatPrompt(instruction string) string {
	return PromptPrefix + instruction + PromptSuffix
}

// ParseAnalysisRequest decodes and validates a queue message body.
func ParseAnalysisRequest(body string) (AnalysisRequest, error) {
	var msg AnalysisMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return AnalysisRequest{}, fmt.Errorf("%w: invalid JSON: %v", ErrMessageParse, err)
	}

	if msg.VideoS3URI == "" {
		return AnalysisRequest{}, fmt.Errorf("%w: video_s3_uri is required", ErrMessageParse)
	}
	if msg.Prompt == "" {
		return AnalysisRequest{}, fmt.Errorf("%w: prompt is required", ErrMessageParse)
	}

	field := msg.FieldName
	if field == "" {
		field = DefaultTargetField
	}
	errField, ok := ErrorFieldFor(field)
	if !ok {
		return AnalysisRequest{}, fmt.Errorf("%w: unsupported field_name %q", ErrMessageParse, field)
	}

	return AnalysisRequest{
		Locator:         msg.VideoS3URI,
		Instruction:     msg.Prompt,
		FormattedPrompt: FormatPrompt(msg.Prompt),
		TargetField:     field,
		ErrorField:      errField,
	}, nil
}
