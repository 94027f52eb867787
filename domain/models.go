package domain

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"sync"
)

// InboundMessage is a message received from the analysis queue
type InboundMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// AnalysisMessage is the wire format of the message body
type AnalysisMessage struct {
	VideoS3URI string `json:"video_s3_uri"`
	Prompt     string `json:"prompt"`
	FieldName  string `json:"field_name,omitempty"`
}

// AnalysisRequest is a validated AnalysisMessage
type AnalysisRequest struct {
	Locator         string
	Instruction     string
	FormattedPrompt string
	TargetField     string
	ErrorField      string
}

// Locator points to an object in the content store
type Locator struct {
	Bucket string
	Key    string
}

func (l Locator) String() string {
	return fmt.Sprintf("s3://%s/%s", l.Bucket, l.Key)
}

// RecordKey identifies an analysis record
type RecordKey struct {
	OwnerID   string
	ContentID string
}

func (k RecordKey) PartitionKey() string {
	return fmt.Sprintf(RecordPartitionKeyFormat, k.OwnerID)
}

func (k RecordKey) SortKey() string {
	return fmt.Sprintf(RecordSortKeyFormat, k.ContentID)
}

// ContentHandle is a downloaded object held in a local temp file.
// The file belongs to the invocation that fetched it and must be released.
type ContentHandle struct {
	LocalPath string
	OwnerID   string
	ContentID string

	once       sync.Once
	releaseErr error
}

func (h *ContentHandle) Key() RecordKey {
	return RecordKey{OwnerID: h.OwnerID, ContentID: h.ContentID}
}

// Release removes the local file. Only the first call touches the filesystem.
func (h *ContentHandle) Release() error {
	h.once.Do(func() {
		if err := os.Remove(h.LocalPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			h.releaseErr = fmt.Errorf("failed to remove %s: %w", h.LocalPath, err)
		}
	})
	return h.releaseErr
}

// Frame is one decoded video frame in the fixed pixel layout
type Frame struct {
	Index int
	Image *image.NRGBA
}

// FrameBatch holds frames ordered by source index
type FrameBatch struct {
	TotalFrames int
	Frames      []Frame
}

func (b FrameBatch) Indices() []int {
	indices := make([]int, len(b.Frames))
	for i, f := range b.Frames {
		indices[i] = f.Index
	}
	return indices
}

// FrameStream yields decoded frames in source order. Next and Skip return
// an error wrapping io.EOF after the last frame.
type FrameStream interface {
	TotalFrames() int
	Next() (image.Image, error)
	Skip() error
	Close() error
}

// AnalysisResult is a successful analysis as published to the search index
type AnalysisResult struct {
	MessageID    string
	VideoURI     string
	Key          RecordKey
	Field        string
	Instruction  string
	Result       string
	FrameIndices []int
}
