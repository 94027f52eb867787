package services

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"analysis-worker/domain"
)

type VideoDecoder interface {
	Open(ctx context.Context, path string) (domain.FrameStream, error)
}

// FrameSampler picks evenly spaced frames from a video and converts them to
// the fixed layout expected by the inference engine.
type FrameSampler struct {
	decoder VideoDecoder
	width   int
	height  int
	logger  *zap.Logger
}

func NewFrameSampler(decoder VideoDecoder, width, height int, logger *zap.Logger) *FrameSampler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FrameSampler{
		decoder: decoder,
		width:   width,
		height:  height,
		logger:  logger,
	}
}

// SampleIndices returns count indices evenly spaced over [0, total-1], both
// ends included. When the video has fewer frames than requested every index
// is returned.
func SampleIndices(total, count int) []int {
	if total <= 0 || count <= 0 {
		return []int{}
	}
	if total < count {
		count = total
	}
	if count == 1 {
		return []int{0}
	}

	indices := make([]int, count)
	for k := 0; k < count; k++ {
		indices[k] = k * (total - 1) / (count - 1)
	}
	return indices
}

func (s *FrameSampler) Sample(ctx context.Context, handle *domain.ContentHandle, count int) (domain.FrameBatch, error) {
	stream, err := s.decoder.Open(ctx, handle.LocalPath)
	if err != nil {
		if errors.Is(err, domain.ErrUnreadableMedia) {
			return domain.FrameBatch{}, err
		}
		return domain.FrameBatch{}, fmt.Errorf("%w: %w", domain.ErrUnreadableMedia, err)
	}
	defer stream.Close()

	total := stream.TotalFrames()
	if total <= 0 {
		return domain.FrameBatch{}, fmt.Errorf("%w: video has no frames", domain.ErrUnreadableMedia)
	}

	indices := SampleIndices(total, count)
	batch := domain.FrameBatch{
		TotalFrames: total,
		Frames:      make([]domain.Frame, 0, len(indices)),
	}

	next := 0
	var endErr error
	for pos := 0; next < len(indices); pos++ {
		if err := ctx.Err(); err != nil {
			return domain.FrameBatch{}, fmt.Errorf("sampling interrupted: %w", err)
		}

		if pos != indices[next] {
			if err := stream.Skip(); err != nil {
				if errors.Is(err, io.EOF) {
					endErr = err
					break
				}
				return domain.FrameBatch{}, fmt.Errorf("%w: failed to decode frame %d: %w", domain.ErrUnreadableMedia, pos, err)
			}
			continue
		}

		img, err := stream.Next()
		if errors.Is(err, io.EOF) {
			endErr = err
			break
		}
		if err != nil {
			return domain.FrameBatch{}, fmt.Errorf("%w: failed to decode frame %d: %w", domain.ErrUnreadableMedia, pos, err)
		}

		batch.Frames = append(batch.Frames, domain.Frame{Index: pos, Image: s.normalize(img)})
		next++
	}

	if len(batch.Frames) == 0 {
		return domain.FrameBatch{}, fmt.Errorf("%w: stream ended before the first sampled frame: %v", domain.ErrUnreadableMedia, endErr)
	}
	if next < len(indices) {
		s.logger.Warn("video ended before all sampled frames were decoded",
			zap.String("path", handle.LocalPath),
			zap.Int("reported_frames", total),
			zap.Int("sampled", len(batch.Frames)),
			zap.Int("requested", len(indices)),
			zap.Error(endErr),
		)
	}

	return batch, nil
}

func (s *FrameSampler) normalize(img image.Image) *image.NRGBA {
	return imaging.Resize(img, s.width, s.height, imaging.Lanczos)
}
