package repositories

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"analysis-worker/domain"
)

// FFmpegDecoder decodes local video files by piping raw RGB frames out of an
// ffmpeg process. Stream metadata comes from ffprobe.
type FFmpegDecoder struct {
	ffmpegPath  string
	ffprobePath string
}

func NewFFmpegDecoder(ffmpegPath, ffprobePath string) *FFmpegDecoder {
	return &FFmpegDecoder{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}
}

type probeInfo struct {
	width  int
	height int
	frames int
}

type probeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		NbFrames     string `json:"nb_frames"`
		NbReadFrames string `json:"nb_read_frames"`
	} `json:"streams"`
}

func (d *FFmpegDecoder) Open(ctx context.Context, path string) (domain.FrameStream, error) {
	info, err := d.probe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUnreadableMedia, err)
	}

	stream := &ffmpegStream{
		width:  info.width,
		height: info.height,
		total:  info.frames,
	}
	cmd := exec.CommandContext(ctx, d.ffmpegPath, ffmpegArgs(path)...)
	cmd.Stderr = &stream.stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg stdout: %w", domain.ErrUnreadableMedia, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start ffmpeg: %w", domain.ErrUnreadableMedia, err)
	}

	frameSize := info.width * info.height * 3
	stream.cmd = cmd
	stream.reader = bufio.NewReaderSize(stdout, frameSize)
	return stream, nil
}

// ffmpegArgs decodes the first video stream to raw rgb24 at its coded size.
// Autorotation is off so the output matches the size ffprobe reports.
func ffmpegArgs(path string) []string {
	return []string{
		"-v", "error",
		"-noautorotate",
		"-i", path,
		"-map", "0:v:0",
		"-vsync", "passthrough",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	}
}

func (d *FFmpegDecoder) probe(ctx context.Context, path string) (probeInfo, error) {
	info, err := d.runProbe(ctx, path, "stream=width,height,nb_frames")
	if err != nil {
		return probeInfo{}, err
	}
	if info.frames > 0 {
		return info, nil
	}

	// containers without a frame count in the header need a full count
	info, err = d.runProbe(ctx, path, "stream=width,height,nb_read_frames", "-count_frames")
	if err != nil {
		return probeInfo{}, err
	}
	return info, nil
}

func (d *FFmpegDecoder) runProbe(ctx context.Context, path, entries string, extra ...string) (probeInfo, error) {
	args := []string{"-v", "error", "-select_streams", "v:0"}
	args = append(args, extra...)
	args = append(args, "-show_entries", entries, "-of", "json", path)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.ffprobePath, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return probeInfo{}, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}
	return parseProbeOutput(out)
}

func parseProbeOutput(data []byte) (probeInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return probeInfo{}, fmt.Errorf("failed to decode ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return probeInfo{}, errors.New("no video stream")
	}

	s := out.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return probeInfo{}, fmt.Errorf("invalid frame size %dx%d", s.Width, s.Height)
	}

	info := probeInfo{width: s.Width, height: s.Height}
	if n, err := strconv.Atoi(s.NbReadFrames); err == nil {
		info.frames = n
	} else if n, err := strconv.Atoi(s.NbFrames); err == nil {
		info.frames = n
	}
	return info, nil
}

type ffmpegStream struct {
	cmd    *exec.Cmd
	reader io.Reader
	stderr bytes.Buffer
	buf    []byte
	width  int
	height int
	total  int

	waitOnce sync.Once
	waitErr  error
}

func (s *ffmpegStream) TotalFrames() int {
	return s.total
}

// Next reads one rgb24 frame. A truncated trailing frame is treated as the
// end of the stream.
func (s *ffmpegStream) Next() (image.Image, error) {
	if err := s.read(); err != nil {
		return nil, err
	}
	return rgb24ToNRGBA(s.buf, s.width, s.height), nil
}

// Skip discards one frame without converting it.
func (s *ffmpegStream) Skip() error {
	return s.read()
}

func (s *ffmpegStream) read() error {
	if s.buf == nil {
		s.buf = make([]byte, s.width*s.height*3)
	}
	if _, err := io.ReadFull(s.reader, s.buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return s.endOfStream()
		}
		return err
	}
	return nil
}

// endOfStream reaps ffmpeg once its output is drained. A failed exit still
// reports io.EOF, carrying ffmpeg's stderr.
func (s *ffmpegStream) endOfStream() error {
	if s.cmd == nil {
		return io.EOF
	}
	if err := s.wait(); err != nil {
		return fmt.Errorf("%w: ffmpeg %v: %s", io.EOF, err, strings.TrimSpace(s.stderr.String()))
	}
	return io.EOF
}

func (s *ffmpegStream) wait() error {
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
	})
	return s.waitErr
}

func (s *ffmpegStream) Close() error {
	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	_ = s.cmd.Process.Kill()
	_ = s.wait()
	return nil
}

func rgb24ToNRGBA(buf []byte, width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i, j := 0, 0; i+2 < len(buf); i, j = i+3, j+4 {
		img.Pix[j] = buf[i]
		img.Pix[j+1] = buf[i+1]
		img.Pix[j+2] = buf[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}
