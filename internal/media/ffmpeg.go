package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// FFmpegPath is the binary used for container video formats.
var FFmpegPath = "ffmpeg"

// FFmpegAvailable reports whether FFmpegPath resolves to an executable.
func FFmpegAvailable() bool {
	_, err := exec.LookPath(FFmpegPath)
	return err == nil
}

// ffmpegReader decodes a container video by having ffmpeg re-emit it as
// Motion-JPEG on stdout.
type ffmpegReader struct {
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	stderr  *bytes.Buffer
	mjpeg   *MJPEGReader
	once    sync.Once
	waitErr error
}

func openFFmpegReader(ctx context.Context, path string) (*ffmpegReader, error) {
	cmd := exec.CommandContext(ctx, FFmpegPath,
		"-nostdin", "-v", "error",
		"-i", path,
		"-f", "image2pipe", "-c:v", "mjpeg", "-q:v", "2",
		"-",
	)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	return &ffmpegReader{cmd: cmd, stdout: stdout, stderr: stderr, mjpeg: NewMJPEGReader(stdout)}, nil
}

func (r *ffmpegReader) Next() (image.Image, error) {
	img, err := r.mjpeg.Next()
	if !errors.Is(err, io.EOF) {
		return img, err
	}
	// A clean end of the pipe still means failure if ffmpeg could not read
	// the input at all.
	if werr := r.wait(); werr != nil {
		return nil, fmt.Errorf("%w: ffmpeg: %v: %s", ErrCorruptFrame, werr, strings.TrimSpace(r.stderr.String()))
	}
	return nil, io.EOF
}

func (r *ffmpegReader) wait() error {
	r.once.Do(func() {
		r.waitErr = r.cmd.Wait()
	})
	return r.waitErr
}

func (r *ffmpegReader) Close() error {
	_ = r.stdout.Close()
	if r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
	}
	_ = r.wait()
	return nil
}

// ffmpegWriter encodes frames as Motion-JPEG into ffmpeg's stdin, which
// transcodes them into the container named by the output extension.
type ffmpegWriter struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *bytes.Buffer
	mjpeg  *MJPEGWriter
}

func openFFmpegWriter(ctx context.Context, path string, opts FrameOptions) (*ffmpegWriter, error) {
	cmd := exec.CommandContext(ctx, FFmpegPath,
		"-nostdin", "-v", "error", "-y",
		"-f", "image2pipe", "-c:v", "mjpeg", "-framerate", strconv.Itoa(opts.FPS),
		"-i", "pipe:0",
		"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2",
		"-pix_fmt", "yuv420p",
		path,
	)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	return &ffmpegWriter{cmd: cmd, stdin: stdin, stderr: stderr, mjpeg: NewMJPEGWriter(stdin, opts.Quality)}, nil
}

func (w *ffmpegWriter) WriteFrame(img image.Image) error {
	return w.mjpeg.WriteFrame(img)
}

func (w *ffmpegWriter) Close() error {
	cerr := w.mjpeg.Close()
	if err := w.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(w.stderr.String()))
	}
	return cerr
}
