package capture

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/your-org/vms/internal/models"
	"github.com/your-org/vms/internal/observability"
)

// FFmpegOpener opens camera sources by piping them through ffmpeg as MJPEG.
type FFmpegOpener struct {
	FFmpegPath  string        // default "ffmpeg"
	YtDlpPath   string        // default "yt-dlp"
	Width       int           // output width; height keeps aspect ratio
	ReadTimeout time.Duration // live sources only; default 10s
}

func (o FFmpegOpener) Open(ctx context.Context, cfg models.CameraConfig) (FrameSource, error) {
	if o.FFmpegPath == "" {
		o.FFmpegPath = "ffmpeg"
	}
	if o.YtDlpPath == "" {
		o.YtDlpPath = "yt-dlp"
	}
	if o.Width <= 0 {
		o.Width = 640
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 10 * time.Second
	}

	input, err := o.inputArgs(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s := &FFmpegSource{
		cameraID:    cfg.CameraID,
		finite:      cfg.SourceKind.Finite(),
		binary:      o.FFmpegPath,
		readTimeout: o.ReadTimeout,
		args:        append(input, outputArgs(cfg.TargetFPS, o.Width)...),
	}
	if err := s.start(); err != nil {
		return nil, err
	}
	return s, nil
}

func (o FFmpegOpener) inputArgs(ctx context.Context, cfg models.CameraConfig) ([]string, error) {
	args := []string{"-hide_banner", "-loglevel", "warning"}

	switch cfg.SourceKind {
	case models.SourceWebcam:
		idx, err := strconv.Atoi(cfg.Source)
		if err != nil {
			return nil, fmt.Errorf("webcam index %q: %w", cfg.Source, err)
		}
		switch runtime.GOOS {
		case "darwin":
			args = append(args, "-f", "avfoundation", "-i", strconv.Itoa(idx))
		default:
			dev := fmt.Sprintf("/dev/video%d", idx)
			if _, err := os.Stat(dev); err != nil {
				return nil, fmt.Errorf("open webcam: %w", err)
			}
			args = append(args, "-f", "v4l2", "-i", dev)
		}

	case models.SourceFile:
		if _, err := os.Stat(cfg.Source); err != nil {
			return nil, fmt.Errorf("open video file: %w", err)
		}
		// Read at native rate so playback matches wall-clock time.
		args = append(args, "-re", "-i", cfg.Source)

	case models.SourceNetwork:
		src := cfg.Source
		if isYouTube(src) {
			resolved, err := resolveYouTube(ctx, o.YtDlpPath, src)
			if err != nil {
				return nil, fmt.Errorf("resolve youtube url: %w", err)
			}
			src = resolved
		}
		switch {
		case strings.HasPrefix(src, "rtsp://"), strings.HasPrefix(src, "rtsps://"):
			args = append(args,
				"-rtsp_transport", "tcp",
				"-timeout", "5000000", // microseconds
			)
		case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
			args = append(args,
				"-reconnect", "1",
				"-reconnect_streamed", "1",
				"-reconnect_delay_max", "5",
				"-timeout", "10000000",
			)
		}
		args = append(args, "-i", src)

	default:
		return nil, fmt.Errorf("unsupported source kind %q", cfg.SourceKind)
	}
	return args, nil
}

func outputArgs(fps float64, width int) []string {
	return []string{
		"-an",
		"-vf", fmt.Sprintf("fps=%s,scale=%d:-2", strconv.FormatFloat(max(fps, 1), 'f', -1, 64), width),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"pipe:1",
	}
}

type rawFrame struct {
	data []byte
	at   time.Time
}

// ffmpegProc is one running ffmpeg process and its stdout reader.
type ffmpegProc struct {
	cancel context.CancelFunc
	frames chan rawFrame
	done   chan struct{}
	err    error // valid after done is closed
}

// FFmpegSource reads frames from an ffmpeg child process. Live sources keep only
// the newest frame so a slow consumer never sees stale pictures; file sources are
// read at the consumer's pace.
type FFmpegSource struct {
	cameraID    string
	finite      bool
	binary      string
	args        []string
	readTimeout time.Duration

	mu     sync.Mutex
	proc   *ffmpegProc
	closed bool
	seq    uint64
}

func (s *FFmpegSource) start() error {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, s.binary, s.args...)
	cmd.Stderr = &stderrLogger{cameraID: s.cameraID}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	p := &ffmpegProc{
		cancel: cancel,
		frames: make(chan rawFrame, 1),
		done:   make(chan struct{}),
	}
	go s.pump(ctx, p, cmd, stdout)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		stopProc(p)
		return ErrClosed
	}
	s.proc = p
	s.mu.Unlock()

	slog.Debug("ffmpeg started", "camera_id", s.cameraID, "pid", cmd.Process.Pid)
	return nil
}

// pump moves scanned JPEGs into p.frames until stdout ends, then reaps the process.
func (s *FFmpegSource) pump(ctx context.Context, p *ffmpegProc, cmd *exec.Cmd, stdout io.Reader) {
	defer close(p.done)
	defer close(p.frames)

	sc := newJPEGScanner(stdout)
	for sc.Scan() {
		f := rawFrame{data: bytes.Clone(sc.Bytes()), at: time.Now()}
		if !s.deliver(ctx, p, f) {
			break
		}
	}

	// Stop ffmpeg if we quit early; Wait needs stdout to be drained or the process gone.
	p.cancel()
	waitErr := cmd.Wait()
	if err := sc.Err(); err != nil {
		p.err = fmt.Errorf("read frames: %w", err)
	} else if waitErr != nil && ctx.Err() == nil {
		p.err = fmt.Errorf("ffmpeg exited: %w", waitErr)
	}
}

func (s *FFmpegSource) deliver(ctx context.Context, p *ffmpegProc, f rawFrame) bool {
	if s.finite {
		select {
		case p.frames <- f:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case p.frames <- f:
			return true
		case <-ctx.Done():
			return false
		default:
		}
		// Drop the stale frame waiting in the buffer.
		select {
		case <-p.frames:
			observability.FramesDropped.WithLabelValues(s.cameraID).Inc()
		default:
		}
	}
}

func (s *FFmpegSource) current() (*ffmpegProc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.proc, nil
}

// Read blocks for the next frame. A finite source returns io.EOF at its end. A
// live source that dropped is restarted and ErrReconnecting returned so the caller
// can pause before reading again.
func (s *FFmpegSource) Read(ctx context.Context) (Frame, error) {
	p, err := s.current()
	if err != nil {
		return Frame{}, err
	}

	var timeout <-chan time.Time
	if !s.finite {
		t := time.NewTimer(s.readTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case raw, ok := <-p.frames:
		if !ok {
			return Frame{}, s.ended(p)
		}
		img, err := jpeg.Decode(bytes.NewReader(raw.data))
		if err != nil {
			return Frame{}, fmt.Errorf("%w: %w", ErrBadFrame, err)
		}
		s.mu.Lock()
		s.seq++
		seq := s.seq
		s.mu.Unlock()
		return Frame{Seq: seq, Timestamp: raw.at, Image: img, JPEG: raw.data}, nil

	case <-timeout:
		return Frame{}, ErrReadTimeout
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (s *FFmpegSource) ended(p *ffmpegProc) error {
	<-p.done
	if p.err != nil {
		slog.Warn("ffmpeg stream ended", "camera_id", s.cameraID, "error", p.err)
	}
	if s.finite {
		return io.EOF
	}
	if err := s.restart(); err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	return ErrReconnecting
}

// Rewind restarts ffmpeg so a file source plays from the beginning.
func (s *FFmpegSource) Rewind(context.Context) error {
	return s.restart()
}

func (s *FFmpegSource) restart() error {
	p, err := s.current()
	if err != nil {
		return err
	}
	stopProc(p)
	return s.start()
}

// Close kills ffmpeg and waits for the reader to exit.
func (s *FFmpegSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	p := s.proc
	s.mu.Unlock()

	stopProc(p)
	slog.Debug("ffmpeg stopped", "camera_id", s.cameraID)
	return nil
}

func stopProc(p *ffmpegProc) {
	if p == nil {
		return
	}
	p.cancel()
	<-p.done
}

// stderrLogger forwards ffmpeg diagnostics to slog line by line.
type stderrLogger struct {
	cameraID string
	buf      []byte
}

func (l *stderrLogger) Write(b []byte) (int, error) {
	l.buf = append(l.buf, b...)
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			break
		}
		if line := strings.TrimSpace(string(l.buf[:i])); line != "" {
			slog.Warn("ffmpeg stderr", "camera_id", l.cameraID, "output", line)
		}
		l.buf = l.buf[i+1:]
	}
	return len(b), nil
}

var _ FrameSource = (*FFmpegSource)(nil)
