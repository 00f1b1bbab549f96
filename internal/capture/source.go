// Package capture turns camera configurations into streams of decoded frames.
package capture

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/your-org/vms/internal/models"
)

var (
	// ErrClosed is returned by Read after Close.
	ErrClosed = errors.New("frame source closed")
	// ErrReconnecting reports a dropped live feed that is being re-opened.
	ErrReconnecting = errors.New("live source dropped, reconnecting")
	// ErrReadTimeout reports that no frame arrived within the read deadline.
	ErrReadTimeout = errors.New("no frame within read timeout")
	// ErrBadFrame reports one undecodable frame. The stream itself is intact.
	ErrBadFrame = errors.New("undecodable frame")
)

// Frame is one decoded picture from a camera.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Image     image.Image
	JPEG      []byte
}

// FrameSource yields frames from one opened camera. A finite source reports the
// end of its content with io.EOF and can be rewound. Close must release every
// resource the source holds and is safe to call more than once.
type FrameSource interface {
	Read(ctx context.Context) (Frame, error)
	Rewind(ctx context.Context) error
	Close() error
}

// Opener opens the frame source described by a camera configuration.
type Opener interface {
	Open(ctx context.Context, cfg models.CameraConfig) (FrameSource, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, cfg models.CameraConfig) (FrameSource, error)

func (f OpenerFunc) Open(ctx context.Context, cfg models.CameraConfig) (FrameSource, error) {
	return f(ctx, cfg)
}
