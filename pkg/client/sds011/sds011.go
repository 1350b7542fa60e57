// Package sds011 drives a Nova SDS011 particulate sensor in query mode over a
// serial port.
package sds011

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

const (
	head = 0xAA
	tail = 0xAB

	cmdHost  = 0xB4
	replyPM  = 0xC0
	replyCmd = 0xC5

	cmdReportingMode = 0x02
	cmdQuery         = 0x04
	cmdWorkMode      = 0x06

	requestLen = 19
	replyLen   = 10

	maxSkippedFrames = 8
)

// Error is a driver error. Temporary errors come from contention or a torn
// frame and are expected to clear on their own.
type Error struct {
	msg       string
	temporary bool
}

func (e *Error) Error() string   { return e.msg }
func (e *Error) Temporary() bool { return e.temporary }

var (
	ErrBusy     = &Error{msg: "sds011: port busy", temporary: true}
	ErrTimeout  = &Error{msg: "sds011: read timeout", temporary: true}
	ErrChecksum = &Error{msg: "sds011: checksum mismatch", temporary: true}
	ErrFrame    = &Error{msg: "sds011: unexpected frame", temporary: true}
	ErrClosed   = &Error{msg: "sds011: port closed"}
)

type Sensor struct {
	port        io.ReadWriter
	closer      io.Closer
	readTimeout time.Duration

	// port holds a token while an exchange owns the serial line. Callers
	// wait up to readTimeout for it before giving up with ErrBusy.
	token  chan struct{}
	closed bool
}

// Open connects to the sensor at 9600 baud.
func Open(name string, readTimeout time.Duration) (*Sensor, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        9600,
		ReadTimeout: readTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}

	s := New(port, readTimeout)
	s.closer = port
	return s, nil
}

func New(port io.ReadWriter, readTimeout time.Duration) *Sensor {
	if readTimeout <= 0 {
		readTimeout = 2 * time.Second
	}
	return &Sensor{
		port:        port,
		readTimeout: readTimeout,
		token:       make(chan struct{}, 1),
	}
}

// Query requests one measurement and returns PM2.5 and PM10 in µg/m³.
func (s *Sensor) Query(ctx context.Context) (float64, float64, error) {
	frame, err := s.exchange(ctx, cmdQuery, nil, replyPM)
	if err != nil {
		return 0, 0, err
	}

	fine := float64(int(frame[3])<<8|int(frame[2])) / 10
	coarse := float64(int(frame[5])<<8|int(frame[4])) / 10
	return fine, coarse, nil
}

// Wake switches the fan and laser on (sleep=false) or off.
func (s *Sensor) Wake(ctx context.Context, awake bool) error {
	mode := byte(0)
	if awake {
		mode = 1
	}
	_, err := s.exchange(ctx, cmdWorkMode, []byte{1, mode}, replyCmd)
	return err
}

// SetQueryMode stops active reporting so frames arrive only on request.
func (s *Sensor) SetQueryMode(ctx context.Context) error {
	_, err := s.exchange(ctx, cmdReportingMode, []byte{1, 1}, replyCmd)
	return err
}

func (s *Sensor) Close() error {
	if err := s.acquire(context.Background()); err != nil {
		return err
	}
	defer s.release()

	s.closed = true
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func (s *Sensor) exchange(ctx context.Context, cmd byte, args []byte, reply byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	if s.closed {
		return nil, ErrClosed
	}

	if _, err := s.port.Write(request(cmd, args)); err != nil {
		return nil, fmt.Errorf("sds011: write command %#x: %w", cmd, err)
	}

	deadline := time.Now().Add(s.readTimeout)
	for skipped := 0; skipped < maxSkippedFrames; skipped++ {
		frame, err := s.readFrame(deadline)
		if err != nil {
			return nil, err
		}
		if frame[1] != reply {
			continue
		}
		if reply == replyCmd && frame[2] != cmd {
			continue
		}
		return frame, nil
	}
	return nil, ErrFrame
}

// acquire takes the port, queueing behind the exchange in progress for at
// most readTimeout.
func (s *Sensor) acquire(ctx context.Context) error {
	select {
	case s.token <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(s.readTimeout)
	defer timer.Stop()

	select {
	case s.token <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrBusy
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sensor) release() {
	<-s.token
}

func request(cmd byte, args []byte) []byte {
	buf := make([]byte, requestLen)
	buf[0] = head
	buf[1] = cmdHost
	buf[2] = cmd
	copy(buf[3:15], args)
	// Target every device.
	buf[15] = 0xFF
	buf[16] = 0xFF
	buf[17] = checksum(buf[2:17])
	buf[18] = tail
	return buf
}

func (s *Sensor) readFrame(deadline time.Time) ([]byte, error) {
	var b byte
	var err error
	for b != head {
		if b, err = s.readByte(deadline); err != nil {
			return nil, err
		}
	}

	frame := make([]byte, replyLen)
	frame[0] = head
	for i := 1; i < replyLen; i++ {
		if frame[i], err = s.readByte(deadline); err != nil {
			return nil, err
		}
	}

	if frame[replyLen-1] != tail {
		return nil, ErrFrame
	}
	if checksum(frame[2:8]) != frame[8] {
		return nil, ErrChecksum
	}
	return frame, nil
}

func (s *Sensor) readByte(deadline time.Time) (byte, error) {
	var b [1]byte
	for {
		n, err := s.port.Read(b[:])
		if n == 1 {
			return b[0], nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("sds011: read: %w", err)
		}
		if time.Now().After(deadline) {
			return 0, ErrTimeout
		}
	}
}

func checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}
