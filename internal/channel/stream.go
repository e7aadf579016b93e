package channel

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"
)

// MaxFrame caps a single message.
const MaxFrame = 64 << 20

var ErrFrameTooLarge = errors.New("frame exceeds size limit")

// WriteFrame writes v as JSON preceded by its length as a 4-byte
// little-endian integer.
func WriteFrame(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if len(body) > MaxFrame {
		return ErrFrameTooLarge
	}
	buf := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[4:], body)
	_, err = w.Write(buf)
	return err
}

// ReadFrame reads one frame into v. It returns io.EOF when r ends cleanly
// between frames.
func ReadFrame(r io.Reader, v any) error {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return err
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	if n > MaxFrame {
		return ErrFrameTooLarge
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("read frame body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	return nil
}

// Serve answers framed requests from r on w until r is exhausted. Requests
// are handled concurrently; responses carry the request's Seq.
func Serve(ctx context.Context, r io.Reader, w io.Writer, h *Handler) error {
	g, gctx := errgroup.WithContext(ctx)
	var wmu sync.Mutex

	for {
		var req Request
		err := ReadFrame(r, &req)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = g.Wait()
			return err
		}
		g.Go(func() error {
			resp := h.Handle(gctx, req)
			wmu.Lock()
			defer wmu.Unlock()
			return WriteFrame(w, resp)
		})
	}
	return g.Wait()
}

// Stream is a Transport over a framed byte stream, such as the stdio of a
// host process running Serve. Responses are matched to requests by Seq, so
// calls may overlap.
type Stream struct {
	w   io.Writer
	wmu sync.Mutex

	mu      sync.Mutex
	seq     uint64
	pending map[uint64]chan Response
	done    chan struct{}
	err     error
}

// NewStream starts reading responses from r.
func NewStream(r io.Reader, w io.Writer) *Stream {
	s := &Stream{w: w, pending: map[uint64]chan Response{}, done: make(chan struct{})}
	go s.readLoop(r)
	return s
}

func (s *Stream) readLoop(r io.Reader) {
	var err error
	for {
		var resp Response
		if err = ReadFrame(r, &resp); err != nil {
			break
		}
		s.mu.Lock()
		ch, ok := s.pending[resp.Seq]
		delete(s.pending, resp.Seq)
		s.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	s.mu.Lock()
	s.err = fmt.Errorf("channel closed: %w", err)
	s.mu.Unlock()
	close(s.done)
}

func (s *Stream) RoundTrip(ctx context.Context, req Request) (Response, error) {
	ch := make(chan Response, 1)
	s.mu.Lock()
	s.seq++
	req.Seq = s.seq
	s.pending[req.Seq] = ch
	s.mu.Unlock()

	forget := func() {
		s.mu.Lock()
		delete(s.pending, req.Seq)
		s.mu.Unlock()
	}

	s.wmu.Lock()
	err := WriteFrame(s.w, req)
	s.wmu.Unlock()
	if err != nil {
		forget()
		return Response{}, fmt.Errorf("send %s: %w", req.Action, err)
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		forget()
		return Response{}, ctx.Err()
	case <-s.done:
		forget()
		s.mu.Lock()
		defer s.mu.Unlock()
		return Response{}, s.err
	}
}
