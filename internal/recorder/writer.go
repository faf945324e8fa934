package recorder

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"calc/internal/errors"
)

var (
	ErrQueueFull       = errors.New("journal: queue full")
	ErrClosed          = errors.New("journal: writer closed")
	ErrNotStarted      = errors.New("journal: writer not started")
	ErrAlreadyStarted  = errors.New("journal: writer already started")
	ErrPayloadTooLarge = errors.New("journal: payload too large")
)

const maxPayloadLen = uint64(^uint32(0))

type frame struct {
	header  Header
	payload []byte
}

// Writer appends records to rotating segment files from a buffered queue.
// Records are written in the order they were queued.
type Writer struct {
	cfg Config
	ch  chan frame
	wg  sync.WaitGroup
	err atomic.Value

	started atomic.Bool
	closed  atomic.Bool
}

// NewWriter creates a writer and ensures the target directory exists.
func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create journal dir %s", cfg.Dir)
	}
	return &Writer{cfg: cfg, ch: make(chan frame, cfg.QueueSize)}, nil
}

// Start runs the writer loop in a new goroutine.
func (w *Writer) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
	return nil
}

// Close stops accepting records, writes what is queued and closes the
// current segment.
func (w *Writer) Close() error {
	if w.closed.CompareAndSwap(false, true) {
		close(w.ch)
	}
	w.wg.Wait()
	return w.Err()
}

// Err returns the first error observed by the writer, if any.
func (w *Writer) Err() error {
	if v := w.err.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func (w *Writer) check(payload []byte) error {
	switch {
	case w.closed.Load():
		return ErrClosed
	case !w.started.Load():
		return ErrNotStarted
	case uint64(len(payload)) > maxPayloadLen:
		return ErrPayloadTooLarge
	}
	return w.Err()
}

// TryAppend queues a record without blocking.
func (w *Writer) TryAppend(header Header, payload []byte) error {
	if err := w.check(payload); err != nil {
		return err
	}
	select {
	case w.ch <- frame{header: header, payload: payload}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Append queues a record, waiting for room until ctx is done.
func (w *Writer) Append(ctx context.Context, header Header, payload []byte) error {
	if err := w.check(payload); err != nil {
		return err
	}
	select {
	case w.ch <- frame{header: header, payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func ticker(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(d)
	return t.C, t.Stop
}

func (w *Writer) run(ctx context.Context) {
	var (
		seg    *segment
		nextID uint64
		buf    = make([]byte, headerSize+checksumSize)
	)
	flushC, stopFlush := ticker(w.cfg.FlushInterval)
	syncC, stopSync := ticker(w.cfg.SyncInterval)
	defer func() {
		stopFlush()
		stopSync()
		w.setErr(seg.close())
	}()

	write := func(f frame) bool {
		now := time.Now().UTC()
		size := int64(headerSize + len(f.payload) + checksumSize)
		if w.rotate(seg, now, size) {
			err := seg.close()
			seg = nil
			if err != nil {
				w.setErr(err)
				return false
			}
			opened, err := w.open(&nextID, now)
			if err != nil {
				w.setErr(err)
				return false
			}
			seg = opened
		}
		if err := seg.write(buf, f); err != nil {
			w.setErr(err)
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case f, ok := <-w.ch:
					if !ok || !write(f) {
						return
					}
				default:
					return
				}
			}
		case f, ok := <-w.ch:
			if !ok || !write(f) {
				return
			}
		case <-flushC:
			if err := seg.flush(); err != nil {
				w.setErr(err)
				return
			}
		case <-syncC:
			if err := seg.sync(); err != nil {
				w.setErr(err)
				return
			}
		}
	}
}

func (w *Writer) rotate(seg *segment, now time.Time, next int64) bool {
	if seg == nil {
		return true
	}
	if seg.size+next > w.cfg.SegmentMaxBytes {
		return true
	}
	return w.cfg.SegmentMaxDuration > 0 && now.Sub(seg.openedAt) >= w.cfg.SegmentMaxDuration
}

func (w *Writer) open(nextID *uint64, now time.Time) (*segment, error) {
	stamp := now.Format("20060102-150405")
	for {
		*nextID++
		path := filepath.Join(w.cfg.Dir, fmt.Sprintf("%s-%s-%06d%s", w.cfg.FilePrefix, stamp, *nextID, segmentSuffix))
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "open segment %s", path)
		}
		return &segment{file: file, buf: bufio.NewWriterSize(file, w.cfg.BufferSize), openedAt: now}, nil
	}
}

func (w *Writer) setErr(err error) {
	if err == nil || w.err.Load() != nil {
		return
	}
	w.err.Store(err)
}

type segment struct {
	file     *os.File
	buf      *bufio.Writer
	size     int64
	openedAt time.Time
}

// write frames f as header, payload, checksum. scratch holds the header and
// the checksum.
func (s *segment) write(scratch []byte, f frame) error {
	header, sum := scratch[:headerSize], scratch[headerSize:]
	encodeHeader(header, f.header, len(f.payload))
	binary.LittleEndian.PutUint32(sum, checksum(header, f.payload))
	for _, part := range [][]byte{header, f.payload, sum} {
		if _, err := s.buf.Write(part); err != nil {
			return err
		}
	}
	s.size += int64(len(header) + len(f.payload) + len(sum))
	return nil
}

func (s *segment) flush() error {
	if s == nil {
		return nil
	}
	return s.buf.Flush()
}

func (s *segment) sync() error {
	if s == nil {
		return nil
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	return s.file.Sync()
}

func (s *segment) close() error {
	if s == nil {
		return nil
	}
	if err := s.sync(); err != nil {
		_ = s.file.Close()
		return err
	}
	return s.file.Close()
}
