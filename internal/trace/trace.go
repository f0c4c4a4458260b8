// Package trace records outbound keyboard events to a file so a session
// can be replayed or inspected later. Each record is a protobuf-encoded
// message behind a varint length prefix.
package trace

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/bnema/waykbd/internal/keymap"
	"github.com/bnema/waykbd/internal/logger"
	"github.com/bnema/waykbd/internal/wire"
	"google.golang.org/protobuf/encoding/protowire"
)

var log = logger.WithPrefix("trace")

var magic = []byte("WKBT\x01")

var (
	// ErrBadHeader means the file is not a trace or has an unknown version.
	ErrBadHeader = errors.New("trace: bad file header")
	// ErrCorrupt means a record could not be decoded.
	ErrCorrupt = errors.New("trace: corrupt record")
	// ErrClosed is returned when writing to a closed Writer.
	ErrClosed = errors.New("trace: writer closed")
)

// maxRecord bounds a single record so a corrupt length cannot allocate
// unbounded memory.
const maxRecord = 1 << 20

const (
	fieldAt protowire.Number = iota + 1
	fieldKind
	fieldClient
	fieldSerial
	fieldTime
	fieldSurface
	fieldKey
	fieldState
	fieldFormat
	fieldSize
	fieldKeys
	fieldDepressed
	fieldLatched
	fieldLocked
	fieldGroup
	fieldRate
	fieldDelay
)

// Record is one traced event. File descriptors are not recorded.
type Record struct {
	At    time.Time
	Event wire.Event
}

// Marshal encodes r without the length prefix.
func Marshal(r Record) []byte {
	var b []byte
	appendUint := func(n protowire.Number, v uint64) {
		if v == 0 {
			return
		}
		b = protowire.AppendTag(b, n, protowire.VarintType)
		b = protowire.AppendVarint(b, v)
	}
	appendInt := func(n protowire.Number, v int32) {
		if v == 0 {
			return
		}
		b = protowire.AppendTag(b, n, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(v)))
	}

	e := r.Event
	if !r.At.IsZero() {
		appendUint(fieldAt, uint64(r.At.UnixMicro()))
	}
	appendUint(fieldKind, uint64(e.Kind))
	appendUint(fieldClient, uint64(e.Client))
	appendUint(fieldSerial, uint64(e.Serial))
	appendUint(fieldTime, uint64(e.Time))
	appendUint(fieldSurface, uint64(e.Surface))
	appendUint(fieldKey, uint64(e.Key))
	appendUint(fieldState, uint64(e.State))
	appendUint(fieldFormat, uint64(e.Format))
	appendUint(fieldSize, uint64(e.Size))
	if len(e.Keys) > 0 {
		var packed []byte
		for _, k := range e.Keys {
			packed = protowire.AppendVarint(packed, uint64(k))
		}
		b = protowire.AppendTag(b, fieldKeys, protowire.BytesType)
		b = protowire.AppendBytes(b, packed)
	}
	appendUint(fieldDepressed, uint64(e.Mods.Depressed))
	appendUint(fieldLatched, uint64(e.Mods.Latched))
	appendUint(fieldLocked, uint64(e.Mods.Locked))
	appendUint(fieldGroup, uint64(e.Mods.Group))
	appendInt(fieldRate, e.Rate)
	appendInt(fieldDelay, e.Delay)
	return b
}

// Unmarshal decodes a record produced by Marshal. Unknown fields are
// skipped.
func Unmarshal(b []byte) (Record, error) {
	var (
		r    Record
		e    = &r.Event
		mods keymap.Modifiers
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Record{}, fmt.Errorf("%w: %v", ErrCorrupt, protowire.ParseError(n))
		}
		b = b[n:]

		if num == fieldKeys && typ == protowire.BytesType {
			packed, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Record{}, fmt.Errorf("%w: %v", ErrCorrupt, protowire.ParseError(n))
			}
			b = b[n:]
			for len(packed) > 0 {
				k, m := protowire.ConsumeVarint(packed)
				if m < 0 {
					return Record{}, fmt.Errorf("%w: %v", ErrCorrupt, protowire.ParseError(m))
				}
				packed = packed[m:]
				e.Keys = append(e.Keys, uint32(k))
			}
			continue
		}

		if typ != protowire.VarintType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Record{}, fmt.Errorf("%w: %v", ErrCorrupt, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}

		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return Record{}, fmt.Errorf("%w: %v", ErrCorrupt, protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case fieldAt:
			r.At = time.UnixMicro(int64(v))
		case fieldKind:
			e.Kind = wire.Kind(v)
		case fieldClient:
			e.Client = wire.ClientID(v)
		case fieldSerial:
			e.Serial = uint32(v)
		case fieldTime:
			e.Time = uint32(v)
		case fieldSurface:
			e.Surface = uint32(v)
		case fieldKey:
			e.Key = uint32(v)
		case fieldState:
			e.State = wire.KeyState(v)
		case fieldFormat:
			e.Format = wire.KeymapFormat(v)
		case fieldSize:
			e.Size = uint32(v)
		case fieldDepressed:
			mods.Depressed = uint32(v)
		case fieldLatched:
			mods.Latched = uint32(v)
		case fieldLocked:
			mods.Locked = uint32(v)
		case fieldGroup:
			mods.Group = uint32(v)
		case fieldRate:
			e.Rate = int32(protowire.DecodeZigZag(v))
		case fieldDelay:
			e.Delay = int32(protowire.DecodeZigZag(v))
		}
	}
	e.Mods = mods
	return r, nil
}

// Writer appends records to a trace stream.
type Writer struct {
	mu     sync.Mutex
	closer io.Closer
	buf    *bufio.Writer
	now    func() time.Time
	err    error
	closed bool
	count  int
}

// NewWriter writes the trace header to w and returns a Writer. If w is an
// io.Closer it is closed by Close.
func NewWriter(w io.Writer) (*Writer, error) {
	tw := &Writer{buf: bufio.NewWriter(w), now: time.Now}
	if c, ok := w.(io.Closer); ok {
		tw.closer = c
	}
	if _, err := tw.buf.Write(magic); err != nil {
		return nil, fmt.Errorf("failed to write trace header: %w", err)
	}
	return tw, nil
}

// Create truncates or creates the trace file at path.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace file: %w", err)
	}
	w, err := NewWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// Write appends e, stamped with the current time.
func (w *Writer) Write(e wire.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.err != nil {
		return w.err
	}

	rec := protowire.AppendBytes(nil, Marshal(Record{At: w.now(), Event: e}))
	if _, err := w.buf.Write(rec); err != nil {
		w.err = fmt.Errorf("failed to write trace record: %w", err)
		return w.err
	}
	w.count++
	return nil
}

// Sink adapts the writer to a wire.Sink. Write errors are logged once.
func (w *Writer) Sink() wire.Sink {
	var once sync.Once
	return func(e wire.Event) {
		if err := w.Write(e); err != nil && !errors.Is(err, ErrClosed) {
			once.Do(func() { log.Error("trace disabled", "err", err) })
		}
	}
}

// Count returns the number of records written.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Flush writes buffered records to the underlying writer.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	return w.buf.Flush()
}

// Close flushes and closes the trace. It returns the first write error.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	err := w.err
	if ferr := w.buf.Flush(); err == nil {
		err = ferr
	}
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Reader reads records from a trace stream.
type Reader struct {
	r      *bufio.Reader
	closer io.Closer
}

// NewReader checks the header of r and returns a Reader.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	header := make([]byte, len(magic))
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	if !bytes.Equal(header, magic) {
		return nil, ErrBadHeader
	}
	tr := &Reader{r: br}
	if c, ok := r.(io.Closer); ok {
		tr.closer = c
	}
	return tr, nil
}

// Open opens the trace file at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// Next returns the next record, or io.EOF at a clean end of stream.
func (r *Reader) Next() (Record, error) {
	length, err := binary.ReadUvarint(r.r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if length > maxRecord {
		return Record{}, fmt.Errorf("%w: record of %d bytes", ErrCorrupt, length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r.r, data); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return Unmarshal(data)
}

// All reads every remaining record.
func (r *Reader) All() ([]Record, error) {
	var out []Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

// Close closes the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
