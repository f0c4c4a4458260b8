package trace

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/bnema/waykbd/internal/keymap"
	"github.com/bnema/waykbd/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestMarshalRoundTrip(t *testing.T) {
	at := time.UnixMicro(1_700_000_000_123_456)
	tests := []struct {
		name  string
		event wire.Event
	}{
		{name: "enter", event: wire.Event{Kind: wire.KindEnter, Client: 3, Serial: 7, Surface: 12, Keys: []uint32{22, 30, 300}}},
		{name: "key", event: wire.Event{Kind: wire.KindKey, Client: 1, Serial: 8, Time: 4000, Key: 30, State: wire.KeyPressed}},
		{name: "modifiers", event: wire.Event{Kind: wire.KindModifiers, Serial: 9, Mods: keymap.Modifiers{Depressed: 1, Latched: 64, Locked: 2, Group: 1}}},
		{name: "repeat info", event: wire.Event{Kind: wire.KindRepeatInfo, Rate: 25, Delay: 600}},
		{name: "negative repeat", event: wire.Event{Kind: wire.KindRepeatInfo, Rate: -1, Delay: -600}},
		{name: "keymap", event: wire.Event{Kind: wire.KindKeymap, Format: wire.FormatXKBV1, Size: 48213}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Unmarshal(Marshal(Record{At: at, Event: tt.event}))
			require.NoError(t, err)
			assert.True(t, at.Equal(got.At))
			assert.Equal(t, tt.event, got.Event)
		})
	}
}

func TestMarshalDropsFD(t *testing.T) {
	got, err := Unmarshal(Marshal(Record{Event: wire.Event{Kind: wire.KindKeymap, FD: 9, Size: 10}}))
	require.NoError(t, err)
	assert.Zero(t, got.Event.FD)
	assert.True(t, got.At.IsZero())
}

func TestUnmarshalSkipsUnknownFields(t *testing.T) {
	b := Marshal(Record{Event: wire.Event{Kind: wire.KindLeave, Surface: 4}})
	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendString(b, "future")
	b = protowire.AppendTag(b, 100, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, 1)

	got, err := Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, wire.Event{Kind: wire.KindLeave, Surface: 4}, got.Event)
}

func TestUnmarshalCorrupt(t *testing.T) {
	b := Marshal(Record{Event: wire.Event{Kind: wire.KindKey, Key: 300}})
	_, err := Unmarshal(b[:len(b)-1])
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestWriterReader(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)

	tick := time.UnixMicro(1_000_000)
	w.now = func() time.Time {
		tick = tick.Add(time.Millisecond)
		return tick
	}

	sink := w.Sink()
	sink(wire.Event{Kind: wire.KindEnter, Serial: 1, Surface: 2})
	sink(wire.Event{Kind: wire.KindKey, Serial: 2, Key: 30, State: wire.KeyPressed})
	require.NoError(t, w.Write(wire.Event{Kind: wire.KindLeave, Serial: 3, Surface: 2}))
	assert.Equal(t, 3, w.Count())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Write(wire.Event{Kind: wire.KindKey}), ErrClosed)

	r, err := NewReader(&buf)
	require.NoError(t, err)
	records, err := r.All()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, wire.KindEnter, records[0].Event.Kind)
	assert.Equal(t, uint32(30), records[1].Event.Key)
	assert.Equal(t, wire.KindLeave, records[2].Event.Kind)
	assert.Equal(t, time.Millisecond, records[1].At.Sub(records[0].At))

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, r.Close())
}

func TestCreateOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.trace")
	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(wire.Event{Kind: wire.KindRepeatInfo, Rate: 30, Delay: 500}))
	require.NoError(t, w.Close())

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	rec, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, int32(30), rec.Event.Rate)
	assert.Equal(t, int32(500), rec.Event.Delay)
}

func TestReaderErrors(t *testing.T) {
	t.Run("bad header", func(t *testing.T) {
		_, err := NewReader(bytes.NewReader([]byte("nope!")))
		assert.ErrorIs(t, err, ErrBadHeader)
	})

	t.Run("short header", func(t *testing.T) {
		_, err := NewReader(bytes.NewReader([]byte("WK")))
		assert.ErrorIs(t, err, ErrBadHeader)
	})

	t.Run("truncated record", func(t *testing.T) {
		data := append([]byte(nil), magic...)
		data = protowire.AppendVarint(data, 10)
		data = append(data, 1, 2)

		r, err := NewReader(bytes.NewReader(data))
		require.NoError(t, err)
		_, err = r.Next()
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("oversized record", func(t *testing.T) {
		data := append([]byte(nil), magic...)
		data = protowire.AppendVarint(data, maxRecord+1)

		r, err := NewReader(bytes.NewReader(data))
		require.NoError(t, err)
		_, err = r.Next()
		assert.ErrorIs(t, err, ErrCorrupt)
	})
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriterStickyError(t *testing.T) {
	w, err := NewWriter(failingWriter{})
	require.NoError(t, err)

	big := wire.Event{Kind: wire.KindEnter, Keys: make([]uint32, 5000)}
	for i := range big.Keys {
		big.Keys[i] = 200
	}
	assert.Error(t, w.Write(big))
	assert.Error(t, w.Write(wire.Event{Kind: wire.KindKey}))
	assert.Error(t, w.Close())
}
