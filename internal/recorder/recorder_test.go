package recorder

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calc/internal/host"
	"calc/internal/ledger"
	"calc/internal/obs"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Kind: KindResponse, Entry: host.EntryReply, Seq: 42, TsEvent: 7, TsRecv: 9, TraceID: 11}
	buf := make([]byte, headerSize)
	encodeHeader(buf, h, 123)

	got, size, err := decodeHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.Equal(t, uint32(123), size)

	testCases := []struct {
		desc   string
		mutate func([]byte)
		err    error
	}{
		{desc: "magic", mutate: func(b []byte) { b[0] = 'X' }, err: ErrInvalidMagic},
		{desc: "version", mutate: func(b []byte) { b[4] = 9 }, err: ErrUnsupportedVersion},
		{desc: "size", mutate: func(b []byte) { b[6] = 1 }, err: ErrInvalidHeaderSize},
		{desc: "kind", mutate: func(b []byte) { b[8] = 0 }, err: ErrUnknownKind},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			b := append([]byte(nil), buf...)
			tc.mutate(b)
			_, _, err := decodeHeader(b)
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func write(t *testing.T, dir string, frames ...frame) {
	t.Helper()
	w, err := NewWriter(Config{Dir: dir})
	require.NoError(t, err)
	require.ErrorIs(t, w.TryAppend(Header{Kind: KindRequest}, nil), ErrNotStarted)
	require.NoError(t, w.Start(context.Background()))
	for _, f := range frames {
		require.NoError(t, w.Append(context.Background(), f.header, f.payload))
	}
	require.NoError(t, w.Close())
	require.ErrorIs(t, w.TryAppend(Header{Kind: KindRequest}, nil), ErrClosed)
}

func segmentPath(t *testing.T, dir string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, defaultFilePrefix+"-*"+segmentSuffix))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	return matches[0]
}

func TestWriteRead(t *testing.T) {
	dir := t.TempDir()
	write(t, dir,
		frame{header: Header{Kind: KindRequest, Seq: 1}, payload: []byte("one")},
		frame{header: Header{Kind: KindResponse, Seq: 2}},
		frame{header: Header{Kind: KindRequest, Seq: 3}, payload: []byte("three")},
	)

	data, err := os.ReadFile(segmentPath(t, dir))
	require.NoError(t, err)

	r := NewReader(bytes.NewReader(data), ReaderOptions{})
	var seqs []uint64
	var payloads []string
	for {
		h, payload, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		seqs = append(seqs, h.Seq)
		payloads = append(payloads, string(payload))
	}
	assert.Equal(t, []uint64{1, 2, 3}, seqs)
	assert.Equal(t, []string{"one", "", "three"}, payloads)

	corrupt := append([]byte(nil), data...)
	corrupt[headerSize] ^= 0xff
	_, _, err = NewReader(bytes.NewReader(corrupt), ReaderOptions{}).Next()
	require.ErrorIs(t, err, ErrChecksumMismatch)

	_, _, err = NewReader(bytes.NewReader(corrupt), ReaderOptions{DisableChecksum: true}).Next()
	require.NoError(t, err)

	_, _, err = NewReader(bytes.NewReader(data[:headerSize+1]), ReaderOptions{}).Next()
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, _, err = NewReader(bytes.NewReader(data), ReaderOptions{MaxPayloadSize: 2}).Next()
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestPlaybackAfterSeq(t *testing.T) {
	dir := t.TempDir()
	write(t, dir,
		frame{header: Header{Kind: KindRequest, Seq: 1}},
		frame{header: Header{Kind: KindResponse, Seq: 2}},
		frame{header: Header{Kind: KindRequest, Seq: 3}},
	)

	p, err := NewPlayback(PlaybackConfig{Dir: dir, AfterSeq: 1})
	require.NoError(t, err)
	var seqs []uint64
	require.NoError(t, p.Run(context.Background(), func(h Header, _ []byte) error {
		seqs = append(seqs, h.Seq)
		return nil
	}))
	assert.Equal(t, []uint64{2, 3}, seqs)

	require.ErrorIs(t, p.Run(context.Background(), nil), ErrNilHandler)
	_, err = NewPlayback(PlaybackConfig{})
	require.Error(t, err)
}

func TestJournalReplay(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(Config{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	j := NewJournal(w, 10, obs.NewTraceGenerator(100))
	env := ledger.Env{Height: 5, Time: time.Unix(1_700_000_000, 0), Contract: "strategy"}
	ctx := context.Background()

	first := host.NewRequest(host.EntryExecute, "manager", env, nil)
	require.NoError(t, j.Record(ctx, first, host.Response{RequestID: first.ID}, time.Now()))
	second := host.NewRequest(host.EntryReply, "strategy", env, []byte(`{"id":1,"ok":true}`))
	require.NoError(t, j.Record(ctx, second, host.Response{RequestID: second.ID, Error: "rejected"}, time.Now()))
	assert.Equal(t, uint64(14), j.LastSeq())
	require.NoError(t, w.Close())

	p, err := NewPlayback(PlaybackConfig{Dir: dir})
	require.NoError(t, err)
	var got []Exchange
	require.NoError(t, Replay(ctx, p, func(x Exchange) error {
		got = append(got, x)
		return nil
	}))

	require.Len(t, got, 2)
	assert.Equal(t, uint64(12), got[0].Seq)
	assert.Equal(t, first.ID, got[0].Request.ID)
	assert.Equal(t, host.EntryExecute, got[0].Request.Entry)
	assert.False(t, got[0].Response.Failed())
	assert.Equal(t, uint64(14), got[1].Seq)
	assert.JSONEq(t, `{"id":1,"ok":true}`, string(got[1].Request.Body))
	assert.True(t, got[1].Response.Failed())
}
