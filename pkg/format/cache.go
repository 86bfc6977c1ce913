package format

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/eunmann/dist-s1-trigger/pkg/refdb"
)

// DigestSize is the size of the source digest stored in a cache file.
const DigestSize = 32

// maxStringLen bounds decoded strings so a corrupt length cannot trigger a
// huge allocation.
const maxStringLen = 1 << 16

// Snapshot is the cached form of a burst catalog.
//
// Layout: Header (uncompressed), then a zstd stream holding the source
// digest, the rows, the serialized MPHF and the burst keys in index order.
type Snapshot struct {
	// Digest identifies the reference table the snapshot was built from.
	Digest [DigestSize]byte
	Rows   []refdb.Row
	Index  *KeyIndex
}

// WriteSnapshot encodes s to w.
func WriteSnapshot(w io.Writer, s Snapshot) error {
	h := Header{
		Magic:   MagicNumber,
		Version: Version,
		Count:   uint64(len(s.Rows)),
		Keys:    uint32(s.Index.Len()),
	}
	if _, err := w.Write(EncodeHeader(h)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("create zstd encoder: %w", err)
	}
	bw := bufio.NewWriter(enc)
	e := encoder{w: bw}

	e.bytes(s.Digest[:])
	for _, row := range s.Rows {
		e.string(row.TileID)
		e.uvarint(uint64(row.AcqGroup))
		e.string(row.BurstID)
	}

	mph, err := s.Index.marshalMPHF()
	if err != nil {
		enc.Close()
		return fmt.Errorf("marshal MPHF: %w", err)
	}
	e.uvarint(uint64(len(mph)))
	e.bytes(mph)
	for _, k := range s.Index.Keys() {
		e.string(k)
	}

	if e.err != nil {
		enc.Close()
		return fmt.Errorf("write body: %w", e.err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return fmt.Errorf("flush buffer: %w", err)
	}
	// Close finalizes the zstd stream
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close compressor: %w", err)
	}
	return nil
}

// ReadSnapshot decodes a snapshot written by WriteSnapshot. Truncated or
// damaged input returns an error wrapping ErrCorrupt, ErrInvalidHeader,
// ErrMagicMismatch or ErrVersionMismatch.
func ReadSnapshot(r io.Reader) (Snapshot, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	h, err := DecodeHeader(buf)
	if err != nil {
		return Snapshot{}, err
	}

	dec, err := zstd.NewReader(r)
	if err != nil {
		return Snapshot{}, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()

	d := decoder{r: bufio.NewReader(dec)}

	var s Snapshot
	d.full(s.Digest[:])

	if h.Count > 0 {
		s.Rows = make([]refdb.Row, 0, min(h.Count, 1<<20))
	}
	for i := uint64(0); i < h.Count && d.err == nil; i++ {
		tile := d.string()
		group := d.uvarint()
		burst := d.string()
		s.Rows = append(s.Rows, refdb.Row{TileID: tile, AcqGroup: int(group), BurstID: burst})
	}

	mphLen := d.uvarint()
	if d.err == nil && mphLen > 1<<30 {
		d.err = fmt.Errorf("MPHF length %d", mphLen)
	}
	var mph []byte
	if d.err == nil {
		mph = make([]byte, mphLen)
		d.full(mph)
	}

	keys := make([]string, 0, h.Keys)
	for i := uint32(0); i < h.Keys && d.err == nil; i++ {
		keys = append(keys, d.string())
	}
	if d.err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCorrupt, d.err)
	}

	// Drain the stream so the frame checksum is verified.
	if n, err := io.Copy(io.Discard, d.r); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	} else if n != 0 {
		return Snapshot{}, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, n)
	}

	s.Index, err = unmarshalKeyIndex(mph, keys)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return s, nil
}

type encoder struct {
	w       *bufio.Writer
	scratch [binary.MaxVarintLen64]byte
	err     error
}

func (e *encoder) bytes(b []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(b)
}

func (e *encoder) uvarint(v uint64) {
	n := binary.PutUvarint(e.scratch[:], v)
	e.bytes(e.scratch[:n])
}

func (e *encoder) string(s string) {
	e.uvarint(uint64(len(s)))
	if e.err != nil {
		return
	}
	_, e.err = e.w.WriteString(s)
}

type decoder struct {
	r   *bufio.Reader
	err error
}

func (d *decoder) full(b []byte) {
	if d.err != nil {
		return
	}
	if _, err := io.ReadFull(d.r, b); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		d.err = err
	}
}

func (d *decoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, err := binary.ReadUvarint(d.r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		d.err = err
	}
	return v
}

func (d *decoder) string() string {
	n := d.uvarint()
	if d.err != nil {
		return ""
	}
	if n > maxStringLen {
		d.err = fmt.Errorf("string length %d", n)
		return ""
	}
	b := make([]byte, n)
	d.full(b)
	return string(b)
}
