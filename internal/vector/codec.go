package vector

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"time"

	"github.com/hyperjump/vincentbot/internal/models"
)

// On-disk layout, little-endian:
//
//	magic "VBIX" | version u16
//	manifest: model_id str | build_id str | dims u32 | built_at i64 (unix nanos) | count u32
//	count × entry: id str | doc_id str | source str | text str | index u32 | start u32 | length u32 | dims × f32
//	crc32 (IEEE) of everything above, u32
//
// str is a u32 byte length followed by the bytes.
const (
	fileMagic   = "VBIX"
	fileVersion = uint16(1)
	// IndexFileName is the index file inside the store directory.
	IndexFileName = "index.bin"
)

var errCorrupt = errors.New("corrupt index file")

type encoder struct {
	w   *bufio.Writer
	err error
}

func (e *encoder) bytes(b []byte) {
	if e.err == nil {
		_, e.err = e.w.Write(b)
	}
}

func (e *encoder) u16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	e.bytes(b[:])
}

func (e *encoder) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.bytes(b[:])
}

func (e *encoder) i64(v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	e.bytes(b[:])
}

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	e.bytes([]byte(s))
}

// encodeSnapshot writes snap to w followed by its checksum.
func encodeSnapshot(w io.Writer, snap *Snapshot) error {
	crc := crc32.NewIEEE()
	enc := &encoder{w: bufio.NewWriter(io.MultiWriter(w, crc))}

	m := snap.manifest
	enc.bytes([]byte(fileMagic))
	enc.u16(fileVersion)
	enc.str(m.ModelID)
	enc.str(m.BuildID)
	enc.u32(uint32(m.Dimensions))
	enc.i64(m.BuiltAt.UnixNano())
	enc.u32(uint32(len(snap.entries)))
	for _, e := range snap.entries {
		enc.str(e.Chunk.ID)
		enc.str(e.Chunk.DocumentID)
		enc.str(e.Chunk.Source)
		enc.str(e.Chunk.Text)
		enc.u32(uint32(e.Chunk.Index))
		enc.u32(uint32(e.Chunk.Start))
		enc.u32(uint32(e.Chunk.Length))
		for _, v := range e.Vector {
			enc.u32(math.Float32bits(v))
		}
	}
	if enc.err != nil {
		return enc.err
	}
	if err := enc.w.Flush(); err != nil {
		return err
	}
	var sum [4]byte
	binary.LittleEndian.PutUint32(sum[:], crc.Sum32())
	_, err := w.Write(sum[:])
	return err
}

type decoder struct {
	r   *bytes.Reader
	err error
}

func (d *decoder) read(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > d.r.Len() {
		d.err = fmt.Errorf("%w: truncated", errCorrupt)
		return nil
	}
	b := make([]byte, n)
	_, _ = d.r.Read(b)
	return b
}

func (d *decoder) u16() uint16 {
	if b := d.read(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (d *decoder) u32() uint32 {
	if b := d.read(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (d *decoder) i64() int64 {
	if b := d.read(8); b != nil {
		return int64(binary.LittleEndian.Uint64(b))
	}
	return 0
}

func (d *decoder) str() string {
	n := d.u32()
	return string(d.read(int(n)))
}

// decodeSnapshot parses and verifies an encoded index.
func decodeSnapshot(data []byte) (*Snapshot, error) {
	if len(data) < len(fileMagic)+2+4 {
		return nil, fmt.Errorf("%w: too short", errCorrupt)
	}
	body, trailer := data[:len(data)-4], data[len(data)-4:]
	if crc32.ChecksumIEEE(body) != binary.LittleEndian.Uint32(trailer) {
		return nil, fmt.Errorf("%w: checksum mismatch", errCorrupt)
	}

	d := &decoder{r: bytes.NewReader(body)}
	if string(d.read(len(fileMagic))) != fileMagic {
		return nil, fmt.Errorf("%w: bad magic", errCorrupt)
	}
	if v := d.u16(); v != fileVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", errCorrupt, v)
	}

	var m Manifest
	m.ModelID = d.str()
	m.BuildID = d.str()
	dims := uint64(d.u32())
	m.BuiltAt = time.Unix(0, d.i64()).UTC()
	n := uint64(d.u32())
	if d.err != nil {
		return nil, d.err
	}
	if dims == 0 && n > 0 {
		return nil, fmt.Errorf("%w: %d entries without dimensions", errCorrupt, n)
	}
	// Every entry needs at least seven length/offset fields plus its vector. Compare by
	// division so a crafted count cannot overflow the product.
	if entrySize := 7*4 + dims*4; n > 0 && entrySize > uint64(d.r.Len())/n {
		return nil, fmt.Errorf("%w: truncated", errCorrupt)
	}
	m.Dimensions = int(dims)
	count := int(n)
	entries := make([]models.IndexedEntry, count)
	for i := range entries {
		e := &entries[i]
		e.Chunk.ID = d.str()
		e.Chunk.DocumentID = d.str()
		e.Chunk.Source = d.str()
		e.Chunk.Text = d.str()
		e.Chunk.Index = int(d.u32())
		e.Chunk.Start = int(d.u32())
		e.Chunk.Length = int(d.u32())
		e.Vector = make([]float32, m.Dimensions)
		for j := range e.Vector {
			e.Vector[j] = math.Float32frombits(d.u32())
		}
		if d.err != nil {
			return nil, d.err
		}
	}
	if d.r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", errCorrupt, d.r.Len())
	}
	m.Count = count
	return &Snapshot{manifest: m, entries: entries}, nil
}
