package vector

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/klauspost/compress/zstd"
)

var codecMagic = [4]byte{'K', 'I', 'D', 'X'}

const codecVersion uint32 = 1

// ErrCorrupt is returned when durable index state cannot be decoded.
var ErrCorrupt = errors.New("index state is corrupt")

// Encode writes snap to w. Format: magic (4), version (4), then a zstd stream of
// dimension (4), n (4) and per entry: idLen (4), id bytes, page (4), textLen (4), text bytes,
// vector (dimension*4 bytes). Integers are little endian.
func Encode(w io.Writer, snap *Snapshot) error {
	if _, err := w.Write(codecMagic[:]); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, codecVersion); err != nil {
		return fmt.Errorf("write version: %w", err)
	}
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create compressor: %w", err)
	}
	bw := bufio.NewWriter(zw)
	if err := writePayload(bw, snap); err != nil {
		zw.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		zw.Close()
		return fmt.Errorf("flush payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close compressor: %w", err)
	}
	return nil
}

func writePayload(w io.Writer, snap *Snapshot) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(snap.Dims())); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(snap.Len())); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	if snap == nil {
		return nil
	}
	for _, e := range snap.entries {
		if err := writeString(w, e.Page.DocumentID); err != nil {
			return fmt.Errorf("write document id: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(e.Page.PageNumber)); err != nil {
			return fmt.Errorf("write page number: %w", err)
		}
		if err := writeString(w, e.Page.Text); err != nil {
			return fmt.Errorf("write text: %w", err)
		}
		if _, err := w.Write(float32SliceToBytes(e.Vector)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// EncodeBytes returns the encoded form of snap.
func EncodeBytes(snap *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads a snapshot written by Encode. Any framing problem wraps ErrCorrupt.
func Decode(r io.Reader) (*Snapshot, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: read magic: %w", ErrCorrupt, err)
	}
	if magic != codecMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorrupt, magic[:])
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("%w: read version: %w", ErrCorrupt, err)
	}
	if version != codecVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, version)
	}
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: open decompressor: %w", ErrCorrupt, err)
	}
	defer zr.Close()

	br := bufio.NewReader(zr)
	snap, err := readPayload(br)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	// Drain so the frame checksum is verified.
	if _, err := io.Copy(io.Discard, br); err != nil {
		return nil, fmt.Errorf("%w: trailing data: %w", ErrCorrupt, err)
	}
	return snap, nil
}

// DecodeBytes decodes b.
func DecodeBytes(b []byte) (*Snapshot, error) {
	return Decode(bytes.NewReader(b))
}

func readPayload(r io.Reader) (*Snapshot, error) {
	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("read dimensions: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("read count: %w", err)
	}
	if n == 0 {
		return Empty(), nil
	}
	if dim == 0 {
		return nil, fmt.Errorf("%d entries with zero dimensions", n)
	}

	entries := make([]models.IndexEntry, 0, min(n, 1<<16))
	buf := make([]byte, int(dim)*4)
	for i := uint32(0); i < n; i++ {
		docID, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("read document id: %w", err)
		}
		var page uint32
		if err := binary.Read(r, binary.LittleEndian, &page); err != nil {
			return nil, fmt.Errorf("read page number: %w", err)
		}
		text, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("read text: %w", err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read vector: %w", err)
		}
		entries = append(entries, models.IndexEntry{
			Vector: bytesToFloat32Slice(buf),
			Page:   models.PageRecord{DocumentID: docID, PageNumber: int(page), Text: text},
		})
	}
	return Merge(Empty(), entries)
}

// maxStringLen bounds a single decoded string so a corrupt length cannot exhaust memory.
const maxStringLen = 64 << 20

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n > maxStringLen {
		return "", fmt.Errorf("string length %d exceeds limit", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
