package nbt

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxDepth bounds the nesting of compounds and lists accepted by Skip.
const MaxDepth = 512

var (
	ErrInvalidTag    = errors.New("nbt: invalid tag type")
	ErrInvalidLength = errors.New("nbt: negative length")
	ErrMaxDepth      = errors.New("nbt: maximum nesting depth exceeded")
	ErrNotCompound   = errors.New("nbt: root is not a compound")
)

// Reader is a pull decoder for NBT data. Callers walk a compound with Next,
// read the values they care about with the typed methods and Skip the rest,
// so a payload can be abandoned as soon as the wanted fields were seen.
type Reader struct {
	r   *bufio.Reader
	buf [8]byte
}

// NewReader returns a Reader consuming r.
func NewReader(r io.Reader) *Reader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReaderSize(r, 16<<10)
	}
	return &Reader{r: br}
}

// ReadRoot consumes the root tag header, which must open a compound.
func (r *Reader) ReadRoot() (string, error) {
	tag, err := r.r.ReadByte()
	if err != nil {
		return "", err
	}
	if tag != TagCompound {
		return "", fmt.Errorf("%w: got type %d", ErrNotCompound, tag)
	}
	return r.readString()
}

// Next reads the header of the next entry of the current compound. It
// returns TagEnd with an empty name when the compound is exhausted.
func (r *Reader) Next() (byte, string, error) {
	tag, err := r.r.ReadByte()
	if err != nil {
		return 0, "", noEOF(err)
	}
	if tag == TagEnd {
		return TagEnd, "", nil
	}
	if tag > TagLongArray {
		return 0, "", fmt.Errorf("%w: %d", ErrInvalidTag, tag)
	}
	name, err := r.readString()
	if err != nil {
		return 0, "", err
	}
	return tag, name, nil
}

// Long reads a long payload.
func (r *Reader) Long() (int64, error) {
	if err := r.fill(8); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(r.buf[:8])), nil
}

// Int reads an int payload.
func (r *Reader) Int() (int32, error) {
	if err := r.fill(4); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(r.buf[:4])), nil
}

// StringValue reads a string payload.
func (r *Reader) StringValue() (string, error) {
	return r.readString()
}

// IntArray reads an int array payload.
func (r *Reader) IntArray() ([]int32, error) {
	n, err := r.length()
	if err != nil {
		return nil, err
	}
	out := make([]int32, 0, min(n, 4096))
	for i := 0; i < n; i++ {
		v, err := r.Int()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// LongArray reads a long array payload.
func (r *Reader) LongArray() ([]int64, error) {
	n, err := r.length()
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, min(n, 4096))
	for i := 0; i < n; i++ {
		v, err := r.Long()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// ListHeader reads the element type and length of a list payload.
func (r *Reader) ListHeader() (byte, int, error) {
	elem, err := r.r.ReadByte()
	if err != nil {
		return 0, 0, noEOF(err)
	}
	if elem > TagLongArray {
		return 0, 0, fmt.Errorf("%w: list of %d", ErrInvalidTag, elem)
	}
	n, err := r.length()
	if err != nil {
		return 0, 0, err
	}
	return elem, n, nil
}

// Skip discards the payload of a tag of the given type.
func (r *Reader) Skip(tag byte) error {
	return r.skip(tag, 0)
}

// SkipList discards the remaining n elements of a list of elem.
func (r *Reader) SkipList(elem byte, n int) error {
	return r.skipElems(elem, n, 0)
}

func (r *Reader) skip(tag byte, depth int) error {
	if depth > MaxDepth {
		return ErrMaxDepth
	}
	switch tag {
	case TagEnd:
		return nil
	case TagByte:
		return r.discard(1)
	case TagShort:
		return r.discard(2)
	case TagInt, TagFloat:
		return r.discard(4)
	case TagLong, TagDouble:
		return r.discard(8)
	case TagByteArray:
		return r.skipArray(1)
	case TagIntArray:
		return r.skipArray(4)
	case TagLongArray:
		return r.skipArray(8)
	case TagString:
		if err := r.fill(2); err != nil {
			return err
		}
		return r.discard(int(binary.BigEndian.Uint16(r.buf[:2])))
	case TagList:
		elem, n, err := r.ListHeader()
		if err != nil {
			return err
		}
		return r.skipElems(elem, n, depth+1)
	case TagCompound:
		for {
			t, _, err := r.Next()
			if err != nil {
				return err
			}
			if t == TagEnd {
				return nil
			}
			if err := r.skip(t, depth+1); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: %d", ErrInvalidTag, tag)
	}
}

func (r *Reader) skipElems(elem byte, n, depth int) error {
	switch elem {
	case TagByte:
		return r.discard(n)
	case TagShort:
		return r.discard(2 * n)
	case TagInt, TagFloat:
		return r.discard(4 * n)
	case TagLong, TagDouble:
		return r.discard(8 * n)
	}
	for i := 0; i < n; i++ {
		if err := r.skip(elem, depth); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) skipArray(width int) error {
	n, err := r.length()
	if err != nil {
		return err
	}
	return r.discard(n * width)
}

func (r *Reader) length() (int, error) {
	n, err := r.Int()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, ErrInvalidLength
	}
	return int(n), nil
}

func (r *Reader) readString() (string, error) {
	if err := r.fill(2); err != nil {
		return "", err
	}
	n := int(binary.BigEndian.Uint16(r.buf[:2]))
	if n == 0 {
		return "", nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		return "", noEOF(err)
	}
	return string(b), nil
}

func (r *Reader) fill(n int) error {
	_, err := io.ReadFull(r.r, r.buf[:n])
	return noEOF(err)
}

func (r *Reader) discard(n int) error {
	_, err := r.r.Discard(n)
	return noEOF(err)
}

// noEOF turns a clean EOF inside a tag into ErrUnexpectedEOF.
func noEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
