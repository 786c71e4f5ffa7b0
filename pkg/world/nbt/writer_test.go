package nbt

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteByteLayout(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WriteTagByte("test", 42)
	require.NoError(t, w.Err())

	data := buf.Bytes()
	require.Equal(t, TagByte, data[0])
	require.Equal(t, uint16(4), binary.BigEndian.Uint16(data[1:3]))
	require.Equal(t, "test", string(data[3:7]))
	require.Equal(t, byte(42), data[7])
}

func TestWriteLongArrayLayout(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WriteLongArray("la", []int64{-1, 2})
	require.NoError(t, w.Err())

	data := buf.Bytes()
	require.Equal(t, TagLongArray, data[0])
	// tag(1) + name_len(2) + name(2) = 5, then count(4) + longs(16)
	require.Equal(t, int32(2), int32(binary.BigEndian.Uint32(data[5:9])))
	require.Equal(t, int64(-1), int64(binary.BigEndian.Uint64(data[9:17])))
	require.Equal(t, int64(2), int64(binary.BigEndian.Uint64(data[17:25])))
	require.Len(t, data, 25)
}

func TestNestedCompoundEnds(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	w.BeginCompound("")
	w.BeginCompound("Level")
	w.WriteInt("xPos", 3)
	w.WriteInt("zPos", 5)
	w.EndCompound()
	w.EndCompound()
	require.NoError(t, w.Err())

	data := buf.Bytes()
	require.Equal(t, TagCompound, data[0])
	require.Equal(t, TagCompound, data[3])
	require.Equal(t, TagEnd, data[len(data)-1])
	require.Equal(t, TagEnd, data[len(data)-2])
}
