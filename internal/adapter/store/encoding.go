package store

import (
	"encoding/binary"
	"fmt"
	"math"

	"imgsearch/internal/domain"
)

// EncodeEmbedding encodes a vector as little-endian IEEE 754 float32 values
// without a length prefix; the length is derived from the blob size.
func EncodeEmbedding(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

// DecodeEmbedding decodes a blob produced by EncodeEmbedding.
func DecodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d (not multiple of 4)", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}

// encodeRecord lays out a bolt value as uvarint(len(path)) | path | embedding.
func encodeRecord(r domain.ImageRecord) []byte {
	buf := make([]byte, binary.MaxVarintLen64, binary.MaxVarintLen64+len(r.Path)+len(r.Embedding)*4)
	n := binary.PutUvarint(buf, uint64(len(r.Path)))
	buf = append(buf[:n], r.Path...)
	return append(buf, EncodeEmbedding(r.Embedding)...)
}

// decodeRecord is the inverse of encodeRecord.
func decodeRecord(id uint64, b []byte) (domain.ImageRecord, error) {
	l, n := binary.Uvarint(b)
	if n <= 0 || uint64(len(b)-n) < l {
		return domain.ImageRecord{}, fmt.Errorf("corrupt record %d", id)
	}
	end := n + int(l)
	vec, err := DecodeEmbedding(b[end:])
	if err != nil {
		return domain.ImageRecord{}, fmt.Errorf("corrupt record %d: %w", id, err)
	}
	return domain.ImageRecord{ID: id, Path: string(b[n:end]), Embedding: vec}, nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func btoi(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
