// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"time"

	"github.com/viant/bintly"
)

// Binary layouts for the persisted models. Field order is the wire order;
// append new fields at the end only.

// EncodeBinary encodes the document to a binary stream.
func (d *Document) EncodeBinary(stream *bintly.Writer) error {
	stream.Uint64(uint64(d.Id))
	stream.String(d.OwnerID)
	stream.String(d.WorkspaceID)
	stream.String(d.Title)
	stream.String(d.Content)
	stream.Int(d.ChunkCount)
	stream.Uint64(d.Generation)
	writeTime(stream, d.CreatedAt)
	writeTime(stream, d.UpdatedAt)
	writeTime(stream, d.DeletedAt)
	return nil
}

// DecodeBinary decodes the document from a binary stream.
func (d *Document) DecodeBinary(stream *bintly.Reader) error {
	var id uint64
	stream.Uint64(&id)
	d.Id = ID(id)
	stream.String(&d.OwnerID)
	stream.String(&d.WorkspaceID)
	stream.String(&d.Title)
	stream.String(&d.Content)
	stream.Int(&d.ChunkCount)
	stream.Uint64(&d.Generation)
	d.CreatedAt = readTime(stream)
	d.UpdatedAt = readTime(stream)
	d.DeletedAt = readTime(stream)
	return nil
}

// EncodeBinary encodes the chunk to a binary stream.
func (c *Chunk) EncodeBinary(stream *bintly.Writer) error {
	stream.Uint64(uint64(c.Id))
	stream.Uint64(uint64(c.DocumentId))
	stream.String(c.OwnerID)
	stream.String(c.WorkspaceID)
	stream.Int(c.Index)
	stream.String(c.Content)
	stream.Int(len(c.Vector))
	for _, v := range c.Vector {
		stream.Float32(v)
	}
	stream.Int(c.Dim)
	stream.String(c.Model)
	stream.String(c.Provider)
	stream.Int(c.TokenCount)
	stream.Uint64(c.Generation)
	writeTime(stream, c.CreatedAt)
	return nil
}

// DecodeBinary decodes the chunk from a binary stream.
func (c *Chunk) DecodeBinary(stream *bintly.Reader) error {
	var id, documentID uint64
	stream.Uint64(&id)
	stream.Uint64(&documentID)
	c.Id = ID(id)
	c.DocumentId = ID(documentID)
	stream.String(&c.OwnerID)
	stream.String(&c.WorkspaceID)
	stream.Int(&c.Index)
	stream.String(&c.Content)
	var size int
	stream.Int(&size)
	if size > 0 {
		c.Vector = make([]float32, size)
		for i := range c.Vector {
			stream.Float32(&c.Vector[i])
		}
	}
	stream.Int(&c.Dim)
	stream.String(&c.Model)
	stream.String(&c.Provider)
	stream.Int(&c.TokenCount)
	stream.Uint64(&c.Generation)
	c.CreatedAt = readTime(stream)
	return nil
}

// EncodeBinary encodes the hit to a binary stream.
func (h *SearchHit) EncodeBinary(stream *bintly.Writer) error {
	stream.Uint64(uint64(h.ChunkId))
	stream.Uint64(uint64(h.DocumentId))
	stream.String(h.DocumentTitle)
	stream.Float32(h.Score)
	stream.String(h.Content)
	return nil
}

// DecodeBinary decodes the hit from a binary stream.
func (h *SearchHit) DecodeBinary(stream *bintly.Reader) error {
	var chunkID, documentID uint64
	stream.Uint64(&chunkID)
	stream.Uint64(&documentID)
	h.ChunkId = ID(chunkID)
	h.DocumentId = ID(documentID)
	stream.String(&h.DocumentTitle)
	stream.Float32(&h.Score)
	stream.String(&h.Content)
	return nil
}

// Times are stored as Unix microseconds; 0 is reserved for the zero time.
func writeTime(stream *bintly.Writer, t time.Time) {
	if t.IsZero() {
		stream.Int64(0)
		return
	}
	stream.Int64(t.UnixMicro())
}

func readTime(stream *bintly.Reader) time.Time {
	var micros int64
	stream.Int64(&micros)
	if micros == 0 {
		return time.Time{}
	}
	return time.UnixMicro(micros).UTC()
}

var (
	writers = bintly.NewWriters()
	readers = bintly.NewReaders()
)

// BinaryEncoder is implemented by types with a bintly layout.
type BinaryEncoder interface {
	EncodeBinary(stream *bintly.Writer) error
}

// BinaryDecoder is implemented by types with a bintly layout.
type BinaryDecoder interface {
	DecodeBinary(stream *bintly.Reader) error
}

// Marshal encodes v with a pooled writer.
func Marshal(v BinaryEncoder) ([]byte, error) {
	w := writers.Get()
	defer writers.Put(w)
	if err := v.EncodeBinary(w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Unmarshal decodes data into v with a pooled reader.
func Unmarshal(data []byte, v BinaryDecoder) error {
	r := readers.Get()
	defer readers.Put(r)
	if err := r.FromBytes(data); err != nil {
		return err
	}
	return v.DecodeBinary(r)
}

// Hits is a ranked result list with a binary layout, used as the cached
// search payload.
type Hits []SearchHit

// EncodeBinary encodes the hit count followed by every hit.
func (h Hits) EncodeBinary(stream *bintly.Writer) error {
	stream.Int(len(h))
	for i := range h {
		if err := h[i].EncodeBinary(stream); err != nil {
			return err
		}
	}
	return nil
}

// DecodeBinary decodes hits written by EncodeBinary.
func (h *Hits) DecodeBinary(stream *bintly.Reader) error {
	var size int
	stream.Int(&size)
	hits := make(Hits, size)
	for i := range hits {
		if err := hits[i].DecodeBinary(stream); err != nil {
			return err
		}
	}
	*h = hits
	return nil
}

// MarshalHits serializes a result list.
func MarshalHits(hits []SearchHit) ([]byte, error) {
	return Marshal(Hits(hits))
}

// UnmarshalHits deserializes a result list. An empty list decodes to a
// non-nil empty slice.
func UnmarshalHits(data []byte) ([]SearchHit, error) {
	var hits Hits
	if err := Unmarshal(data, &hits); err != nil {
		return nil, err
	}
	return hits, nil
}
