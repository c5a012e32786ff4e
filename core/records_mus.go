package core

import (
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// MUS serializers for the stored record types. Each one follows the
// mus.Serializer contract: Marshal writes into a buffer sized by Size,
// Unmarshal returns the value and the number of bytes consumed.
var (
	IDMUS           = idMUS{}
	IndexedChunkMUS = indexedChunkMUS{}
	RunMUS          = runMUS{}
)

type idMUS struct{}

func (idMUS) Marshal(v ID, bs []byte) (n int) {
	return varint.Uint64.Marshal(uint64(v), bs)
}

func (idMUS) Unmarshal(bs []byte) (v ID, n int, err error) {
	u, n, err := varint.Uint64.Unmarshal(bs)
	return ID(u), n, err
}

func (idMUS) Size(v ID) (size int) {
	return varint.Uint64.Size(uint64(v))
}

func (idMUS) Skip(bs []byte) (n int, err error) {
	return varint.Uint64.Skip(bs)
}

// Timestamps are stored as Unix microseconds.

func marshalTime(t time.Time, bs []byte) int {
	return varint.Int64.Marshal(t.UnixMicro(), bs)
}

func unmarshalTime(bs []byte) (time.Time, int, error) {
	us, n, err := varint.Int64.Unmarshal(bs)
	if err != nil {
		return time.Time{}, n, err
	}
	return time.UnixMicro(us).UTC(), n, nil
}

func sizeTime(t time.Time) int {
	return varint.Int64.Size(t.UnixMicro())
}

func marshalVector(v []float32, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	for _, f := range v {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return n
}

func unmarshalVector(bs []byte) (v []float32, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if length < 0 || length*4 > len(bs)-n {
		return nil, n, ErrCorruptRecord
	}
	v = make([]float32, length)
	for i := range v {
		f, n1, err := raw.Float32.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
		v[i] = f
	}
	return v, n, nil
}

func sizeVector(v []float32) (size int) {
	size = varint.Int.Size(len(v))
	for _, f := range v {
		size += raw.Float32.Size(f)
	}
	return size
}

func marshalStrings(v []string, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	for _, s := range v {
		n += ord.String.Marshal(s, bs[n:])
	}
	return n
}

func unmarshalStrings(bs []byte) (v []string, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if length < 0 || length > len(bs)-n {
		return nil, n, ErrCorruptRecord
	}
	if length == 0 {
		return nil, n, nil
	}
	v = make([]string, length)
	for i := range v {
		s, n1, err := ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
		v[i] = s
	}
	return v, n, nil
}

func sizeStrings(v []string) (size int) {
	size = varint.Int.Size(len(v))
	for _, s := range v {
		size += ord.String.Size(s)
	}
	return size
}

type indexedChunkMUS struct{}

func (indexedChunkMUS) Marshal(v IndexedChunk, bs []byte) (n int) {
	n = IDMUS.Marshal(v.Id, bs)
	n += ord.String.Marshal(v.Collection, bs[n:])
	n += ord.String.Marshal(v.Text, bs[n:])
	n += ord.String.Marshal(v.Source, bs[n:])
	n += marshalTime(v.FetchedAt, bs[n:])
	n += varint.Int.Marshal(v.Index, bs[n:])
	n += marshalVector(v.Vector, bs[n:])
	n += marshalTime(v.InsertedAt, bs[n:])
	return n
}

func (indexedChunkMUS) Unmarshal(bs []byte) (v IndexedChunk, n int, err error) {
	var n1 int
	v.Id, n, err = IDMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	v.Collection, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Text, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Source, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.FetchedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Index, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Vector, n1, err = unmarshalVector(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.InsertedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	return
}

func (indexedChunkMUS) Size(v IndexedChunk) (size int) {
	size = IDMUS.Size(v.Id)
	size += ord.String.Size(v.Collection)
	size += ord.String.Size(v.Text)
	size += ord.String.Size(v.Source)
	size += sizeTime(v.FetchedAt)
	size += varint.Int.Size(v.Index)
	size += sizeVector(v.Vector)
	size += sizeTime(v.InsertedAt)
	return size
}

type runMUS struct{}

func (runMUS) Marshal(v Run, bs []byte) (n int) {
	n = ord.String.Marshal(v.Id, bs)
	n += marshalTime(v.StartedAt, bs[n:])
	n += marshalTime(v.FinishedAt, bs[n:])
	n += varint.Int.Marshal(v.URLs, bs[n:])
	n += varint.Int.Marshal(v.Documents, bs[n:])
	n += varint.Int.Marshal(v.Sentinels, bs[n:])
	n += varint.Int.Marshal(v.Unattributed, bs[n:])
	n += varint.Int.Marshal(v.Entities, bs[n:])
	n += marshalStrings(v.FailedEntities, bs[n:])
	n += ord.String.Marshal(v.Error, bs[n:])
	return n
}

func (runMUS) Unmarshal(bs []byte) (v Run, n int, err error) {
	var n1 int
	v.Id, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	v.StartedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.FinishedAt, n1, err = unmarshalTime(bs[n:])
	n += n1
	if err != nil {
		return
	}
	for _, field := range []*int{&v.URLs, &v.Documents, &v.Sentinels, &v.Unattributed, &v.Entities} {
		*field, n1, err = varint.Int.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	v.FailedEntities, n1, err = unmarshalStrings(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Error, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	return
}

func (runMUS) Size(v Run) (size int) {
	size = ord.String.Size(v.Id)
	size += sizeTime(v.StartedAt)
	size += sizeTime(v.FinishedAt)
	for _, field := range []int{v.URLs, v.Documents, v.Sentinels, v.Unattributed, v.Entities} {
		size += varint.Int.Size(field)
	}
	size += sizeStrings(v.FailedEntities)
	size += ord.String.Size(v.Error)
	return size
}
