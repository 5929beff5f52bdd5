package diskstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/r3e-network/graphdb/internal/graph/model"
	"github.com/r3e-network/graphdb/internal/graph/value"
)

// Record payloads are length-prefixed tagged serializations: every
// variable-length field is a uint32 byte count followed by its bytes, and
// every Value is a one-byte kind tag followed by its fixed or
// length-prefixed payload. This is a bespoke format, not a general
// serialization library, because the wire shape (big-endian ids, explicit
// kind tags) is fixed by the persisted-format contract, not negotiable
// with a schema-driven codec.

func putUint64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

func putString(buf *bytes.Buffer, s string) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(len(s)))
	buf.Write(tmp[:])
	buf.WriteString(s)
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var tmp [8]byte
	if _, err := r.Read(tmp[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(tmp[:]), nil
}

func readString(r *bytes.Reader) (string, error) {
	var tmp [4]byte
	if _, err := r.Read(tmp[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint32(tmp[:])
	buf := make([]byte, n)
	if n > 0 {
		if _, err := r.Read(buf); err != nil {
			return "", err
		}
	}
	return string(buf), nil
}

const (
	tagInt byte = iota
	tagFloat
	tagBool
	tagText
)

func putValue(buf *bytes.Buffer, v value.Value) {
	switch v.Kind() {
	case value.KindInt:
		buf.WriteByte(tagInt)
		i, _ := v.AsInt()
		putUint64(buf, uint64(i))
	case value.KindFloat:
		buf.WriteByte(tagFloat)
		f, _ := v.AsFloat()
		putUint64(buf, math.Float64bits(f))
	case value.KindBool:
		buf.WriteByte(tagBool)
		b, _ := v.AsBool()
		if b {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case value.KindText:
		buf.WriteByte(tagText)
		s, _ := v.AsText()
		putString(buf, s)
	}
}

func readValue(r *bytes.Reader) (value.Value, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return value.Value{}, err
	}
	switch tag {
	case tagInt:
		u, err := readUint64(r)
		if err != nil {
			return value.Value{}, err
		}
		return value.Int(int64(u)), nil
	case tagFloat:
		u, err := readUint64(r)
		if err != nil {
			return value.Value{}, err
		}
		return value.Float(math.Float64frombits(u)), nil
	case tagBool:
		b, err := r.ReadByte()
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(b != 0), nil
	case tagText:
		s, err := readString(r)
		if err != nil {
			return value.Value{}, err
		}
		return value.Text(s), nil
	default:
		return value.Value{}, fmt.Errorf("diskstore: unknown value tag %d", tag)
	}
}

func putMap(buf *bytes.Buffer, m value.Map) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(len(m)))
	buf.Write(tmp[:])
	for k, v := range m {
		putString(buf, k)
		putValue(buf, v)
	}
}

func readMap(r *bytes.Reader) (value.Map, error) {
	var tmp [4]byte
	if _, err := r.Read(tmp[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(tmp[:])
	if n == 0 {
		return nil, nil
	}
	m := make(value.Map, n)
	for i := uint32(0); i < n; i++ {
		k, err := readString(r)
		if err != nil {
			return nil, err
		}
		v, err := readValue(r)
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}

func encodeNode(n *model.Node) []byte {
	var buf bytes.Buffer
	putUint64(&buf, uint64(n.ID))
	putUint64(&buf, n.Version)
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(len(n.Labels)))
	buf.Write(tmp[:])
	for _, l := range n.Labels {
		putString(&buf, l)
	}
	putMap(&buf, n.Props)
	return buf.Bytes()
}

func decodeNode(b []byte) (*model.Node, error) {
	r := bytes.NewReader(b)
	id, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	version, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	var tmp [4]byte
	if _, err := r.Read(tmp[:]); err != nil {
		return nil, err
	}
	labelCount := binary.BigEndian.Uint32(tmp[:])
	labels := make([]string, labelCount)
	for i := range labels {
		labels[i], err = readString(r)
		if err != nil {
			return nil, err
		}
	}
	props, err := readMap(r)
	if err != nil {
		return nil, err
	}
	return &model.Node{ID: model.NodeID(id), Labels: labels, Props: props, Version: version}, nil
}

func encodeRel(rel *model.Relationship) []byte {
	var buf bytes.Buffer
	putUint64(&buf, uint64(rel.ID))
	putUint64(&buf, uint64(rel.Start))
	putUint64(&buf, uint64(rel.End))
	putUint64(&buf, rel.Version)
	putString(&buf, rel.Type)
	putMap(&buf, rel.Props)
	return buf.Bytes()
}

func decodeRel(b []byte) (*model.Relationship, error) {
	r := bytes.NewReader(b)
	id, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	start, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	end, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	version, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	relType, err := readString(r)
	if err != nil {
		return nil, err
	}
	props, err := readMap(r)
	if err != nil {
		return nil, err
	}
	return &model.Relationship{
		ID: model.RelID(id), Start: model.NodeID(start), End: model.NodeID(end),
		Type: relType, Props: props, Version: version,
	}, nil
}

func encodeRelIDList(ids []model.RelID) []byte {
	var buf bytes.Buffer
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(len(ids)))
	buf.Write(tmp[:])
	for _, id := range ids {
		putUint64(&buf, uint64(id))
	}
	return buf.Bytes()
}

func decodeRelIDList(b []byte) ([]model.RelID, error) {
	if len(b) == 0 {
		return nil, nil
	}
	r := bytes.NewReader(b)
	var tmp [4]byte
	if _, err := r.Read(tmp[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(tmp[:])
	ids := make([]model.RelID, n)
	for i := range ids {
		u, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		ids[i] = model.RelID(u)
	}
	return ids, nil
}

func idKey(id uint64) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], id)
	return key[:]
}
