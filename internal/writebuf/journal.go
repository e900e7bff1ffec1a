package writebuf

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	"github.com/quarrydb/quarry/pkg/types"
)

// frameHeaderSize is the length and checksum prefix of one frame.
const frameHeaderSize = 8

// journal spills the oldest pending writes of a bulk transaction to
// disk so the whole write set does not sit in memory until commit.
// Frames are [length:4 LE][crc32:4 LE][snappy payload], appended in
// arrival order. The journal is a spill file, not a durability log:
// it never outlives its transaction, so frames are not fsynced.
type journal struct {
	path  string
	file  *os.File
	count int
}

// openJournal creates a fresh journal file under dir.
func openJournal(dir string) (*journal, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("writebuf: create journal directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("txn_%s.journal", uuid.NewString()))
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("writebuf: create journal: %w", err)
	}
	return &journal{path: path, file: file}, nil
}

// append frames one write onto the end of the journal. The file
// offset is repositioned first because replay shares the handle.
func (j *journal) append(w PendingWrite) error {
	payload, err := json.Marshal(encodeWrite(w))
	if err != nil {
		return fmt.Errorf("writebuf: encode journal frame: %w", err)
	}
	compressed := snappy.Encode(nil, payload)

	if _, err := j.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("writebuf: seek journal end: %w", err)
	}

	var header [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(header[:4], uint32(len(compressed)))
	binary.LittleEndian.PutUint32(header[4:], crc32.ChecksumIEEE(compressed))
	if _, err := j.file.Write(header[:]); err != nil {
		return fmt.Errorf("writebuf: write frame header: %w", err)
	}
	if _, err := j.file.Write(compressed); err != nil {
		return fmt.Errorf("writebuf: write frame payload: %w", err)
	}
	j.count++
	return nil
}

// replay streams frames from the start of the journal in write order,
// calling fn for each decoded write. fn returning false stops the walk
// early with a nil error. A non-nil error means the journal itself is
// unreadable from the reported frame on: a truncated frame, a checksum
// mismatch, or a payload that does not decode. Replay never resumes
// past a bad frame because frame boundaries after it cannot be
// trusted.
func (j *journal) replay(fn func(PendingWrite) bool) (int, error) {
	if _, err := j.file.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("writebuf: rewind journal: %w", err)
	}
	r := bufio.NewReader(j.file)
	replayed := 0
	for {
		var header [frameHeaderSize]byte
		if _, err := io.ReadFull(r, header[:]); err != nil {
			if err == io.EOF {
				return replayed, nil
			}
			return replayed, fmt.Errorf("writebuf: short header in frame %d: %w", replayed, err)
		}
		length := binary.LittleEndian.Uint32(header[:4])
		sum := binary.LittleEndian.Uint32(header[4:])

		compressed := make([]byte, length)
		if _, err := io.ReadFull(r, compressed); err != nil {
			return replayed, fmt.Errorf("writebuf: truncated frame %d: %w", replayed, err)
		}
		if crc32.ChecksumIEEE(compressed) != sum {
			return replayed, fmt.Errorf("writebuf: checksum mismatch in frame %d", replayed)
		}
		payload, err := snappy.Decode(nil, compressed)
		if err != nil {
			return replayed, fmt.Errorf("writebuf: decompress frame %d: %w", replayed, err)
		}

		var jw journalWrite
		if err := json.Unmarshal(payload, &jw); err != nil {
			return replayed, fmt.Errorf("writebuf: decode frame %d: %w", replayed, err)
		}
		w, err := decodeWrite(jw)
		if err != nil {
			return replayed, fmt.Errorf("writebuf: frame %d: %w", replayed, err)
		}

		replayed++
		if !fn(w) {
			return replayed, nil
		}
	}
}

// drop closes and removes the journal file.
func (j *journal) drop() {
	if j.file != nil {
		j.file.Close()
		j.file = nil
	}
	if err := os.Remove(j.path); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: remove write journal %s: %v", j.path, err)
	}
}

// journalWrite is the frame payload. Values carry an explicit kind tag
// because plain JSON cannot round-trip them: binary decodes as a
// string and sets decode as lists.
type journalWrite struct {
	Table string                  `json:"table"`
	Kind  string                  `json:"kind"`
	Item  map[string]journalValue `json:"item"`
}

type journalValue struct {
	Kind string                  `json:"k"`
	Text string                  `json:"t,omitempty"`
	Bool bool                    `json:"b,omitempty"`
	Bin  []byte                  `json:"x,omitempty"`
	List []journalValue          `json:"l,omitempty"`
	Map  map[string]journalValue `json:"m,omitempty"`
	Set  []string                `json:"s,omitempty"`
}

func encodeWrite(w PendingWrite) journalWrite {
	item := make(map[string]journalValue, len(w.Item))
	for name, v := range w.Item {
		item[name] = encodeValue(v)
	}
	return journalWrite{Table: w.Table, Kind: string(w.Kind), Item: item}
}

func decodeWrite(jw journalWrite) (PendingWrite, error) {
	kind := WriteKind(jw.Kind)
	switch kind {
	case WriteInsert, WriteDelete:
	default:
		return PendingWrite{}, fmt.Errorf("unknown write kind %q", jw.Kind)
	}
	item := make(types.Item, len(jw.Item))
	for name, jv := range jw.Item {
		v, err := decodeValue(jv)
		if err != nil {
			return PendingWrite{}, fmt.Errorf("attribute %s: %w", name, err)
		}
		item[name] = v
	}
	return PendingWrite{Table: jw.Table, Kind: kind, Item: item}, nil
}

func encodeValue(v types.Value) journalValue {
	kind := v.Kind().String()
	switch v.Kind() {
	case types.KindString, types.KindNumber:
		return journalValue{Kind: kind, Text: v.Text()}
	case types.KindBool:
		return journalValue{Kind: kind, Bool: v.BoolValue()}
	case types.KindBinary:
		return journalValue{Kind: kind, Bin: v.Bytes()}
	case types.KindList:
		list := make([]journalValue, 0, len(v.List()))
		for _, member := range v.List() {
			list = append(list, encodeValue(member))
		}
		return journalValue{Kind: kind, List: list}
	case types.KindMap:
		m := make(map[string]journalValue, len(v.Map()))
		for name, member := range v.Map() {
			m[name] = encodeValue(member)
		}
		return journalValue{Kind: kind, Map: m}
	case types.KindStringSet, types.KindNumberSet:
		return journalValue{Kind: kind, Set: v.SetMembers()}
	default:
		return journalValue{Kind: types.KindNull.String()}
	}
}

func decodeValue(jv journalValue) (types.Value, error) {
	switch jv.Kind {
	case types.KindNull.String():
		return types.Null(), nil
	case types.KindString.String():
		return types.String(jv.Text), nil
	case types.KindNumber.String():
		return types.Number(jv.Text), nil
	case types.KindBool.String():
		return types.Bool(jv.Bool), nil
	case types.KindBinary.String():
		return types.Binary(jv.Bin), nil
	case types.KindList.String():
		list := make([]types.Value, 0, len(jv.List))
		for _, member := range jv.List {
			v, err := decodeValue(member)
			if err != nil {
				return types.Value{}, err
			}
			list = append(list, v)
		}
		return types.ListOf(list...), nil
	case types.KindMap.String():
		m := make(map[string]types.Value, len(jv.Map))
		for name, member := range jv.Map {
			v, err := decodeValue(member)
			if err != nil {
				return types.Value{}, err
			}
			m[name] = v
		}
		return types.MapOf(m), nil
	case types.KindStringSet.String():
		return types.StringSet(jv.Set...), nil
	case types.KindNumberSet.String():
		return types.NumberSet(jv.Set...), nil
	default:
		return types.Value{}, fmt.Errorf("unknown value kind tag %q", jv.Kind)
	}
}
