package vector

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const snapshotVersion = 1

// ivfSnapshot is the on-disk form of an IVFIndex.
type ivfSnapshot struct {
	Version    int
	Dimensions int
	NumLists   int
	State      IndexState
	Centroids  [][]float32
	CodecMin   []float32
	CodecScale []float32
	IDs        []int64
	Lists      []int32
	Codes      [][]byte
	Raw        [][]float32
}

// writeSnapshot gob-encodes v into a zstd stream at path, replacing the file atomically.
func writeSnapshot(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	zw, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("create zstd writer: %w", err)
	}
	if err := gob.NewEncoder(zw).Encode(v); err != nil {
		zw.Close()
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode index: %w", err)
	}
	if err := zw.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flush index: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close index file: %w", err)
	}
	return os.Rename(tmp, path)
}

// readSnapshot decodes a file written by writeSnapshot into v. found is false when the file does not exist.
func readSnapshot(path string, v any) (found bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	zr, err := zstd.NewReader(f)
	if err != nil {
		return true, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()
	if err := gob.NewDecoder(zr).Decode(v); err != nil {
		return true, fmt.Errorf("decode index: %w", err)
	}
	return true, nil
}

// Save writes a compressed snapshot of the index to path. An empty path is a no-op.
func (x *IVFIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	x.mu.RLock()
	if x.closed {
		x.mu.RUnlock()
		return ErrClosed
	}
	snap := ivfSnapshot{
		Version:    snapshotVersion,
		Dimensions: x.opts.Dimensions,
		NumLists:   x.opts.NumLists,
		State:      x.state,
		Centroids:  x.centroids,
		IDs:        make([]int64, len(x.slots)),
		Lists:      make([]int32, len(x.slots)),
		Codes:      make([][]byte, len(x.slots)),
		Raw:        make([][]float32, len(x.slots)),
	}
	if x.codec != nil {
		snap.CodecMin = x.codec.min
		snap.CodecScale = x.codec.scale
	}
	// Slots are written in list order so that Load rebuilds identical postings.
	i := 0
	for list, postings := range x.lists {
		for _, slot := range postings {
			e := x.slots[slot]
			snap.IDs[i] = e.id
			snap.Lists[i] = int32(list)
			snap.Codes[i] = e.code
			snap.Raw[i] = e.raw
			i++
		}
	}
	x.mu.RUnlock()
	return writeSnapshot(path, &snap)
}

// validate checks the shape of a decoded snapshot before any entry is read.
func (snap *ivfSnapshot) validate() error {
	n := len(snap.IDs)
	if len(snap.Lists) != n || len(snap.Codes) != n || len(snap.Raw) != n {
		return fmt.Errorf("%w: %d ids but %d lists, %d codes, %d vectors",
			ErrCorruptSnapshot, n, len(snap.Lists), len(snap.Codes), len(snap.Raw))
	}
	switch snap.State {
	case StateUntrained:
		return nil
	case StateTrained:
	default:
		return fmt.Errorf("%w: unknown state %d", ErrCorruptSnapshot, snap.State)
	}
	if len(snap.Centroids) == 0 || len(snap.CodecMin) != snap.Dimensions || len(snap.CodecScale) != snap.Dimensions {
		return fmt.Errorf("%w: missing training parameters", ErrCorruptSnapshot)
	}
	for i, c := range snap.Centroids {
		if len(c) != snap.Dimensions {
			return fmt.Errorf("%w: centroid %d has %d dimensions", ErrCorruptSnapshot, i, len(c))
		}
	}
	return nil
}

// Load replaces the index contents with the snapshot at path. A missing file leaves the
// index unchanged.
func (x *IVFIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	var snap ivfSnapshot
	found, err := readSnapshot(path, &snap)
	if err != nil || !found {
		return err
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("unsupported index snapshot version %d", snap.Version)
	}
	if snap.Dimensions != x.opts.Dimensions {
		return fmt.Errorf("%w: file has %d, index expects %d", ErrDimensionMismatch, snap.Dimensions, x.opts.Dimensions)
	}
	if err := snap.validate(); err != nil {
		return err
	}
	numLists := 1
	if snap.State == StateTrained {
		numLists = len(snap.Centroids)
	}

	slots := make([]ivfEntry, len(snap.IDs))
	slotByID := make(map[int64]int, len(snap.IDs))
	lists := make([][]int, numLists)
	for i, id := range snap.IDs {
		if _, dup := slotByID[id]; dup {
			return fmt.Errorf("%w: id %d appears twice", ErrCorruptSnapshot, id)
		}
		list := int(snap.Lists[i])
		if list < 0 || list >= numLists {
			return fmt.Errorf("%w: list %d out of range", ErrCorruptSnapshot, list)
		}
		e := ivfEntry{id: id, list: list, pos: len(lists[list])}
		if snap.State == StateTrained {
			if len(snap.Codes[i]) != snap.Dimensions {
				return fmt.Errorf("%w: code %d has %d bytes", ErrCorruptSnapshot, i, len(snap.Codes[i]))
			}
			e.code = snap.Codes[i]
		} else {
			if len(snap.Raw[i]) != snap.Dimensions {
				return fmt.Errorf("%w: vector %d has %d dimensions", ErrCorruptSnapshot, i, len(snap.Raw[i]))
			}
			e.raw = snap.Raw[i]
		}
		slots[i] = e
		lists[list] = append(lists[list], i)
		slotByID[id] = i
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return ErrClosed
	}
	x.state = snap.State
	x.centroids = snap.Centroids
	x.codec = nil
	if snap.State == StateTrained {
		x.codec = &scalarCodec{min: snap.CodecMin, scale: snap.CodecScale}
		x.opts.NumLists = numLists
		if x.opts.NumProbes > numLists {
			x.opts.NumProbes = numLists
		}
	}
	x.slots = slots
	x.slotByID = slotByID
	x.lists = lists
	return nil
}
