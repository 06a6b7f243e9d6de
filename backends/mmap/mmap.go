// Package mmap implements the "mmap" storage backend: one fixed-size,
// memory-mapped hash table file per statfile.
//
// File layout (little endian):
//
//	header  64 bytes: magic "rsst", version u32, blocks u64, learns u64, tokens u64, reserved
//	blocks  16 bytes each: token hash u64, value f64
//
// Blocks are addressed by open addressing with a bounded linear probe.
// Hash 0 marks an empty block, so token hash 0 is stored as 1.
package mmap

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/teranos/libstat/config"
	"github.com/teranos/libstat/errors"
	"github.com/teranos/libstat/logger"
	"github.com/teranos/libstat/stat"
)

// Name is the provider name
const Name = "mmap"

const (
	magic        = "rsst"
	version      = 1
	headerSize   = 64
	blockSize    = 16
	maxProbe     = 64
	DefaultSize  = 4 << 20
	minBlocks    = 16
	offVersion   = 4
	offBlocks    = 8
	offLearns    = 16
	offTokens    = 24
	emptyHash    = 0
	fallbackHash = 1
)

// ErrStatfileFull is returned when a token finds no free block within the probe limit
var ErrStatfileFull = errors.New("statfile full")

// Backend is the mmap provider
type Backend struct {
	logger *zap.SugaredLogger
}

// New creates the provider; log may be nil
func New(log *zap.SugaredLogger) *Backend {
	return &Backend{logger: logger.OrComponent(log, "backend.mmap")}
}

// Name returns the provider name
func (b *Backend) Name() string { return Name }

// file is the per-statfile state
type file struct {
	mu     sync.RWMutex
	path   string
	f      *os.File
	data   []byte
	blocks uint64
}

// Init opens or creates the statfile at its configured path.
// The size option (bytes) applies to new files only.
func (b *Backend) Init(sc *stat.Context, cfg *config.Config, st *stat.Statfile) (any, error) {
	def := st.Config()
	if def.Path == "" {
		return nil, errors.NewInvalidConfigError("statfile %s has no path", def.Symbol)
	}
	size := def.Size
	if size == 0 {
		size = DefaultSize
	}
	m, err := openFile(def.Path, size)
	if err != nil {
		return nil, err
	}
	b.logger.Debugw("Mapped statfile",
		logger.FieldStatfile, def.Symbol,
		logger.FieldPath, def.Path,
		"blocks", m.blocks,
	)
	return m, nil
}

// openFile maps the file at path, creating it with size bytes when absent
func openFile(path string, size int64) (*file, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "create directory for %s", path)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "stat %s", path)
	}

	created := fi.Size() == 0
	if created {
		blocks := (size - headerSize) / blockSize
		if blocks < minBlocks {
			f.Close()
			return nil, errors.NewInvalidConfigError("statfile size %d is too small", size)
		}
		size = headerSize + blocks*blockSize
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "truncate %s", path)
		}
	} else {
		size = fi.Size()
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "mmap %s", path)
	}
	m := &file{path: path, f: f, data: data}

	if created {
		copy(data[0:4], magic)
		binary.LittleEndian.PutUint32(data[offVersion:], version)
		binary.LittleEndian.PutUint64(data[offBlocks:], uint64((size-headerSize)/blockSize))
	}
	if err := m.checkHeader(size); err != nil {
		m.close()
		return nil, err
	}
	m.blocks = binary.LittleEndian.Uint64(data[offBlocks:])
	return m, nil
}

func (m *file) checkHeader(size int64) error {
	if size < headerSize || string(m.data[0:4]) != magic {
		return errors.Newf("%s is not a statfile", m.path)
	}
	if v := binary.LittleEndian.Uint32(m.data[offVersion:]); v != version {
		return errors.Newf("%s has unsupported version %d", m.path, v)
	}
	// blocks*blockSize may wrap, so bound blocks by the file size first
	blocks := binary.LittleEndian.Uint64(m.data[offBlocks:])
	maxBlocks := uint64(size-headerSize) / blockSize
	if blocks == 0 || blocks > maxBlocks || headerSize+blocks*blockSize != uint64(size) {
		return errors.Newf("%s is truncated or corrupt", m.path)
	}
	return nil
}

func (m *file) close() error {
	err := unix.Munmap(m.data)
	m.data = nil
	if cerr := m.f.Close(); err == nil {
		err = cerr
	}
	return err
}

func (m *file) header(off int) uint64 {
	return binary.LittleEndian.Uint64(m.data[off:])
}

func (m *file) setHeader(off int, v uint64) {
	binary.LittleEndian.PutUint64(m.data[off:], v)
}

func keyOf(h uint64) uint64 {
	if h == emptyHash {
		return fallbackHash
	}
	return h
}

// find returns the block offset holding key, or the first free block on its
// probe path when absent. found reports which one it is; off < 0 means full.
func (m *file) find(key uint64) (off int, found bool) {
	start := key % m.blocks
	for i := uint64(0); i < maxProbe && i < m.blocks; i++ {
		o := headerSize + int((start+i)%m.blocks)*blockSize
		switch binary.LittleEndian.Uint64(m.data[o:]) {
		case key:
			return o, true
		case emptyHash:
			return o, false
		}
	}
	return -1, false
}

func (m *file) get(h uint64) float64 {
	off, found := m.find(keyOf(h))
	if !found {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(m.data[off+8:]))
}

func (m *file) set(h uint64, v float64) error {
	key := keyOf(h)
	off, found := m.find(key)
	if off < 0 {
		return ErrStatfileFull
	}
	if !found {
		if v == 0 {
			return nil
		}
		binary.LittleEndian.PutUint64(m.data[off:], key)
		m.setHeader(offTokens, m.header(offTokens)+1)
	}
	binary.LittleEndian.PutUint64(m.data[off+8:], math.Float64bits(v))
	return nil
}

func state(st *stat.Statfile) (*file, error) {
	m, ok := st.State().(*file)
	if !ok || m == nil {
		return nil, errors.AssertionFailedf("mmap: statfile %s has no mmap state", st.Symbol())
	}
	return m, nil
}

// ProcessTokens loads token values for st
func (b *Backend) ProcessTokens(ctx context.Context, task *stat.Task, tokens []stat.Token, st *stat.Statfile) error {
	m, err := state(st)
	if err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id := st.ID()
	for i := range tokens {
		tokens[i].Values[id] = m.get(tokens[i].Hash)
	}
	return nil
}

// LearnTokens stores token values for st. Tokens that do not fit are
// dropped and logged once per call.
func (b *Backend) LearnTokens(ctx context.Context, task *stat.Task, tokens []stat.Token, st *stat.Statfile) error {
	m, err := state(st)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id := st.ID()
	dropped := 0
	for _, tok := range tokens {
		if err := m.set(tok.Hash, tok.Values[id]); err != nil {
			dropped++
		}
	}
	if dropped > 0 {
		b.logger.Warnw("Statfile is full, tokens dropped",
			logger.FieldStatfile, st.Symbol(),
			logger.FieldPath, m.path,
			logger.FieldCount, dropped,
		)
	}
	return nil
}

// TotalLearns returns the learn counter from the header
func (b *Backend) TotalLearns(ctx context.Context, st *stat.Statfile) (uint64, error) {
	m, err := state(st)
	if err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.header(offLearns), nil
}

// IncLearns increments the learn counter
func (b *Backend) IncLearns(ctx context.Context, st *stat.Statfile) (uint64, error) {
	m, err := state(st)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.header(offLearns) + 1
	m.setHeader(offLearns, n)
	return n, nil
}

// DecLearns decrements the learn counter, stopping at zero
func (b *Backend) DecLearns(ctx context.Context, st *stat.Statfile) (uint64, error) {
	m, err := state(st)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.header(offLearns)
	if n > 0 {
		n--
		m.setHeader(offLearns, n)
	}
	return n, nil
}

// Stat reports learns and used blocks
func (b *Backend) Stat(ctx context.Context, st *stat.Statfile) (stat.StatfileStat, error) {
	m, err := state(st)
	if err != nil {
		return stat.StatfileStat{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return stat.StatfileStat{
		Learns: m.header(offLearns),
		Tokens: m.header(offTokens),
	}, nil
}

// Close syncs and unmaps the file
func (b *Backend) Close(s any) {
	m, ok := s.(*file)
	if !ok || m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
		b.logger.Warnw("Cannot sync statfile", logger.FieldPath, m.path, logger.FieldError, err.Error())
	}
	if err := m.close(); err != nil {
		b.logger.Warnw("Cannot close statfile", logger.FieldPath, m.path, logger.FieldError, err.Error())
	}
}
