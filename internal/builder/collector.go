package builder

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

// recordOverhead approximates the slice header kept per buffered record.
const recordOverhead = 24

// shardCollector buffers the records of one shard. When the builder's
// memory budget is exceeded the largest collectors spill to a temp file.
type shardCollector struct {
	shardID      int
	records      [][]byte
	memoryBytes  int64
	tempDir      string
	spilledFile  string
	spilledCount int
	memTracker   *memoryTracker
}

// memoryTracker tracks buffered bytes across all collectors.
type memoryTracker struct {
	mu         sync.Mutex
	totalBytes int64
	maxBytes   int64
	collectors []*shardCollector
	spills     int
}

func newMemoryTracker(maxMB int) *memoryTracker {
	return &memoryTracker{maxBytes: int64(maxMB) * 1024 * 1024}
}

func (m *memoryTracker) add(n int64) {
	m.mu.Lock()
	m.totalBytes += n
	m.mu.Unlock()
}

func (m *memoryTracker) remove(n int64) {
	m.mu.Lock()
	m.totalBytes -= n
	m.mu.Unlock()
}

func (m *memoryTracker) overLimit() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalBytes > m.maxBytes
}

// spillUntilUnderLimit spills the largest collectors until the buffered
// total fits the budget again.
func (m *memoryTracker) spillUntilUnderLimit() error {
	spilled := 0
	for m.overLimit() {
		m.mu.Lock()
		var largest *shardCollector
		for _, c := range m.collectors {
			if len(c.records) > 0 && (largest == nil || c.memoryBytes > largest.memoryBytes) {
				largest = c
			}
		}
		m.mu.Unlock()

		if largest == nil {
			break
		}
		if err := largest.spillToDisk(); err != nil {
			return err
		}
		spilled++
	}

	if spilled > 0 {
		m.mu.Lock()
		m.spills += spilled
		m.mu.Unlock()
		runtime.GC()
	}
	return nil
}

func newShardCollector(shardID int, tempDir string, tracker *memoryTracker) *shardCollector {
	return &shardCollector{
		shardID:    shardID,
		tempDir:    tempDir,
		memTracker: tracker,
	}
}

// Add buffers a copy of record.
func (c *shardCollector) Add(record []byte) error {
	rec := make([]byte, len(record))
	copy(rec, record)
	c.records = append(c.records, rec)

	size := int64(len(rec) + recordOverhead)
	c.memoryBytes += size
	c.memTracker.add(size)

	if c.memTracker.overLimit() {
		if err := c.memTracker.spillUntilUnderLimit(); err != nil {
			return fmt.Errorf("spilling to disk: %w", err)
		}
	}
	return nil
}

// spillToDisk appends the buffered records to the collector's temp file as
// length-prefixed frames.
func (c *shardCollector) spillToDisk() error {
	if len(c.records) == 0 {
		return nil
	}

	path := filepath.Join(c.tempDir, fmt.Sprintf("shard_%05d.tmp", c.shardID))
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening temp file: %w", err)
	}

	w := bufio.NewWriter(file)
	var prefix [4]byte
	for _, rec := range c.records {
		binary.BigEndian.PutUint32(prefix[:], uint32(len(rec)))
		if _, err := w.Write(prefix[:]); err != nil {
			file.Close()
			return fmt.Errorf("writing length: %w", err)
		}
		if _, err := w.Write(rec); err != nil {
			file.Close()
			return fmt.Errorf("writing record: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("flushing: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	c.memTracker.remove(c.memoryBytes)
	c.spilledFile = path
	c.spilledCount += len(c.records)
	c.records = nil
	c.memoryBytes = 0
	return nil
}

// Count returns the number of records added, spilled or not.
func (c *shardCollector) Count() int {
	return len(c.records) + c.spilledCount
}

// GetAll returns spilled records followed by buffered ones, in insertion
// order.
func (c *shardCollector) GetAll() ([][]byte, error) {
	var all [][]byte

	if c.spilledFile != "" {
		file, err := os.Open(c.spilledFile)
		if err != nil {
			return nil, fmt.Errorf("opening spilled file: %w", err)
		}
		defer file.Close()

		r := bufio.NewReader(file)
		var prefix [4]byte
		for {
			if _, err := io.ReadFull(r, prefix[:]); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, fmt.Errorf("reading length: %w", err)
			}
			rec := make([]byte, binary.BigEndian.Uint32(prefix[:]))
			if _, err := io.ReadFull(r, rec); err != nil {
				return nil, fmt.Errorf("reading record: %w", err)
			}
			all = append(all, rec)
		}
	}

	return append(all, c.records...), nil
}
