// Package journal records the per-tick state frames of a match and flushes a
// compressed journal file once the match ends. Journals are an operator
// feature: a match runs identically whether or not one is attached.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

var matchIDCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Frame stores the payload for a single simulation tick.
type Frame struct {
	Tick       uint64    `json:"tick"`
	CapturedAt time.Time `json:"captured_at"`
	Payload    []byte    `json:"payload"`
}

// journalFile is the on-disk layout before compression.
type journalFile struct {
	MatchID string    `json:"match_id"`
	SavedAt time.Time `json:"saved_at"`
	Codec   string    `json:"codec"`
	Frames  []Frame   `json:"frames"`
}

// Recorder buffers tick frames for one match until they are flushed to disk.
type Recorder struct {
	mu         sync.Mutex
	dir        string
	matchID    string
	codec      Compressor
	now        func() time.Time
	frames     []Frame
	flushed    bool
	lastOutput string
}

// RecorderOption configures optional recorder behaviour at construction time.
type RecorderOption func(*Recorder)

// WithRecorderClock overrides the default wall-clock time source.
func WithRecorderClock(clock func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if clock != nil {
			r.now = clock
		}
	}
}

// WithCompressor overrides the default snappy codec.
func WithCompressor(codec Compressor) RecorderOption {
	return func(r *Recorder) {
		if codec != nil {
			r.codec = codec
		}
	}
}

// NewRecorder constructs a journal recorder for one match.
func NewRecorder(dir, matchID string, opts ...RecorderOption) (*Recorder, error) {
	if dir == "" {
		return nil, fmt.Errorf("journal directory must not be empty")
	}
	if matchID == "" {
		return nil, fmt.Errorf("match id must not be empty")
	}
	recorder := &Recorder{
		dir:     dir,
		matchID: matchID,
		codec:   NewSnappyCompressor(),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(recorder)
		}
	}
	return recorder, nil
}

// Append buffers one tick frame. Appends after Flush are dropped.
func (r *Recorder) Append(tick uint64, payload []byte) {
	if r == nil || len(payload) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.flushed {
		return
	}
	//1.- Clone the payload so callers may reuse their buffers between ticks.
	clone := append([]byte(nil), payload...)
	r.frames = append(r.frames, Frame{Tick: tick, CapturedAt: r.now().UTC(), Payload: clone})
}

// Flush compresses the buffered frames and writes the journal file, returning
// its path. Flushing twice is a no-op returning the first path.
func (r *Recorder) Flush() (string, error) {
	if r == nil {
		return "", nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.flushed {
		return r.lastOutput, nil
	}

	file := journalFile{
		MatchID: r.matchID,
		SavedAt: r.now().UTC(),
		Codec:   r.codec.Name(),
		Frames:  r.frames,
	}
	data, err := json.Marshal(file)
	if err != nil {
		return "", fmt.Errorf("encode journal: %w", err)
	}
	compressed, err := r.codec.Compress(data)
	if err != nil {
		return "", fmt.Errorf("compress journal: %w", err)
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create journal directory: %w", err)
	}
	//2.- Sanitise the match id so it is always a safe file name component.
	name := fmt.Sprintf("%s.journal.%s", matchIDCleaner.ReplaceAllString(r.matchID, "_"), r.codec.Name())
	path := filepath.Join(r.dir, name)
	if err := os.WriteFile(path, compressed, 0o644); err != nil {
		return "", fmt.Errorf("write journal: %w", err)
	}

	r.flushed = true
	r.frames = nil
	r.lastOutput = path
	return path, nil
}

// Load reads a journal file back using the provided codec.
func Load(path string, codec Compressor) (string, []Frame, error) {
	if codec == nil {
		codec = NewSnappyCompressor()
	}
	compressed, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read journal: %w", err)
	}
	data, err := codec.Decompress(compressed)
	if err != nil {
		return "", nil, err
	}
	var file journalFile
	if err := json.Unmarshal(data, &file); err != nil {
		return "", nil, fmt.Errorf("decode journal: %w", err)
	}
	return file.MatchID, file.Frames, nil
}
