package recorder

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// JSONLRecorder appends one JSON object per trade to a file.
type JSONLRecorder struct {
	mu   sync.Mutex
	path string
	file *os.File
	enc  *json.Encoder
	log  zerolog.Logger
}

// NewJSONLRecorder creates/opens the target file in append mode.
func NewJSONLRecorder(path string, log zerolog.Logger) (*JSONLRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", path).Msg("jsonl trade journal opened")
	return &JSONLRecorder{path: path, file: file, enc: json.NewEncoder(file), log: log}, nil
}

func (r *JSONLRecorder) RecordTrade(rec TradeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return os.ErrClosed
	}
	if err := r.enc.Encode(rec); err != nil {
		return fmt.Errorf("append trade: %w", err)
	}
	return nil
}

// Stats rescans the file. Lines that fail to decode are skipped.
func (r *JSONLRecorder) Stats() (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acc := newAccumulator()
	f, err := os.Open(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return acc.stats(), nil
	}
	if err != nil {
		return Stats{}, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4<<20)
	for scanner.Scan() {
		var rec TradeRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			r.log.Debug().Err(err).Msg("skipping unreadable journal line")
			continue
		}
		acc.add(rec.Symbol, rec.Action, rec.Confidence)
	}
	if err := scanner.Err(); err != nil {
		return Stats{}, err
	}
	return acc.stats(), nil
}

func (r *JSONLRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
