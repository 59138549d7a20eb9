package paper

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ramihomecare1-commits/Scalper/internal/execution"
)

// FillLog appends paper fills as JSON lines so a dry run can be replayed.
type FillLog struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	log  zerolog.Logger
}

// OpenFillLog creates or appends to path.
func OpenFillLog(path string, log zerolog.Logger) (*FillLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FillLog{file: file, enc: json.NewEncoder(file), log: log}, nil
}

// Record writes one fill. Write failures are logged, never returned to the venue.
func (r *FillLog) Record(fill execution.Fill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return
	}
	if err := r.enc.Encode(fill); err != nil {
		r.log.Warn().Err(err).Str("symbol", fill.Symbol).Msg("paper fill not persisted")
	}
}

// Close closes the file handle. Further records are ignored.
func (r *FillLog) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
