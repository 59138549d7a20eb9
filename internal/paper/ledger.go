package paper

import (
	"sync"

	"github.com/ramihomecare1-commits/Scalper/internal/execution"
)

// Ledger keeps the most recent paper fills in memory. Older fills are evicted
// once limit is reached; Total still counts them.
type Ledger struct {
	mu    sync.Mutex
	limit int
	fills []execution.Fill
	total int
}

// NewLedger keeps at most limit fills. A non-positive limit keeps everything.
func NewLedger(limit int) *Ledger {
	return &Ledger{limit: limit}
}

// Record appends a fill, evicting the oldest when full.
func (l *Ledger) Record(fill execution.Fill) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.total++
	l.fills = append(l.fills, fill)
	if l.limit > 0 && len(l.fills) > l.limit {
		l.fills = append(l.fills[:0], l.fills[len(l.fills)-l.limit:]...)
	}
}

// Snapshot returns a copy of the retained fills, oldest first.
func (l *Ledger) Snapshot() []execution.Fill {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]execution.Fill(nil), l.fills...)
}

// ForSymbol returns the retained fills of one instrument in recording order.
func (l *Ledger) ForSymbol(symbol string) []execution.Fill {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []execution.Fill
	for _, f := range l.fills {
		if f.Symbol == symbol {
			out = append(out, f)
		}
	}
	return out
}

// Len reports how many fills were ever recorded.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}
