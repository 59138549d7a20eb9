package recorder

// NoopRecorder discards trades. It is used when the journal is disabled.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordTrade(_ TradeRecord) error { return nil }
func (n *NoopRecorder) Stats() (Stats, error)           { return Stats{Symbols: []string{}, Actions: map[string]int{}}, nil }
func (n *NoopRecorder) Close() error                    { return nil }
