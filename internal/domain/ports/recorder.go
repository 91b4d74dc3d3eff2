package ports

// Recorder receives engine events for metrics.
type Recorder interface {
	Mutation(operation, outcome string)
	Violation(rule string)
	Scoring(outcome string)
	Traversal(kind string, visited int)
	BulkItem(mode, outcome string)
}

// NopRecorder discards every event.
type NopRecorder struct{}

func (NopRecorder) Mutation(string, string) {}
func (NopRecorder) Violation(string)        {}
func (NopRecorder) Scoring(string)          {}
func (NopRecorder) Traversal(string, int)   {}
func (NopRecorder) BulkItem(string, string) {}
