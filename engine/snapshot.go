package engine

import "time"

// FilterSnapshot is a point-in-time view of one filter.
type FilterSnapshot struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	Mode    string `json:"mode"`
	Status  string `json:"status"`
	Pending int    `json:"pending"`
}

// PipelineSnapshot is a point-in-time view of one pipeline.
type PipelineSnapshot struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Status  string           `json:"status"`
	Error   string           `json:"error,omitempty"`
	Filters []FilterSnapshot `json:"filters"`
}

// EngineSnapshot is a point-in-time view of an engine and its pipelines.
type EngineSnapshot struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	RunID     string             `json:"run_id,omitempty"`
	Status    string             `json:"status"`
	StartedAt *time.Time         `json:"started_at,omitempty"`
	Pipelines []PipelineSnapshot `json:"pipelines"`
}

// Snapshot captures the pipeline's state. Pending counts the messages
// waiting in each filter's input pipe.
func (p *Pipeline) Snapshot() PipelineSnapshot {
	filters := p.Filters()
	s := PipelineSnapshot{
		ID:      p.id,
		Name:    p.name,
		Status:  p.Status().String(),
		Filters: make([]FilterSnapshot, 0, len(filters)),
	}
	if err := p.Err(); err != nil {
		s.Error = err.Error()
	}
	for i, f := range filters {
		s.Filters = append(s.Filters, FilterSnapshot{
			Index:   i,
			Name:    f.Name(),
			Mode:    f.Mode().String(),
			Status:  f.Status().String(),
			Pending: f.Input().Len(),
		})
	}
	return s
}

// Snapshot captures the engine's state.
func (e *Engine) Snapshot() EngineSnapshot {
	e.mu.RLock()
	s := EngineSnapshot{
		ID:     e.id,
		Name:   e.name,
		RunID:  e.runID,
		Status: e.status.load().String(),
	}
	if !e.startedAt.IsZero() {
		at := e.startedAt
		s.StartedAt = &at
	}
	e.mu.RUnlock()

	pipelines := e.Pipelines()
	s.Pipelines = make([]PipelineSnapshot, 0, len(pipelines))
	for _, p := range pipelines {
		s.Pipelines = append(s.Pipelines, p.Snapshot())
	}
	return s
}
