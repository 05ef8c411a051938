package ports

type Metrics interface {
	ObserveDecision(operation, outcome, reason string)
	IncKeyCollision()
}

type NoopMetrics struct{}

func (NoopMetrics) ObserveDecision(string, string, string) {}
func (NoopMetrics) IncKeyCollision()                       {}
