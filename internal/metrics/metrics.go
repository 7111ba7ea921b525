package metrics

import "time"

type Recorder interface {
	IncJoin(result string)
	IncLeave()
	IncReconcileCorrection(kind string)
	IncInvariantViolation(op string)
	ObserveCommand(name string, duration time.Duration)
}

type noopRecorder struct{}

func Noop() Recorder { return noopRecorder{} }

func (noopRecorder) IncJoin(string)                       {}
func (noopRecorder) IncLeave()                            {}
func (noopRecorder) IncReconcileCorrection(string)        {}
func (noopRecorder) IncInvariantViolation(string)         {}
func (noopRecorder) ObserveCommand(string, time.Duration) {}
