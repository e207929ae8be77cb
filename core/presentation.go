package orchestration

import "github.com/TurboJessadakorn/drive-through-realtime-agent/core/order"

// Presenter is the capability set the orchestrator needs from a
// presentation layer. It only ever receives outputs; it never reaches
// into session state.
type Presenter interface {
	TranscriptEntry(role string, text string)
	OrderSummary(snapshot order.Snapshot)
	Status(message string)
	Error(message string)
}

type noopPresenter struct{}

func (noopPresenter) TranscriptEntry(string, string) {}
func (noopPresenter) OrderSummary(order.Snapshot)    {}
func (noopPresenter) Status(string)                  {}
func (noopPresenter) Error(string)                   {}
