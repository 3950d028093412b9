package apns

// Observer receives gateway lifecycle events. Implementations must be safe
// for concurrent use; the metrics package provides a Prometheus one.
type Observer interface {
	ConnectionOpened()
	AttemptFailed(attempt int, err error)
	RetriesExhausted()
	FramesWritten(n int)
	FeedbackReceived(n int)
}

type nopObserver struct{}

func (nopObserver) ConnectionOpened() {}
func (nopObserver) AttemptFailed(int, error) {}
func (nopObserver) RetriesExhausted() {}
func (nopObserver) FramesWritten(int) {}
func (nopObserver) FeedbackReceived(int) {}
