package outbound

// TaskDispatcher is satisfied by *ants.Pool. All background work runs through
// the shared bounded pool so fan-out never exceeds the configured worker cap.
type TaskDispatcher interface {
	Submit(task func()) error
}
