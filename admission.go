package gpucamera

// An AdmissionGate lets at most one frame into the pipeline at a time. Entry never
// blocks; a busy gate means the caller drops its frame.
type AdmissionGate struct {
	token chan struct{}
}

// NewAdmissionGate returns an idle gate.
func NewAdmissionGate() *AdmissionGate {
	return &AdmissionGate{token: make(chan struct{}, 1)}
}

// TryEnter marks the gate busy and returns true if it was idle, otherwise it returns false
// immediately.
func (g *AdmissionGate) TryEnter() bool {
	select {
	case g.token <- struct{}{}:
		return true
	default:
		return false
	}
}

// Exit marks the gate idle. It must be called exactly once for every successful TryEnter.
func (g *AdmissionGate) Exit() {
	select {
	case <-g.token:
	default:
		panic("gpucamera: admission gate exited without a matching enter")
	}
}

// Busy reports whether a frame currently holds the gate.
func (g *AdmissionGate) Busy() bool {
	return len(g.token) == 1
}
