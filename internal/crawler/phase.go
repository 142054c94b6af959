package crawler

// Phase is the orchestrator's lifecycle state. Phases advance strictly
// forward; Failed is terminal and reachable from any phase on a fatal
// error.
type Phase int

const (
	// PhaseCreated is the initial state: run directory and datasets are
	// being set up.
	PhaseCreated Phase = iota

	// PhasePolicyCheck vets every candidate host's robots.txt.
	PhasePolicyCheck

	// PhaseInspecting runs one inspection task per allowed host.
	PhaseInspecting

	// PhasePostProcessing aggregates raw interaction records into derived
	// graphs, for subjects that produce them.
	PhasePostProcessing

	// PhaseCleaning drops relations referencing failed or uncrawled nodes
	// and removes temporary datasets.
	PhaseCleaning

	// PhaseDone is the successful terminal state.
	PhaseDone

	// PhaseFailed is the terminal state after an unrecoverable error.
	PhaseFailed
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhasePolicyCheck:
		return "policy-check"
	case PhaseInspecting:
		return "inspecting"
	case PhasePostProcessing:
		return "post-processing"
	case PhaseCleaning:
		return "cleaning"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}
