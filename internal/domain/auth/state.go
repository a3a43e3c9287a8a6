package auth

// Phase identifies where the session state machine currently is.
// The machine transitions out of PhaseInitializing exactly once and then
// moves between the remaining phases as provider events arrive.
type Phase string

const (
	// PhaseInitializing is the state before the first provider session read
	// has completed. Consumers should treat it as "loading".
	PhaseInitializing Phase = "initializing"
	// PhaseAnonymous means no provider session exists.
	PhaseAnonymous Phase = "anonymous"
	// PhaseAuthenticated means a provider session exists and a UserRecord
	// was resolved for it.
	PhaseAuthenticated Phase = "authenticated"
	// PhaseUnprovisioned means a provider session exists but no UserRecord
	// does: the identity authenticated with the provider without ever
	// completing application-level registration. The role is unknown and
	// must not be guessed.
	PhaseUnprovisioned Phase = "authenticated_unprovisioned"
)

// State is the published snapshot of the session state machine. Exactly one
// of User and Identity is set outside the anonymous/initializing phases:
// User when provisioned, Identity alone when not.
type State struct {
	Phase    Phase
	User     *UserRecord
	Identity *Identity
}

// Loading reports whether the first provider read is still outstanding.
func (s State) Loading() bool { return s.Phase == PhaseInitializing }

// Initializing is the state machine's starting snapshot.
func Initializing() State { return State{Phase: PhaseInitializing} }

// Anonymous is the snapshot published when no provider session exists.
func Anonymous() State { return State{Phase: PhaseAnonymous} }

// Authenticated builds the snapshot for a provisioned identity.
func Authenticated(user UserRecord) State {
	return State{Phase: PhaseAuthenticated, User: &user}
}

// Unprovisioned builds the snapshot for an identity with no UserRecord.
func Unprovisioned(identity Identity) State {
	return State{Phase: PhaseUnprovisioned, Identity: &identity}
}
