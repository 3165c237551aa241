package pipeline

import "jobmail-engine/internal/mailbox"

// State is one step of a run. Allowed transitions are the To* methods.
type State interface {
	Name() string
}

// StateRecorder tracks the state path of a run (tests, /status).
type StateRecorder struct {
	path []string
}

func NewStateRecorder() *StateRecorder {
	return &StateRecorder{path: make([]string, 0)}
}

func (r *StateRecorder) Record(state State) {
	r.path = append(r.path, state.Name())
}

func (r *StateRecorder) Path() []string {
	return r.path
}

// IdleState - run created, nothing done yet
type IdleState struct{}

func (s *IdleState) Name() string { return "idle" }
func (s *IdleState) ToConnecting() *ConnectingState {
	return &ConnectingState{}
}

// ConnectingState - logging in and selecting the jobs folder
type ConnectingState struct{}

func (s *ConnectingState) Name() string { return "connecting" }
func (s *ConnectingState) ToSearchingFolder() *SearchingFolderState {
	return &SearchingFolderState{}
}
func (s *ConnectingState) ToDone(err error) *DoneState {
	return &DoneState{err: err}
}

// SearchingFolderState - listing UIDs not yet attempted in this run
type SearchingFolderState struct{}

func (s *SearchingFolderState) Name() string { return "searching_folder" }
func (s *SearchingFolderState) ToProcessingBatch(batch []mailbox.UID, remaining int) *ProcessingBatchState {
	return &ProcessingBatchState{batch: batch, remaining: remaining}
}
func (s *SearchingFolderState) ToDone(err error) *DoneState {
	return &DoneState{err: err}
}

// ProcessingBatchState - extract, enrich, store and route each message
type ProcessingBatchState struct {
	batch     []mailbox.UID
	remaining int
}

func (s *ProcessingBatchState) Name() string { return "processing_batch" }
func (s *ProcessingBatchState) ToSendingSummary() *SendingSummaryState {
	return &SendingSummaryState{remaining: s.remaining}
}

// SendingSummaryState - batch report to the notifier
type SendingSummaryState struct {
	remaining int
}

func (s *SendingSummaryState) Name() string { return "sending_summary" }
func (s *SendingSummaryState) ToCheckingHealth() *CheckingHealthState {
	return &CheckingHealthState{remaining: s.remaining}
}

// CheckingHealthState - sample resources, apply recommendations, tear down
type CheckingHealthState struct {
	remaining int
}

func (s *CheckingHealthState) Name() string { return "checking_health" }
func (s *CheckingHealthState) ToConnecting() *ConnectingState {
	return &ConnectingState{}
}
func (s *CheckingHealthState) ToDone() *DoneState {
	return &DoneState{}
}

// DoneState - terminal; err is set when the run aborted
type DoneState struct {
	err error
}

func (s *DoneState) Name() string { return "done" }
func (s *DoneState) Err() error   { return s.err }
