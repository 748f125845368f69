package model

// Shell types understood by the retry/resume machinery. Codex shells carry a
// "resume_session_id" thread token, ClaudeCode shells a "session_id" token.
const (
	ShellTypeCodex      = "Codex"
	ShellTypeClaudeCode = "ClaudeCode"
)

// RetryMode selects whether a retried subtask reuses the previous agent
// session or starts cold.
type RetryMode string

const (
	RetryModeResume     RetryMode = "resume"
	RetryModeNewSession RetryMode = "new_session"
)

// Recognized result document keys. The document itself is free-form, the
// executors and the merge engine only interpret these.
const (
	ResultKeyShellType       = "shell_type"
	ResultKeyValue           = "value"
	ResultKeyError           = "error"
	ResultKeyRetryMode       = "retry_mode"
	ResultKeyResumeSessionID = "resume_session_id"
	ResultKeySessionID       = "session_id"
	ResultKeyEvents          = "codex_events"
	ResultKeyEvent           = "codex_event"
)

// Result is the free-form result document attached to a subtask. Executors
// stream partial documents through callbacks and the merge engine folds them
// into the persisted one.
type Result map[string]interface{}

// Clone returns a shallow copy of the document (the events list is copied,
// nested event payloads are shared).
func (r Result) Clone() Result {
	if r == nil {
		return nil
	}
	out := make(Result, len(r))
	for k, v := range r {
		out[k] = v
	}
	if evs, ok := r[ResultKeyEvents].([]interface{}); ok {
		out[ResultKeyEvents] = append([]interface{}{}, evs...)
	}
	return out
}

// String returns the value of a recognized string key, empty when absent or
// not a string.
func (r Result) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// ShellType returns the shell type recorded in the document.
func (r Result) ShellType() string { return r.String(ResultKeyShellType) }

// SessionToken returns whichever resumable session token the document
// carries: Codex thread tokens win over Claude session ids.
func (r Result) SessionToken() string {
	if s := r.String(ResultKeyResumeSessionID); s != "" {
		return s
	}
	return r.String(ResultKeySessionID)
}

// Events returns the append-only raw event log, nil when absent.
func (r Result) Events() []interface{} {
	evs, _ := r[ResultKeyEvents].([]interface{})
	return evs
}
