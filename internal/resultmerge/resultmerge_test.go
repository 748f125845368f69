package resultmerge_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taskhive/taskhive/internal/model"
	"github.com/taskhive/taskhive/internal/resultmerge"
)

func TestMerge(t *testing.T) {
	tests := map[string]struct {
		existing model.Result
		incoming model.Result
		exp      model.Result
	}{
		"Merging into a nil document starts a fresh one.": {
			existing: nil,
			incoming: model.Result{"value": "hello"},
			exp:      model.Result{"value": "hello"},
		},

		"A nil partial leaves the document unchanged.": {
			existing: model.Result{"value": "hello"},
			incoming: nil,
			exp:      model.Result{"value": "hello"},
		},

		"Plain keys are last-write-wins.": {
			existing: model.Result{"value": "old", "error": "boom"},
			incoming: model.Result{"value": "new", "error": ""},
			exp:      model.Result{"value": "new", "error": ""},
		},

		"Unknown keys are carried through rather than rejected.": {
			existing: model.Result{"value": "v"},
			incoming: model.Result{"local_runner": map[string]interface{}{"branch": "wk/1"}},
			exp: model.Result{
				"value":        "v",
				"local_runner": map[string]interface{}{"branch": "wk/1"},
			},
		},

		"A single event appends to the log without storing the event key.": {
			existing: model.Result{"codex_events": []interface{}{"e1"}},
			incoming: model.Result{"codex_event": "e2"},
			exp:      model.Result{"codex_events": []interface{}{"e1", "e2"}},
		},

		"A batched event list appends in order.": {
			existing: model.Result{"codex_events": []interface{}{"e1"}},
			incoming: model.Result{"codex_event": []interface{}{"e2", "e3"}},
			exp:      model.Result{"codex_events": []interface{}{"e1", "e2", "e3"}},
		},

		"An event on an empty document creates the log.": {
			existing: model.Result{},
			incoming: model.Result{"codex_event": "e1"},
			exp:      model.Result{"codex_events": []interface{}{"e1"}},
		},

		"A full event list replaces the stored log.": {
			existing: model.Result{"codex_events": []interface{}{"e1", "e2"}},
			incoming: model.Result{"codex_events": []interface{}{"e9"}},
			exp:      model.Result{"codex_events": []interface{}{"e9"}},
		},

		"Shell type sticks once set.": {
			existing: model.Result{"shell_type": "Codex"},
			incoming: model.Result{"shell_type": "", "value": "v"},
			exp:      model.Result{"shell_type": "Codex", "value": "v"},
		},

		"Shell type is replaced by a non-empty value.": {
			existing: model.Result{"shell_type": "Codex"},
			incoming: model.Result{"shell_type": "ClaudeCode"},
			exp:      model.Result{"shell_type": "ClaudeCode"},
		},

		"Session tokens merge alongside events.": {
			existing: model.Result{"codex_events": []interface{}{"e1"}},
			incoming: model.Result{
				"resume_session_id": "thread-1",
				"codex_event":       "e2",
			},
			exp: model.Result{
				"resume_session_id": "thread-1",
				"codex_events":      []interface{}{"e1", "e2"},
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got := resultmerge.Merge(test.existing, test.incoming)
			assert.Equal(t, test.exp, got)
		})
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	assert := assert.New(t)

	existing := model.Result{"codex_events": []interface{}{"e1"}, "value": "old"}
	incoming := model.Result{"codex_event": "e2", "value": "new"}

	got := resultmerge.Merge(existing, incoming)

	assert.Equal(model.Result{"codex_events": []interface{}{"e1"}, "value": "old"}, existing)
	assert.Equal(model.Result{"codex_event": "e2", "value": "new"}, incoming)
	assert.Equal(model.Result{"codex_events": []interface{}{"e1", "e2"}, "value": "new"}, got)
}

func TestMergeStreamReplay(t *testing.T) {
	// Typical callback stream: init partial, event ticks, then the tail
	// carrying the final value and the full snapshot.
	assert := assert.New(t)

	doc := model.Result(nil)
	doc = resultmerge.Merge(doc, model.Result{"shell_type": "Codex"})
	doc = resultmerge.Merge(doc, model.Result{"codex_event": map[string]interface{}{"type": "thread.started"}})
	doc = resultmerge.Merge(doc, model.Result{
		"codex_event":       []interface{}{map[string]interface{}{"type": "item.completed"}},
		"resume_session_id": "th-9",
	})
	doc = resultmerge.Merge(doc, model.Result{"value": "done", "error": ""})

	assert.Equal("Codex", doc.ShellType())
	assert.Equal("th-9", doc.SessionToken())
	assert.Equal("done", doc.String(model.ResultKeyValue))
	assert.Len(doc.Events(), 2)
}
