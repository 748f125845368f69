// Package resultmerge folds partial executor result documents into the
// persisted one. Executors stream many small callbacks per run (init, event
// ticks, tail) and the merge must stay idempotent and loss-free no matter how
// the stream interleaves with retries.
package resultmerge

import "github.com/taskhive/taskhive/internal/model"

// Merge returns a new document with the incoming partial folded into the
// existing one. Neither input is mutated.
//
// Rules:
//   - Plain keys are last-write-wins.
//   - "shell_type" is sticky: once set it is only replaced by a non-empty
//     value, so later partials without it cannot erase the routing hint.
//   - "codex_events" replaces the whole event log (snapshot semantics).
//   - "codex_event" appends one event, or a batch when the value is a list.
//     The key itself is never stored in the merged document.
//
// Merge never fails: values of unexpected types are carried through verbatim
// under the last-write-wins rule.
func Merge(existing, incoming model.Result) model.Result {
	out := existing.Clone()
	if out == nil {
		out = model.Result{}
	}
	if incoming == nil {
		return out
	}

	for k, v := range incoming {
		switch k {
		case model.ResultKeyEvent:
			out[model.ResultKeyEvents] = appendEvents(out.Events(), v)
		case model.ResultKeyEvents:
			if evs, ok := v.([]interface{}); ok {
				out[model.ResultKeyEvents] = append([]interface{}{}, evs...)
			} else {
				out[k] = v
			}
		case model.ResultKeyShellType:
			if s, ok := v.(string); ok && s == "" {
				continue
			}
			out[k] = v
		default:
			out[k] = v
		}
	}

	return out
}

func appendEvents(evs []interface{}, v interface{}) []interface{} {
	// Copy-on-append keeps the existing document untouched.
	out := append([]interface{}{}, evs...)
	if batch, ok := v.([]interface{}); ok {
		return append(out, batch...)
	}
	return append(out, v)
}
