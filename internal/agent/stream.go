package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/taskhive/taskhive/internal/model"
)

// PublishFunc receives partial result documents as the agent produces them.
// Implementations post them to the orchestration server as callbacks.
type PublishFunc func(ctx context.Context, partial model.Result) error

// streamSummary is what the pump learned from one CLI run.
type streamSummary struct {
	SessionToken string
	FinalMessage string
	Failed       bool
	ErrorMessage string
	SawOutput    bool
}

// messageChunkSize bounds the value partials so a long agent message streams
// incrementally instead of arriving as one huge callback.
const messageChunkSize = 400

// pumpStream reads the CLI's NDJSON event stream and publishes partials.
//
// Raw events are batched (size or age triggered) under the "codex_event"
// append key so the server keeps a loss-free event log without one callback
// per line. Non-JSON lines are skipped: the CLI mixes human-readable noise
// into stdout on some paths.
func pumpStream(ctx context.Context, r io.Reader, batchSize int, flushEvery time.Duration, publish PublishFunc) (*streamSummary, error) {
	summary := &streamSummary{}

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		err := readLines(r, func(line string) {
			select {
			case lines <- line:
			case <-ctx.Done():
			}
		})
		if err != nil {
			scanErr <- err
		}
	}()

	var batch []interface{}
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := publish(ctx, model.Result{model.ResultKeyEvent: batch})
		batch = nil
		return err
	}

	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = flush()
			return summary, ctx.Err()

		case <-ticker.C:
			if err := flush(); err != nil {
				return summary, err
			}

		case line, ok := <-lines:
			if !ok {
				if err := flush(); err != nil {
					return summary, err
				}
				select {
				case err := <-scanErr:
					return summary, err
				default:
					return summary, nil
				}
			}

			var event map[string]interface{}
			if err := json.Unmarshal([]byte(line), &event); err != nil {
				continue
			}
			summary.SawOutput = true
			batch = append(batch, event)

			if err := handleEvent(ctx, event, summary, publish); err != nil {
				return summary, err
			}
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return summary, err
				}
			}
		}
	}
}

const (
	lineBufferSize = 64 * 1024
	maxLineBytes   = 1024 * 1024
)

// readLines emits each line of r to fn. A line over maxLineBytes must not
// abort the stream: the oversized content is passed through as fixed-size raw
// chunks and reading continues with the next line.
func readLines(r io.Reader, emit func(line string)) error {
	reader := bufio.NewReaderSize(r, lineBufferSize)
	var line []byte
	oversized := false
	for {
		chunk, isPrefix, err := reader.ReadLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if oversized {
			// Remainder of a line already flushed as raw chunks.
			emit(string(chunk))
			if !isPrefix {
				oversized = false
			}
			continue
		}

		line = append(line, chunk...)
		if isPrefix && len(line) < maxLineBytes {
			continue
		}

		emit(string(line))
		line = line[:0]
		oversized = isPrefix
	}
}

func handleEvent(ctx context.Context, event map[string]interface{}, summary *streamSummary, publish PublishFunc) error {
	switch eventType(event) {
	case "thread.started":
		if token := threadToken(event); token != "" {
			summary.SessionToken = token
			return publish(ctx, model.Result{
				model.ResultKeyShellType:       model.ShellTypeCodex,
				model.ResultKeyResumeSessionID: token,
			})
		}

	case "item.completed":
		if text := agentMessageText(event); text != "" {
			if summary.FinalMessage != "" {
				summary.FinalMessage += "\n"
			}
			summary.FinalMessage += text
			// Publish the accumulated value chunk by chunk so the UI
			// streams long answers.
			for i := 0; i < len(text); i += messageChunkSize {
				end := i + messageChunkSize
				if end > len(text) {
					end = len(text)
				}
				partial := summary.FinalMessage[:len(summary.FinalMessage)-len(text)+end]
				if err := publish(ctx, model.Result{model.ResultKeyValue: partial}); err != nil {
					return err
				}
			}
		}

	case "turn.failed":
		summary.Failed = true
		summary.ErrorMessage = turnError(event)
	}

	return nil
}

func eventType(event map[string]interface{}) string {
	t, _ := event["type"].(string)
	return t
}

// threadToken digs the session token out of the thread.started event. The CLI
// has renamed this field across versions, all known spellings are accepted.
func threadToken(event map[string]interface{}) string {
	for _, key := range []string{"thread_id", "threadId"} {
		if s, ok := event[key].(string); ok && s != "" {
			return s
		}
	}
	if thread, ok := event["thread"].(map[string]interface{}); ok {
		for _, key := range []string{"id", "thread_id", "threadId"} {
			if s, ok := thread[key].(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func agentMessageText(event map[string]interface{}) string {
	item, ok := event["item"].(map[string]interface{})
	if !ok {
		return ""
	}
	if t, _ := item["type"].(string); t != "agent_message" {
		return ""
	}
	text, _ := item["text"].(string)
	return text
}

func turnError(event map[string]interface{}) string {
	if errObj, ok := event["error"].(map[string]interface{}); ok {
		if msg, ok := errObj["message"].(string); ok && msg != "" {
			return msg
		}
	}
	return "agent turn failed"
}
