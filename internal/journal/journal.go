// Package journal implements the Event Journal (C9): an append-only,
// crash-safe log of every state transition in a run, and the basis for
// deterministic replay and mid-run resume.
package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Kind enumerates the closed set of event kinds the engine emits. Readers
// must ignore any kind value they do not recognize, per the journal's
// forward-compatibility guarantee.
type Kind string

const (
	KindRunStarted        Kind = "run_started"
	KindPlannerStep       Kind = "planner_step"
	KindSearchIssued      Kind = "search_issued"
	KindEvidenceAdded     Kind = "evidence_added"
	KindOutlineUpdated    Kind = "outline_updated"
	KindPlannerTerminated Kind = "planner_terminated"
	KindWriterStep        Kind = "writer_step"
	KindSectionRetrieved  Kind = "section_retrieved"
	KindSectionWritten    Kind = "section_written"
	KindWriterTerminated  Kind = "writer_terminated"
	KindError             Kind = "error"
	KindRunFinished       Kind = "run_finished"
)

// knownKinds backs Event.Known, used by replay-time state reconstruction to
// silently skip kinds a future version of this package might add.
var knownKinds = map[Kind]struct{}{
	KindRunStarted: {}, KindPlannerStep: {}, KindSearchIssued: {},
	KindEvidenceAdded: {}, KindOutlineUpdated: {}, KindPlannerTerminated: {},
	KindWriterStep: {}, KindSectionRetrieved: {}, KindSectionWritten: {},
	KindWriterTerminated: {}, KindError: {}, KindRunFinished: {},
}

// Event is one journalled record.
type Event struct {
	TS      time.Time       `json:"ts"`
	RunID   string          `json:"run_id"`
	Step    int             `json:"step"`
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Known reports whether e.Kind is part of the enumeration this build of
// the package understands.
func (e Event) Known() bool {
	_, ok := knownKinds[e.Kind]
	return ok
}

// DecodePayload unmarshals e.Payload into v.
func (e Event) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// Journal is the single-writer, append-only log for one run.
type Journal struct {
	mu      sync.Mutex
	file    *os.File
	runID   string
	step    int
	lastErr error       // sticky: set on the first Append failure, never cleared
	mirror  *RedisMirror // optional; nil when no Redis mirror is configured
}

// SetMirror attaches a Redis mirror that every subsequent successful
// Append also forwards to. Safe to call at most once per Journal; mirror
// may be nil to detach (used implicitly when Redis is unconfigured).
func (j *Journal) SetMirror(mirror *RedisMirror) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.mirror = mirror
}

// Open creates or resumes the journal at <run-dir>/events.jsonl. On resume
// it replays the file to recover the last committed step so subsequent
// Append calls continue the monotonic step sequence.
func Open(dir, runID string) (*Journal, error) {
	path := dir + "/events.jsonl"
	events, err := Replay(path)
	if err != nil {
		return nil, err
	}
	lastStep := 0
	for _, e := range events {
		if e.Step > lastStep {
			lastStep = e.Step
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open events.jsonl: %w", err)
	}
	return &Journal{file: f, runID: runID, step: lastStep}, nil
}

// Replay reads every well-formed line of path in order. A truncated or
// corrupt trailing line (the signature of a crash mid-write) is discarded;
// replay stops at the first such line rather than erroring, since nothing
// after a torn write can be trusted.
func Replay(path string) ([]Event, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open events.jsonl for replay: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var events []Event
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			break
		}
		events = append(events, e)
	}
	return events, nil
}

// Append commits a new event with the next monotonic step number, writing
// and fsyncing the JSONL line before returning. A failure here (disk full,
// run directory removed out from under the process) is sticky: it is
// logged immediately and latched in Err(), since most call sites in the
// Planner/Writer loops discard Append's own return value and rely on the
// orchestrator to notice Err() at the end of each phase and escalate to a
// fatal run rather than silently continuing on an unwritable journal.
func (j *Journal) Append(kind Kind, payload any) (Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, j.fail(fmt.Errorf("marshal event payload: %w", err))
	}
	j.step++
	e := Event{
		TS:      time.Now().UTC(),
		RunID:   j.runID,
		Step:    j.step,
		Kind:    kind,
		Payload: raw,
	}
	line, err := json.Marshal(e)
	if err != nil {
		j.step--
		return Event{}, j.fail(fmt.Errorf("marshal event: %w", err))
	}
	line = append(line, '\n')
	if _, err := j.file.Write(line); err != nil {
		j.step--
		return Event{}, j.fail(fmt.Errorf("append event: %w", err))
	}
	if err := j.file.Sync(); err != nil {
		j.step--
		return Event{}, j.fail(fmt.Errorf("fsync events.jsonl: %w", err))
	}
	if j.mirror != nil {
		mctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if merr := j.mirror.Mirror(mctx, e); merr != nil {
			log.Printf("[JOURNAL] run %s: redis mirror: %v", j.runID, merr)
		}
		cancel()
	}
	return e, nil
}

// fail logs err, latches it as the journal's sticky error if none is set
// yet, and returns it unchanged. Caller must already hold j.mu.
func (j *Journal) fail(err error) error {
	log.Printf("[JOURNAL] run %s: %v", j.runID, err)
	if j.lastErr == nil {
		j.lastErr = err
	}
	return err
}

// Err reports the first Append failure this journal has seen, if any. The
// orchestrator checks this after each phase to escalate an unwritable run
// directory to a fatal outcome even though individual Append calls inside
// the Planner/Writer loops ignore their own error return.
func (j *Journal) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastErr
}

// Step returns the last step number committed so far.
func (j *Journal) Step() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.step
}

// Close closes the underlying file handle.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}
