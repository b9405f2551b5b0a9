package trainer

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
)

const eventPrefix = "@@yolotrain "

// Event is one line of the driver protocol
type Event struct {
	Event   string `json:"event"` // resolved, epoch_end, done or error
	Epoch   int    `json:"epoch,omitempty"`
	Path    string `json:"path,omitempty"`
	SaveDir string `json:"save_dir,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// ParseEvent decodes a driver output line. ok is false for lines that are not events.
func ParseEvent(line string) (ev Event, ok bool, err error) {
	payload, found := strings.CutPrefix(strings.TrimRight(line, "\r\n"), eventPrefix)
	if !found {
		return ev, false, nil
	}
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return ev, true, fmt.Errorf("could not parse driver event %q. %w", payload, err)
	}
	return ev, true, nil
}

// maxLineBytes bounds a single driver output line. Longer lines are skipped.
const maxLineBytes = 1024 * 1024

// readEvents reads r line by line and hands every event to handle on the calling goroutine.
// Non-event lines are training chatter and only logged.
func readEvents(r io.Reader, handle func(Event)) error {
	br := bufio.NewReaderSize(r, 64*1024)

	for {
		line, truncated, err := readLine(br)
		switch {
		case truncated:
			log.Warn().Int("limit", maxLineBytes).Msg("Skipping over-long trainer output line")
		case len(line) > 0:
			handleLine(string(line), handle)
		}

		if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}
	}
}

// readLine returns the next line of br. A line longer than maxLineBytes is consumed
// entirely and reported as truncated.
func readLine(br *bufio.Reader) (line []byte, truncated bool, err error) {
	for {
		chunk, err := br.ReadSlice('\n')
		if !truncated && len(line)+len(chunk) <= maxLineBytes {
			line = append(line, chunk...)
		} else {
			line, truncated = nil, true
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return line, truncated, err
		}
	}
}

func handleLine(line string, handle func(Event)) {
	ev, ok, err := ParseEvent(line)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("Ignoring malformed driver event")
	case ok:
		handle(ev)
	default:
		log.Debug().Str("line", strings.TrimRight(line, "\r\n")).Msg("trainer")
	}
}

// tailBuffer keeps the last max bytes written to it
type tailBuffer struct {
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(string(t.buf))
}
