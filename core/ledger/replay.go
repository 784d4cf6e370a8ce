package ledger

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	nativecommon "lendledger/native/common"
	"lendledger/native/lending"
)

// maxLineBytes bounds a single JSONL record.
const maxLineBytes = 1 << 20

// ReplayResult summarises a replayed log.
type ReplayResult struct {
	Lines    int `json:"lines"`
	Applied  int `json:"applied"`
	Rejected int `json:"rejected"`
}

// Rejected reports whether err is an ordinary refusal of a well-formed action,
// as opposed to a malformed record or a storage failure.
func Rejected(err error) bool {
	if err == nil {
		return false
	}
	if lending.KindOf(err) != lending.KindUnknown {
		return true
	}
	return errors.Is(err, nativecommon.ErrModulePaused) || errors.Is(err, ErrDayRegressed)
}

// Replay applies a JSONL action log in order. Blank lines and lines starting
// with '#' are skipped. Undated records take the ledger day, never the clock,
// so a log replays to the same root whenever it is run. Rejected actions are
// counted and skipped; malformed records and storage failures abort the
// replay.
func (l *Ledger) Replay(ctx context.Context, r io.Reader) (ReplayResult, error) {
	var result ReplayResult
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Lines++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		action, err := DecodeAction(line)
		if err != nil {
			return result, fmt.Errorf("line %d: %w", result.Lines, err)
		}
		if _, err := l.execute(ctx, action, true); err != nil {
			if !Rejected(err) {
				return result, fmt.Errorf("line %d: %w", result.Lines, err)
			}
			result.Rejected++
			l.logger.Debug("replay skipped action",
				slog.Int("line", result.Lines),
				slog.String("action", action.Type),
				slog.String("error", err.Error()))
			continue
		}
		result.Applied++
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("read log: %w", err)
	}
	return result, nil
}

// DecodeAction parses one JSON action, rejecting unknown fields.
func DecodeAction(data []byte) (Action, error) {
	var action Action
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&action); err != nil {
		return Action{}, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	if decoder.More() {
		return Action{}, invalidf("trailing data after action")
	}
	return action, nil
}
