package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/Dmi3yy/webui-pipes/internal/events"
)

const doneMarker = "[DONE]"

// Relay forwards the "data:" events of an SSE body to sink and returns the
// number of forwarded events. JSON objects are forwarded as they are; any
// other JSON value v is sent as {"type": "data", "data": v}. Lines that are
// not JSON are skipped. Lines may be of any length.
func Relay(ctx context.Context, body io.Reader, sink events.Sink) (int, error) {
	reader := bufio.NewReaderSize(body, 64*1024)
	forwarded := 0

	for {
		if err := ctx.Err(); err != nil {
			return forwarded, err
		}

		line, readErr := reader.ReadBytes('\n')
		if len(line) > 0 {
			payload, ok := dataPayload(line)
			if ok {
				if string(payload) == doneMarker {
					return forwarded, nil
				}
				if ev, ok := decodeEvent(payload); ok {
					_ = events.Emit(ctx, sink, ev)
					forwarded++
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return forwarded, nil
			}
			return forwarded, readErr
		}
	}
}

func dataPayload(line []byte) ([]byte, bool) {
	line = bytes.TrimRight(line, "\r\n")
	if !bytes.HasPrefix(line, []byte("data:")) {
		return nil, false
	}
	return bytes.TrimSpace(line[len("data:"):]), true
}

func decodeEvent(payload []byte) (events.Event, bool) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return nil, false
	}
	if obj, ok := v.(map[string]any); ok {
		return events.Event(obj), true
	}
	return events.Event{"type": "data", "data": v}, true
}
