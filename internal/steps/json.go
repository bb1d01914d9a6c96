package steps

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Tagged wraps a Step so its JSON form carries the action tag.
type Tagged struct {
	Step Step
}

func (t Tagged) MarshalJSON() ([]byte, error) {
	if t.Step == nil {
		return []byte("null"), nil
	}
	body, err := json.Marshal(t.Step)
	if err != nil {
		return nil, err
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("unexpected step encoding for %s", t.Step.Action())
	}
	var buf bytes.Buffer
	buf.WriteString(`{"action":`)
	buf.WriteString(strconv.Quote(string(t.Step.Action())))
	if rest := bytes.TrimSpace(body[1:]); len(rest) > 1 {
		buf.WriteByte(',')
	}
	buf.Write(body[1:])
	return buf.Bytes(), nil
}
