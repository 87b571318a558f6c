package progress

// #region imports
import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/danielpatrickdp/bibo/internal/persona"
)

// #endregion

// #region wire

// wireEvent is the JSON shape consumers see:
// {stage, data: Stage|{critique,refinedText?}|null, brains?, flowType}.
type wireEvent struct {
	Stage    string          `json:"stage"`
	Data     json.RawMessage `json:"data"`
	Brains   []persona.ID    `json:"brains,omitempty"`
	FlowType *FlowType       `json:"flowType"`
}

var nullData = json.RawMessage("null")

// ErrUnknownEventData is returned when an event payload is neither a stage
// nor a review cycle.
var ErrUnknownEventData = errors.New("unrecognised event data")

// MarshalJSON implements json.Marshaler.
func (e Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{Stage: e.Label, Data: nullData, Brains: e.Brains}
	if e.Flow != FlowNone {
		f := e.Flow
		w.FlowType = &f
	}

	var err error
	switch {
	case e.Stage != nil:
		w.Data, err = json.Marshal(e.Stage)
	case e.Review != nil:
		w.Data, err = json.Marshal(e.Review)
	}
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Event) UnmarshalJSON(b []byte) error {
	var w wireEvent
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*e = Event{Label: w.Stage, Brains: w.Brains}
	if w.FlowType != nil {
		e.Flow = *w.FlowType
	}

	data := bytes.TrimSpace(w.Data)
	if len(data) == 0 || bytes.Equal(data, nullData) {
		return nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("decode event data: %w", err)
	}
	switch {
	case probe["title"] != nil:
		var s Stage
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode stage: %w", err)
		}
		e.Stage = &s
	case probe["critique"] != nil:
		var r ReviewCycle
		if err := json.Unmarshal(data, &r); err != nil {
			return fmt.Errorf("decode review cycle: %w", err)
		}
		e.Review = &r
	default:
		return ErrUnknownEventData
	}
	return nil
}

// #endregion
