package form

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/fomu/core"
)

// FieldKind discriminates the closed set of question field variants.
type FieldKind string

const (
	FieldText     FieldKind = "text"
	FieldRadio    FieldKind = "radio"
	FieldScale    FieldKind = "scale"
	FieldMCQAudio FieldKind = "mcq_audio"
)

type (
	// Field is one typed question descriptor in a digital form schema.
	// The set of variants is closed; decoding an unknown kind fails.
	Field interface {
		Key() string
		Kind() FieldKind
		validate() error
	}

	baseField struct {
		FieldKey string `json:"key"`
		Label    string `json:"label"`
		Required bool   `json:"required,omitempty"`
	}

	// TextField is a free text question.
	TextField struct {
		baseField
		Multiline bool `json:"multiline,omitempty"`
	}

	// RadioField is a single-choice question.
	RadioField struct {
		baseField
		Choices []string `json:"choices"`
	}

	// ScaleField is a numeric scale question (e.g. 1..5 Likert).
	ScaleField struct {
		baseField
		Min      int    `json:"min"`
		Max      int    `json:"max"`
		Step     int    `json:"step,omitempty"`
		MinLabel string `json:"min_label,omitempty"`
		MaxLabel string `json:"max_label,omitempty"`
	}

	// MCQAudioField is a multi-choice question tied to an audio prompt.
	MCQAudioField struct {
		baseField
		Choices  []string `json:"choices"`
		AudioURL string   `json:"audio_url"`
	}
)

func (f baseField) Key() string { return f.FieldKey }

func (f baseField) validate() error {
	if f.FieldKey == "" {
		return errors.New("field key is required")
	}
	return nil
}

func (f TextField) Kind() FieldKind { return FieldText }

func (f RadioField) Kind() FieldKind { return FieldRadio }
func (f RadioField) validate() error {
	if err := f.baseField.validate(); err != nil {
		return err
	}
	if len(f.Choices) == 0 {
		return errors.Errorf("field %q: radio requires choices", f.FieldKey)
	}
	return nil
}

func (f ScaleField) Kind() FieldKind { return FieldScale }
func (f ScaleField) validate() error {
	if err := f.baseField.validate(); err != nil {
		return err
	}
	if f.Min >= f.Max {
		return errors.Errorf("field %q: scale min must be < max", f.FieldKey)
	}
	return nil
}

func (f MCQAudioField) Kind() FieldKind { return FieldMCQAudio }
func (f MCQAudioField) validate() error {
	if err := f.baseField.validate(); err != nil {
		return err
	}
	if len(f.Choices) == 0 {
		return errors.Errorf("field %q: mcq_audio requires choices", f.FieldKey)
	}
	return nil
}

type fieldEnvelope struct {
	Kind FieldKind `json:"kind"`
}

// Schema is a digital form's question list plus an optional answer key.
// PDF forms carry an empty Schema.
type Schema struct {
	Version   int               `json:"version"`
	Fields    []Field           `json:"fields"`
	AnswerKey map[string]string `json:"answerKey,omitempty"`
}

func (s *Schema) UnmarshalJSON(data []byte) error {
	var raw struct {
		Version   int               `json:"version"`
		Fields    []json.RawMessage `json:"fields"`
		AnswerKey map[string]string `json:"answerKey"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Version = raw.Version
	s.AnswerKey = raw.AnswerKey
	s.Fields = nil
	for i, rawFld := range raw.Fields {
		fld, err := decodeField(rawFld)
		if err != nil {
			return errors.Wrapf(err, "decoding field %d", i)
		}
		s.Fields = append(s.Fields, fld)
	}
	return nil
}

func decodeField(data []byte) (Field, error) {
	var envelope fieldEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}

	var fld Field
	switch envelope.Kind {
	case FieldText:
		f := TextField{}
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
		fld = f
	case FieldRadio:
		f := RadioField{}
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
		fld = f
	case FieldScale:
		f := ScaleField{}
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
		fld = f
	case FieldMCQAudio:
		f := MCQAudioField{}
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
		fld = f
	default:
		return nil, errors.Errorf("unknown field kind %q", envelope.Kind)
	}
	return fld, nil
}

func (f TextField) MarshalJSON() ([]byte, error)  { return marshalField(FieldText, alias1(f)) }
func (f RadioField) MarshalJSON() ([]byte, error) { return marshalField(FieldRadio, alias2(f)) }
func (f ScaleField) MarshalJSON() ([]byte, error) { return marshalField(FieldScale, alias3(f)) }
func (f MCQAudioField) MarshalJSON() ([]byte, error) {
	return marshalField(FieldMCQAudio, alias4(f))
}

// aliases strip the MarshalJSON method to avoid recursion
type (
	alias1 TextField
	alias2 RadioField
	alias3 ScaleField
	alias4 MCQAudioField
)

func marshalField(kind FieldKind, fld interface{}) ([]byte, error) {
	inner, err := json.Marshal(fld)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err = json.Unmarshal(inner, &m); err != nil {
		return nil, err
	}
	m["kind"] = kind
	return json.Marshal(m)
}

// Validate enforces the schema invariants: a valid variant per field,
// unique field keys, and answer-key keys being a subset of field keys.
func (s Schema) Validate() error {
	seen := make(map[string]bool, len(s.Fields))
	for _, fld := range s.Fields {
		if err := fld.validate(); err != nil {
			return core.NewValidationError(err, core.FieldError{Field: "schema", Error: err.Error()})
		}
		if seen[fld.Key()] {
			err := fmt.Errorf("duplicate field key %q", fld.Key())
			return core.NewValidationError(err, core.FieldError{Field: "schema", Error: err.Error()})
		}
		seen[fld.Key()] = true
	}
	for key := range s.AnswerKey {
		if !seen[key] {
			err := fmt.Errorf("answer key refers to unknown field %q", key)
			return core.NewValidationError(err, core.FieldError{Field: "schema", Error: err.Error()})
		}
	}
	return nil
}
