package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/varsilias/chat-relay/pkg/types"
)

const maxBodyBytes = 8 << 20

// Wire shapes with pointer fields so a missing key can be told apart from
// an empty string.
type messageBody struct {
	Role    *string `json:"role" validate:"required"`
	Content *string `json:"content" validate:"required"`
}

type chatBody struct {
	Messages []messageBody `json:"messages" validate:"required,dive"`
	Model    *string       `json:"model"`
}

type historyBody struct {
	Messages []messageBody `json:"messages" validate:"required,dive"`
}

type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// requestError is a client error with the status it maps to.
type requestError struct {
	Status int          `json:"-"`
	Msg    string       `json:"error"`
	Fields []FieldError `json:"fields,omitempty"`
}

func (e *requestError) Error() string { return e.Msg }

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func decodeBody(v *validator.Validate, r io.Reader, dst any) *requestError {
	dec := json.NewDecoder(r)
	if err := dec.Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return &requestError{
				Status: http.StatusUnprocessableEntity,
				Msg:    "validation failed",
				Fields: []FieldError{{Field: typeErr.Field, Rule: "type:" + typeErr.Type.String()}},
			}
		}
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return &requestError{Status: http.StatusRequestEntityTooLarge, Msg: "request body too large"}
		}
		return &requestError{Status: http.StatusBadRequest, Msg: "invalid json"}
	}
	if err := v.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return &requestError{Status: http.StatusBadRequest, Msg: err.Error()}
		}
		fields := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			ns := fe.Namespace()
			if _, rest, ok := strings.Cut(ns, "."); ok {
				ns = rest
			}
			fields = append(fields, FieldError{Field: ns, Rule: fe.Tag()})
		}
		return &requestError{Status: http.StatusUnprocessableEntity, Msg: "validation failed", Fields: fields}
	}
	return nil
}

func toMessages(in []messageBody) []types.Message {
	out := make([]types.Message, 0, len(in))
	for _, m := range in {
		out = append(out, types.Message{Role: types.Role(*m.Role), Content: *m.Content})
	}
	return out
}

func decodeChat(v *validator.Validate, r io.Reader) (types.ChatRequest, *requestError) {
	var body chatBody
	if err := decodeBody(v, r, &body); err != nil {
		return types.ChatRequest{}, err
	}
	req := types.ChatRequest{Messages: toMessages(body.Messages)}
	if body.Model != nil {
		req.Model = strings.TrimSpace(*body.Model)
	}
	return req, nil
}

func decodeHistory(v *validator.Validate, r io.Reader) (types.History, *requestError) {
	var body historyBody
	if err := decodeBody(v, r, &body); err != nil {
		return types.History{}, err
	}
	return types.History{Messages: toMessages(body.Messages)}, nil
}

func (e *requestError) String() string {
	if len(e.Fields) == 0 {
		return e.Msg
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s (%s)", f.Field, f.Rule))
	}
	return e.Msg + ": " + strings.Join(parts, ", ")
}
