package store

import "strings"

// FieldError holds validation messages for one attribute.
type FieldError struct {
	Field    string
	Messages []string
}

// FieldErrors accumulates messages per attribute, preserving first-seen order.
type FieldErrors []FieldError

// Add appends a message for field.
func (e *FieldErrors) Add(field, message string) {
	for i := range *e {
		if (*e)[i].Field == field {
			(*e)[i].Messages = append((*e)[i].Messages, message)
			return
		}
	}
	*e = append(*e, FieldError{Field: field, Messages: []string{message}})
}

// RenderErrors concatenates messages the way the grid widget expects: messages
// of one field joined by a space, each field block followed by a space.
func RenderErrors(errs []FieldError) string {
	var b strings.Builder
	for _, fe := range errs {
		b.WriteString(strings.Join(fe.Messages, " "))
		b.WriteString(" ")
	}
	return b.String()
}
