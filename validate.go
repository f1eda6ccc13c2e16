package main

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ResourceInput is the submission payload. Field rules mirror the submit form
// contract; authorEmail comes from the session, never from the payload.
type ResourceInput struct {
	Title       string   `json:"title" form:"title" validate:"required,min=5"`
	Description string   `json:"description" form:"description" validate:"required,min=10"`
	URL         string   `json:"url" form:"url" validate:"required,url"`
	Category    string   `json:"category" form:"category" validate:"required"`
	Tags        []string `json:"tags" form:"tags" validate:"required,min=1"`
}

// ResourceUpdateInput omits url: it is frozen after creation.
type ResourceUpdateInput struct {
	Title       string   `json:"title" form:"title" validate:"required,min=5"`
	Description string   `json:"description" form:"description" validate:"required,min=10"`
	Category    string   `json:"category" form:"category" validate:"required"`
	Tags        []string `json:"tags" form:"tags" validate:"required,min=1"`
}

// ValidateInput is a pure function from a tagged input struct to either nil or
// a field -> messages map safe to return to the client verbatim.
func ValidateInput(in interface{}) *ValidationError {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return &ValidationError{Fields: map[string][]string{
			"_form": {"Invalid request payload."},
		}}
	}

	fields := make(map[string][]string)
	for _, fe := range verrs {
		var field, msg string
		switch fe.Field() {
		case "Title":
			field, msg = "title", "Title must be at least 5 characters long."
		case "Description":
			field, msg = "description", "Description must be at least 10 characters long."
		case "URL":
			field, msg = "url", "Please enter a valid URL."
		case "Category":
			field, msg = "category", "Please select a category."
		case "Tags":
			field, msg = "tags", "Please add at least one tag."
		default:
			field, msg = fe.Field(), "Invalid value."
		}
		fields[field] = append(fields[field], msg)
	}
	return &ValidationError{Fields: fields}
}

func validEmail(email string) bool {
	return validate.Var(email, "required,email") == nil
}
