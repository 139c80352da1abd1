package classify

import "fmt"

// Category is the classification assigned to an issue or pull request.
type Category int

const (
	Unclassified Category = iota
	Bug
	Feature
	Documentation
	Question
	Duplicate
)

// String returns the label-friendly name of the category.
func (c Category) String() string {
	switch c {
	case Bug:
		return "bug"
	case Feature:
		return "feature"
	case Documentation:
		return "documentation"
	case Question:
		return "question"
	case Duplicate:
		return "duplicate"
	default:
		return "unclassified"
	}
}

// ParseCategory converts a configured category name into a Category.
func ParseCategory(s string) (Category, error) {
	switch s {
	case "bug":
		return Bug, nil
	case "feature":
		return Feature, nil
	case "documentation":
		return Documentation, nil
	case "question":
		return Question, nil
	case "duplicate":
		return Duplicate, nil
	default:
		return Unclassified, fmt.Errorf("unknown category %q", s)
	}
}
