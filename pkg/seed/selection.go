// Package seed implements suggested-question behavior: click to pre-fill
// the input and auto-advancing carousels of questions.
package seed

// Selection is the pending input value together with the suggested question
// it came from, if any. It is not safe for concurrent use; the owner
// serializes access.
type Selection struct {
	value    string
	selected string
}

// Click pre-fills the input with question and highlights it. It never
// submits.
func (s *Selection) Click(question string) {
	s.value = question
	s.selected = question
}

// Type replaces the input with what the user typed and drops the highlight.
func (s *Selection) Type(value string) {
	s.value = value
	s.selected = ""
}

// Reset clears both the input and the highlight.
func (s *Selection) Reset() {
	s.value = ""
	s.selected = ""
}

// Value is the pending input.
func (s *Selection) Value() string {
	return s.value
}

// Selected is the highlighted question, or "" when the input was typed.
func (s *Selection) Selected() string {
	return s.selected
}

// SplitRows divides questions into two ordered rows for the two-row
// carousel. The first row gets the extra question when the count is odd.
func SplitRows(questions []string) (row1, row2 []string) {
	mid := (len(questions) + 1) / 2
	row1 = append([]string(nil), questions[:mid]...)
	row2 = append([]string(nil), questions[mid:]...)
	return row1, row2
}
