package proto

import (
	"fmt"
	"strconv"
	"strings"
)

// Capability gates for version-conditional wire shapes. Every call site
// that varies by negotiated version consults one of these helpers; no
// inline version comparisons elsewhere.

// TaskCodePrefixed reports whether task codes carry a leading "q" type
// tag on the wire. Dropped in 115.
func TaskCodePrefixed(v int) bool {
	return v < 115
}

// RubricIDsAsList reports whether rubric ID references travel as a JSON
// list. Older servers expect a comma-joined string.
func RubricIDsAsList(v int) bool {
	return v >= 114
}

// EncodeRubricIDs renders a rubric ID list in the wire shape for the
// negotiated version: a []string for list-capable servers, a single
// comma-joined string otherwise.
func EncodeRubricIDs(v int, ids []string) interface{} {
	if RubricIDsAsList(v) {
		if ids == nil {
			return []string{}
		}
		return ids
	}
	return strings.Join(ids, ",")
}

// DecodeRubricIDs parses a rubric ID field that may be either wire shape.
func DecodeRubricIDs(raw interface{}) []string {
	switch val := raw.(type) {
	case []string:
		return val
	case []interface{}:
		ids := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				ids = append(ids, s)
			}
		}
		return ids
	case string:
		if val == "" {
			return nil
		}
		return strings.Split(val, ",")
	}
	return nil
}

// TaskCode renders the canonical wire identifier for a task: a
// zero-padded four-digit paper number and a "g"-separated question
// index, e.g. "0017g3". Version-gated: prefixed builds prepend "q".
func TaskCode(v, paperNumber, questionIndex int) string {
	code := formatTaskCode(paperNumber, questionIndex)
	if TaskCodePrefixed(v) {
		return "q" + code
	}
	return code
}

// ParseTaskCode extracts (paper, question) from a task code in either
// wire shape. The optional "q" prefix is accepted regardless of version
// so the server can serve the whole supported window.
func ParseTaskCode(code string) (paperNumber, questionIndex int, err error) {
	trimmed := strings.TrimPrefix(code, "q")
	parts := strings.SplitN(trimmed, "g", 2)
	if len(parts) != 2 {
		return 0, 0, &Error{Kind: NoSuchTask, Msg: "malformed task code " + strconv.Quote(code)}
	}
	paperNumber, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, &Error{Kind: NoSuchTask, Msg: "malformed paper number in task code " + strconv.Quote(code)}
	}
	questionIndex, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, &Error{Kind: NoSuchTask, Msg: "malformed question index in task code " + strconv.Quote(code)}
	}
	return paperNumber, questionIndex, nil
}

func formatTaskCode(paperNumber, questionIndex int) string {
	return fmt.Sprintf("%04dg%d", paperNumber, questionIndex)
}
