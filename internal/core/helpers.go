package core

import "encoding/json"

// JsEscape returns s as a quoted JavaScript string literal.
func JsEscape(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
