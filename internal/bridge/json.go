package bridge

import "encoding/json"

// bindJSON unmarshals body into v. Handlers use this instead of gin's
// ShouldBindJSON because the command envelope's "cmd" field must be read
// before the router knows which concrete payload type to bind into, and
// gin only allows reading the request body once.
func bindJSON(body []byte, v any) error {
	return json.Unmarshal(body, v)
}
