package contracts

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Status codes used in result payloads. A result succeeds unless it
// carries a code outside [CodeSuccessMin, CodeSuccessMax).
const (
	CodeSuccessMin = 10000
	CodeSuccessMax = 20000

	CodeOK             = 10000
	CodeBadRequest     = 40000
	CodeUnknownCommand = 40400
	CodeInternal       = 50000
)

// DefaultNativeErrorMessage is used when a failed result carries no msg
const DefaultNativeErrorMessage = "native error"

// Outcome is the classification of a result payload
type Outcome struct {
	Failed  bool
	Code    int
	Message string
}

// IsSuccessCode reports whether code lies in the success range
func IsSuccessCode(code int) bool {
	return code >= CodeSuccessMin && code < CodeSuccessMax
}

// Classify applies the status-code policy to a raw result. Only JSON
// objects with a "code" field can fail. A code that is absent, null,
// false, 0 or "" never fails; any other code fails unless it reads as a
// number in the success range. Numeric strings such as "15000" count as
// numbers.
func Classify(result json.RawMessage) Outcome {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(result, &fields); err != nil || fields == nil {
		return Outcome{}
	}

	rawCode, ok := fields["code"]
	if !ok {
		return Outcome{}
	}
	code, numeric, set := codeValue(rawCode)
	if !set {
		return Outcome{}
	}

	outcome := Outcome{}
	if numeric {
		outcome.Code = int(code)
		if code >= CodeSuccessMin && code < CodeSuccessMax {
			return outcome
		}
	}

	outcome.Failed = true
	outcome.Message = DefaultNativeErrorMessage
	if rawMsg, ok := fields["msg"]; ok {
		var msg string
		if err := json.Unmarshal(rawMsg, &msg); err == nil && strings.TrimSpace(msg) != "" {
			outcome.Message = msg
		}
	}
	return outcome
}

// codeValue reads a code field. set is false for the empty values null,
// false, 0 and "". numeric is false when the value has no numeric reading.
func codeValue(raw json.RawMessage) (code float64, numeric, set bool) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false, false
	}

	switch c := v.(type) {
	case nil:
		return 0, false, false
	case bool:
		if !c {
			return 0, false, false
		}
		return 1, true, true
	case float64:
		return c, true, c != 0
	case string:
		if c == "" {
			return 0, false, false
		}
		trimmed := strings.TrimSpace(c)
		if trimmed == "" {
			return 0, true, true
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false, true
		}
		return f, true, true
	}
	return 0, false, true
}

// SuccessResult shapes a handler value into a success result: objects get
// code CodeOK unless they already carry one, other values are wrapped
// under "data".
func SuccessResult(value interface{}) (json.RawMessage, error) {
	raw, err := MarshalPayload(value)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return json.Marshal(map[string]interface{}{"code": CodeOK})
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err == nil && fields != nil {
		if _, hasCode := fields["code"]; !hasCode {
			fields["code"] = json.RawMessage("10000")
		}
		return json.Marshal(fields)
	}

	return json.Marshal(map[string]interface{}{"code": CodeOK, "data": raw})
}

// FailureResult builds a failure result payload
func FailureResult(code int, msg string) json.RawMessage {
	if IsSuccessCode(code) || code == 0 {
		code = CodeInternal
	}
	raw, _ := json.Marshal(map[string]interface{}{"code": code, "msg": msg})
	return raw
}
