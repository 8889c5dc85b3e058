package contracts

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Run("code in success range succeeds", func(t *testing.T) {
		outcome := Classify(json.RawMessage(`{"code":10001,"value":3}`))

		assert.False(t, outcome.Failed)
		assert.Equal(t, 10001, outcome.Code)
	})

	t.Run("code outside success range fails with msg", func(t *testing.T) {
		outcome := Classify(json.RawMessage(`{"code":40000,"msg":"bad args"}`))

		assert.True(t, outcome.Failed)
		assert.Equal(t, 40000, outcome.Code)
		assert.Equal(t, "bad args", outcome.Message)
	})

	t.Run("failure without msg uses fallback", func(t *testing.T) {
		outcome := Classify(json.RawMessage(`{"code":20000}`))

		assert.True(t, outcome.Failed)
		assert.Equal(t, DefaultNativeErrorMessage, outcome.Message)
	})

	t.Run("missing or empty code succeeds", func(t *testing.T) {
		for _, raw := range []string{
			`{"windows":[]}`, `{"code":0}`, `{"code":null}`, `{"code":false}`, `{"code":""}`,
			`false`, `0`, `null`, `[1,2]`,
		} {
			assert.False(t, Classify(json.RawMessage(raw)).Failed, "result %s", raw)
		}
	})

	t.Run("numeric string codes are read as numbers", func(t *testing.T) {
		outcome := Classify(json.RawMessage(`{"code":"40000","msg":"bad args"}`))
		assert.True(t, outcome.Failed)
		assert.Equal(t, 40000, outcome.Code)
		assert.Equal(t, "bad args", outcome.Message)

		outcome = Classify(json.RawMessage(`{"code":"15000"}`))
		assert.False(t, outcome.Failed)
		assert.Equal(t, 15000, outcome.Code)
	})

	t.Run("codes without a numeric reading fail", func(t *testing.T) {
		for _, raw := range []string{`{"code":"E1"}`, `{"code":true}`, `{"code":{}}`, `{"code":[]}`, `{"code":" "}`} {
			outcome := Classify(json.RawMessage(raw))
			assert.True(t, outcome.Failed, "result %s", raw)
			assert.Equal(t, DefaultNativeErrorMessage, outcome.Message, "result %s", raw)
		}
	})

	t.Run("fractional codes are compared before truncation", func(t *testing.T) {
		assert.True(t, Classify(json.RawMessage(`{"code":-0.5}`)).Failed)
		assert.True(t, Classify(json.RawMessage(`{"code":9999.5}`)).Failed)
		assert.False(t, Classify(json.RawMessage(`{"code":19999.5}`)).Failed)
		assert.True(t, Classify(json.RawMessage(`{"code":20000.0}`)).Failed)
	})
}

func TestSuccessResult(t *testing.T) {
	t.Run("objects get the ok code", func(t *testing.T) {
		raw, err := SuccessResult(map[string]int{"value": 3})
		assert.NoError(t, err)
		assert.JSONEq(t, `{"code":10000,"value":3}`, string(raw))
	})

	t.Run("existing code is preserved", func(t *testing.T) {
		raw, err := SuccessResult(map[string]int{"code": 10001})
		assert.NoError(t, err)
		assert.JSONEq(t, `{"code":10001}`, string(raw))
	})

	t.Run("scalars are wrapped", func(t *testing.T) {
		raw, err := SuccessResult(42)
		assert.NoError(t, err)
		assert.JSONEq(t, `{"code":10000,"data":42}`, string(raw))
	})

	t.Run("nil becomes a bare ok", func(t *testing.T) {
		raw, err := SuccessResult(nil)
		assert.NoError(t, err)
		assert.JSONEq(t, `{"code":10000}`, string(raw))
	})
}

func TestFailureResult(t *testing.T) {
	assert.JSONEq(t, `{"code":40400,"msg":"unknown command: x"}`, string(FailureResult(CodeUnknownCommand, "unknown command: x")))

	// a success code can never describe a failure
	outcome := Classify(FailureResult(CodeOK, "boom"))
	assert.True(t, outcome.Failed)
	assert.Equal(t, CodeInternal, outcome.Code)
}

func TestErrors(t *testing.T) {
	t.Run("TimeoutError names the command", func(t *testing.T) {
		err := error(&TimeoutError{Command: "ping", ID: "1", Timeout: 50 * time.Millisecond})

		assert.Contains(t, err.Error(), "ping")
		assert.True(t, errors.Is(err, ErrTimeout))
		assert.False(t, errors.Is(err, ErrNative))
	})

	t.Run("NativeError carries the native message", func(t *testing.T) {
		err := error(&NativeError{Command: "add", Code: 40000, Message: "bad args"})

		assert.Equal(t, "bad args", err.Error())
		assert.True(t, errors.Is(err, ErrNative))

		var nativeErr *NativeError
		assert.True(t, errors.As(err, &nativeErr))
		assert.Equal(t, 40000, nativeErr.Code)
	})

	t.Run("SendError unwraps the transport error", func(t *testing.T) {
		cause := errors.New("broken pipe")
		err := error(&SendError{Command: "add", ID: "1", Err: cause})

		assert.True(t, errors.Is(err, cause))
		assert.Contains(t, err.Error(), "add")
	})
}
