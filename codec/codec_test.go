package codec_test

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shyp/jobqueue/codec"
	"github.com/Shyp/jobqueue/models"
)

type greetParams struct {
	Name string `json:"name"`
}

func TestFunctionRoundTrip(t *testing.T) {
	called := make(chan string, 1)
	codec.RegisterFunction("codec_test.greet", func(params json.RawMessage) (any, error) {
		var p greetParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		called <- p.Name
		return "hello " + p.Name, nil
	})

	job := &models.Job{
		CallableType: models.CallableFunction,
		Callable:     codec.EncodeFunction("codec_test.greet"),
		Params:       json.RawMessage(`{"name":"ada"}`),
	}

	invoke, err := codec.Decode(job)
	require.NoError(t, err)

	result, err := invoke()
	require.NoError(t, err)
	assert.Equal(t, "hello ada", result)
	assert.Equal(t, "ada", <-called)
}

func TestFunctionUnknown(t *testing.T) {
	job := &models.Job{
		CallableType: models.CallableFunction,
		Callable:     codec.EncodeFunction("codec_test.nope"),
		Params:       json.RawMessage(`{}`),
	}
	_, err := codec.Decode(job)
	assert.ErrorIs(t, err, codec.ErrUnknownCallable)
}

func TestClosureRoundTrip(t *testing.T) {
	codec.RegisterFunction("codec_test.closure-target", func(params json.RawMessage) (any, error) {
		return "ok", nil
	})

	callable, paramBytes, err := codec.EncodeClosure("codec_test.closure-target", map[string]string{"k": "v"})
	require.NoError(t, err)

	job := &models.Job{
		CallableType: models.CallableClosure,
		Callable:     callable,
		Params:       json.RawMessage(paramBytes),
	}
	invoke, err := codec.Decode(job)
	require.NoError(t, err)
	result, err := invoke()
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestClosureTamperedHMACIsTerminal(t *testing.T) {
	callable, _, err := codec.EncodeClosure("codec_test.closure-target", map[string]string{"k": "v"})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(callable, &raw))
	raw["params"] = json.RawMessage(`{"k":"tampered"}`)
	tampered, err := json.Marshal(raw)
	require.NoError(t, err)

	job := &models.Job{CallableType: models.CallableClosure, Callable: tampered}
	_, err = codec.Decode(job)
	assert.True(t, errors.Is(err, codec.ErrTamperedClosure))
}

type greeter struct {
	Greeting string `json:"greeting"`
}

func TestClassMethodWithReceiver(t *testing.T) {
	codec.RegisterMethod("codec_test", "Greet", reflect.TypeOf(greeter{}), func(recv any, params json.RawMessage) (any, error) {
		g := recv.(greeter)
		return g.Greeting + "!", nil
	})

	instance, err := codec.EncodeReceiver(greeter{Greeting: "hi"})
	require.NoError(t, err)

	job := &models.Job{
		CallableType:   models.CallableClassMethod,
		Callable:       codec.EncodeMethod("codec_test", "Greet"),
		ObjectInstance: instance,
		Params:         json.RawMessage(`{}`),
	}
	invoke, err := codec.Decode(job)
	require.NoError(t, err)
	result, err := invoke()
	require.NoError(t, err)
	assert.Equal(t, "hi!", result)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, models.CallableClosure, codec.Classify("x", true, false))
	assert.Equal(t, models.CallableClassMethod, codec.Classify("x", false, true))
	assert.Equal(t, models.CallableFunction, codec.Classify("x", false, false))
}
