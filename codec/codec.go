// Package codec implements the Callable Codec (spec.md §4.3): encoding and
// decoding of a callable descriptor plus its parameters into the opaque
// bytes stored in models.Job.Callable/Params.
//
// Go has no runtime eval, so the Design Notes' resolution applies: the
// closure variant is restricted to registered, named function references
// rather than source-text extraction, exactly the way a language without
// dynamic evaluation must. The HMAC guard (spec.md §4.3/§7) is kept in
// full: it still protects against a worker invoking a payload that was
// altered out-of-band, it simply verifies a registry key instead of
// verifying decompiled source text.
package codec

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/Shyp/jobqueue/models"
)

// ErrTamperedClosure is raised when a closure payload's HMAC does not match,
// per spec.md §7. The Execution Loop treats this as always-terminal.
var ErrTamperedClosure = errors.New("codec: closure payload failed integrity check")

// ErrUnknownCallable is raised when a function/closure name or
// (namespace, method) pair isn't registered in this process.
var ErrUnknownCallable = errors.New("codec: callable is not registered in this worker")

// Func is the shape every registered function or closure target must have:
// it receives the job's decoded params and returns a result or error.
type Func func(params json.RawMessage) (any, error)

// Method is a registered instance/static method target. recv is nil for a
// static method, or the decoded receiver for an instance method.
type Method func(recv any, params json.RawMessage) (any, error)

var (
	mu          sync.RWMutex
	functions   = map[string]Func{}
	methods     = map[string]Method{}
	receiverTyp = map[string]reflect.Type{}
	processKey  []byte
)

func init() {
	processKey = make([]byte, 32)
	if _, err := rand.Read(processKey); err != nil {
		panic("codec: failed to generate process HMAC key: " + err.Error())
	}
}

// RegisterFunction makes name resolvable as a CallableFunction or
// CallableClosure target. Call this from an init() in the package that
// owns the job body, mirroring how rickover's downstream callers registered
// named job types in the jobs catalog table.
func RegisterFunction(name string, fn Func) {
	mu.Lock()
	defer mu.Unlock()
	functions[name] = fn
}

// RegisterMethod makes (namespace, methodName) resolvable as a
// CallableClassMethod target. recvType is the concrete type instance
// methods decode into; pass nil for a static method.
func RegisterMethod(namespace, methodName string, recvType reflect.Type, fn Method) {
	mu.Lock()
	defer mu.Unlock()
	key := methodKey(namespace, methodName)
	methods[key] = fn
	if recvType != nil {
		receiverTyp[key] = recvType
	}
}

func methodKey(namespace, method string) string {
	return namespace + "#" + method
}

// closureEnvelope is what gets JSON-marshaled into models.Job.Callable for
// CallableClosure jobs: the registry key, the captured/params bytes the
// HMAC covers, and the tag itself.
type closureEnvelope struct {
	Key    string          `json:"key"`
	Params json.RawMessage `json:"params"`
	HMAC   string          `json:"hmac"`
}

func sign(key string, params json.RawMessage) string {
	mac := hmac.New(sha256.New, processKey)
	mac.Write([]byte(key))
	mac.Write(params)
	return fmt.Sprintf("%x", mac.Sum(nil))
}

// EncodeClosure builds the {code, captured, hmac} envelope spec.md §4.3
// describes for a registered closure target.
func EncodeClosure(key string, params any) (callable []byte, paramBytes []byte, err error) {
	paramBytes, err = json.Marshal(params)
	if err != nil {
		return nil, nil, err
	}
	env := closureEnvelope{
		Key:    key,
		Params: paramBytes,
		HMAC:   sign(key, paramBytes),
	}
	callable, err = json.Marshal(env)
	if err != nil {
		return nil, nil, err
	}
	return callable, paramBytes, nil
}

// EncodeFunction builds the plain name-reference callable bytes for a
// CallableFunction job (no HMAC: spec.md only requires the integrity tag
// for closures, whose identity is otherwise unverifiable at decode time).
func EncodeFunction(name string) []byte {
	return []byte(name)
}

// staticMethodEnvelope is the stored form for a static (namespace, method)
// CallableClassMethod job.
type staticMethodEnvelope struct {
	Namespace string `json:"namespace"`
	Method    string `json:"method"`
}

// EncodeMethod builds the callable bytes for a CallableClassMethod job. It
// records only (namespace, method); an instance method's receiver is encoded
// separately by EncodeReceiver into models.Job.ObjectInstance.
func EncodeMethod(namespace, method string) []byte {
	b, _ := json.Marshal(staticMethodEnvelope{Namespace: namespace, Method: method})
	return b
}

// EncodeReceiver JSON-encodes an instance method's receiver state for
// storage in models.Job.ObjectInstance.
func EncodeReceiver(recv any) ([]byte, error) {
	return json.Marshal(recv)
}

// Decode resolves a Job's stored callable/params back into an invokable
// Func and its argument bytes, verifying the closure HMAC first per
// spec.md §4.3.
func Decode(job *models.Job) (invoke func() (any, error), err error) {
	switch job.CallableType {
	case models.CallableFunction:
		mu.RLock()
		fn, ok := functions[string(job.Callable)]
		mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: function %q", ErrUnknownCallable, job.Callable)
		}
		return func() (any, error) { return fn(job.Params) }, nil

	case models.CallableClosure:
		var env closureEnvelope
		if err := json.Unmarshal(job.Callable, &env); err != nil {
			return nil, fmt.Errorf("codec: malformed closure envelope: %w", err)
		}
		want := sign(env.Key, env.Params)
		if !hmac.Equal([]byte(want), []byte(env.HMAC)) {
			return nil, ErrTamperedClosure
		}
		mu.RLock()
		fn, ok := functions[env.Key]
		mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: closure %q", ErrUnknownCallable, env.Key)
		}
		return func() (any, error) { return fn(env.Params) }, nil

	case models.CallableClassMethod:
		var env staticMethodEnvelope
		if err := json.Unmarshal(job.Callable, &env); err != nil {
			return nil, fmt.Errorf("codec: malformed method envelope: %w", err)
		}
		key := methodKey(env.Namespace, env.Method)
		mu.RLock()
		fn, ok := methods[key]
		recvType := receiverTyp[key]
		mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: method %s#%s", ErrUnknownCallable, env.Namespace, env.Method)
		}
		var recv any
		if len(job.ObjectInstance) > 0 && recvType != nil {
			recvPtr := reflect.New(recvType).Interface()
			if err := json.Unmarshal(job.ObjectInstance, recvPtr); err != nil {
				return nil, fmt.Errorf("codec: decoding receiver: %w", err)
			}
			recv = reflect.ValueOf(recvPtr).Elem().Interface()
		}
		return func() (any, error) { return fn(recv, job.Params) }, nil

	default:
		return nil, fmt.Errorf("codec: unknown callable_type %q", job.CallableType)
	}
}

// Classify returns the CallableType that an encode call of this shape
// should be stored under, given which Encode* helper produced callable.
// name is not consulted; the result depends only on the two flags.
func Classify(name string, isClosure, isMethod bool) models.CallableType {
	switch {
	case isClosure:
		return models.CallableClosure
	case isMethod:
		return models.CallableClassMethod
	default:
		return models.CallableFunction
	}
}
