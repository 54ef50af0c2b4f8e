package kerror

import (
	"encoding/hex"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

type Keypair struct {
	K string
	V interface{}
}

// Kerror is the error type shared by every layer of this repo.
// Type is a stable CamelCase identifier (e.g. "NodeNotFound"), Msg is for humans.
type Kerror struct {
	Type      string
	Msg       string
	Details   []Keypair // using array: map don't keep ordering
	Stack     string    // optional, normally only inner most kerror need full stack dump
	CausedBy  error     // optional, maybe a *Kerror, or also possible just an error
	ErrorCode ErrorCode // optional, default=UNKNOWN
}

func Create(errType string, msg string) *Kerror {
	return &Kerror{
		Stack:     GetCallStack(1),
		Type:      errType,
		Msg:       msg,
		ErrorCode: EC_UNKNOWN,
	}
}

func (ke *Kerror) Error() string {
	return ke.ShortString()
}

func (ke *Kerror) String() string {
	return ke.FullString()
}

func (ke *Kerror) With(key string, val interface{}) *Kerror {
	ke.Details = append(ke.Details, Keypair{K: key, V: val})
	return ke
}

func (ke *Kerror) WithErrorCode(code ErrorCode) *Kerror {
	ke.ErrorCode = code
	return ke
}

// Unwrap makes Kerror work with errors.Is() / errors.As()
func (ke *Kerror) Unwrap() error {
	return ke.CausedBy
}

func (ke *Kerror) WithoutStack() *Kerror {
	ke.Stack = ""
	return ke
}

func (ke *Kerror) GetType() string {
	return ke.Type
}

// GetDetail returns the first detail value recorded under key, nil if absent.
func (ke *Kerror) GetDetail(key string) interface{} {
	for _, item := range ke.Details {
		if item.K == key {
			return item.V
		}
	}
	return nil
}

func (ke *Kerror) ShortString() string {
	var b strings.Builder
	b.Grow(256)
	ke.ToFullString(&b, false /*withStack*/, false /*withCause*/)
	return b.String()
}

func (ke *Kerror) FullString() string {
	var b strings.Builder
	b.Grow(1000)
	ke.ToFullString(&b, true /*withStack*/, true /*withCause*/)
	return b.String()
}

func (ke *Kerror) CausedByString() string {
	var b strings.Builder
	b.Grow(256)
	ke.buildCausedByString(&b, false /*withStack*/, true /*withCause*/)
	return b.String()
}

func (ke *Kerror) ToFullString(b *strings.Builder, withStack, withCause bool) {
	fmt.Fprintf(b, "%s: %s", ke.Type, ke.Msg)
	for _, item := range ke.Details {
		fmt.Fprintf(b, ", %s=%v", item.K, formatVal(item.V))
	}
	if withStack && ke.Stack != "" {
		fmt.Fprintf(b, ", stack=%s", ke.Stack)
	}
	if withCause && ke.CausedBy != nil {
		fmt.Fprintf(b, ";\n Caused by: ")
		ke.buildCausedByString(b, withStack, withCause)
		fmt.Fprintf(b, "\n")
	}
}

func (ke *Kerror) buildCausedByString(b *strings.Builder, withStack, withCause bool) {
	if ke.CausedBy == nil {
		return
	}
	if cause, ok := ke.CausedBy.(*Kerror); ok {
		cause.ToFullString(b, withStack, withCause)
	} else {
		fmt.Fprintf(b, "%s", ke.CausedBy.Error())
	}
}

func (ke *Kerror) GetHttpErrorCode() int {
	return ke.ErrorCode.ToHttpErrorCode()
}

func formatVal(val interface{}) interface{} {
	if val == nil {
		return nil
	} else if bytes, ok := val.([]byte); ok {
		return hex.EncodeToString(bytes)
	}
	return val
}

func GetCallStack(removeTop int) string {
	stack := string(debug.Stack())
	// skip first few lines, last element is everything else
	split := strings.SplitAfterN(stack, "\n", 6+2*removeTop)
	return split[len(split)-1]
}

// Note: stackTrace is expensive. So you should only attach stack when really needed.
func Wrap(err error, errType, msg string, needStack bool) *Kerror {
	ke := &Kerror{
		Type:      errType,
		Msg:       msg,
		CausedBy:  err,
		ErrorCode: EC_UNKNOWN,
	}
	if inner, ok := err.(*Kerror); ok {
		// keep the inner code so callers can still map it (e.g. to http status)
		ke.ErrorCode = inner.ErrorCode
	}
	if needStack {
		if _, ok := err.(*Kerror); !ok {
			ke.Stack = GetCallStack(1)
		}
	}
	return ke
}

// As returns the outer-most *Kerror in err's chain, nil if there is none.
func As(err error) *Kerror {
	var ke *Kerror
	if errors.As(err, &ke) {
		return ke
	}
	return nil
}

// IsType reports whether any Kerror in err's chain has the given Type.
func IsType(err error, errType string) bool {
	for err != nil {
		if ke, ok := err.(*Kerror); ok && ke.Type == errType {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// ******************** Retryable ********************
type retryable interface {
	Retryable() bool
}

func (ke *Kerror) Retryable() bool {
	return ke.ErrorCode == EC_RETRYABLE || ke.ErrorCode == EC_TIMEOUT || ke.ErrorCode == EC_UNAVAILABLE
}

// Retryable: use this to verify a given error (not necessarily a Kerror) is retryable or not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	retry, ok := err.(retryable)
	if !ok {
		return false
	}
	return retry.Retryable()
}
