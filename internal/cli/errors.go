package cli

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind 错误分类
type Kind int

const (
	KindUsage Kind = iota + 1
	KindConfiguration
	KindBackend
	KindInput
	KindLookupNotFound
	KindExecution
)

var kindNames = map[Kind]string{
	KindUsage:          "UsageError",
	KindConfiguration:  "ConfigurationError",
	KindBackend:        "BackendError",
	KindInput:          "InputResolutionError",
	KindLookupNotFound: "LookupNotFoundError",
	KindExecution:      "ExecutionError",
}

func (k Kind) String() string {
	return kindNames[k]
}

// Error 各阶段返回的错误，最终只由一处格式化输出
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Cause() error {
	return e.cause
}

func (e *Error) Unwrap() error {
	return e.cause
}

func usageError(message string) error {
	return &Error{Kind: KindUsage, Message: message}
}

func configurationError(message string) error {
	return &Error{Kind: KindConfiguration, Message: message}
}

func backendError(err error) error {
	return &Error{Kind: KindBackend, Message: err.Error(), cause: err}
}

func inputError(message string) error {
	return &Error{Kind: KindInput, Message: message}
}

// lookupNotFound 只输出提示，不按错误处理
func lookupNotFound(err error) error {
	return &Error{Kind: KindLookupNotFound, Message: "Address not found.", cause: err}
}

// wrapInput 协作方返回的加载错误，沿用其描述
func wrapInput(err error) error {
	return &Error{Kind: KindInput, Message: err.Error(), cause: err}
}

func executionError(err error, format string, args ...interface{}) error {
	message := fmt.Sprintf(format, args...)
	if err != nil {
		message += err.Error()
	}
	return &Error{Kind: KindExecution, Message: message, cause: err}
}

// KindOf 未分类的错误返回0
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Envelope 交给Formatter的错误
// Trace 只有未预料的错误才有，包含调用栈
type Envelope struct {
	Message     string
	Trace       string
	Recoverable bool
}

func NewEnvelope(err error) Envelope {
	if KindOf(err) != 0 {
		return Envelope{Message: err.Error(), Recoverable: true}
	}
	return Envelope{Message: err.Error(), Trace: fmt.Sprintf("%+v", err)}
}
