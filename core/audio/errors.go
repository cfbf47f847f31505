package audio

import (
	"errors"
	"fmt"
)

// 错误类型，使用 errors.Is 匹配
var (
	ErrLoad     = errors.New("load failure")
	ErrContext  = errors.New("context failure")
	ErrGraph    = errors.New("graph failure")
	ErrPlayback = errors.New("playback failure")
	ErrState    = errors.New("state failure")
)

// Error 携带错误类型、失败的操作以及可以直接展示给听众的提示
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

// NewError 创建指定类型的错误
func NewError(kind error, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Message 提取面向用户的错误提示
func Message(err error) string {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) && ae.Msg != "" {
		return ae.Msg
	}
	return err.Error()
}
