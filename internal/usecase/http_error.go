package usecase

import (
	"errors"
	"fmt"
)

// usecaseの失敗はすべてHTTPErrorに寄せる。
// 400=入力不正/不正な状態遷移, 404=対象なし, 500=それ以外。
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}
