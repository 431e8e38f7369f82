package classconfig

import "errors"

var (
	ErrMissingConfig      = errors.New("required configuration key missing")
	ErrUnknownWorkClass   = errors.New("unknown work class")
	ErrUnknownNotifyClass = errors.New("unknown notify class")
	ErrNotExchangeClass   = errors.New("class is not an exchange class")
)
