//go:build !linux

package clipboard

import "errors"

var errNoAccessor = errors.New("clipboard access not implemented on this platform")

type nullAccessor struct{}

func newPlatformAccessor() Accessor {
	return &nullAccessor{}
}

func (nullAccessor) GetText() (string, error) {
	return "", errNoAccessor
}
