//go:build !linux

package hook

import "context"

// unavailableHook is used on platforms without an input hook
// implementation. Sessions still record; they just carry no keyboard
// statistics.
type unavailableHook struct{}

func newPlatformHook() Hook {
	return &unavailableHook{}
}

func (u *unavailableHook) Start(ctx context.Context, fn Handler) error {
	return ErrNotAvailable
}

func (u *unavailableHook) Stop() error {
	return nil
}

func (u *unavailableHook) Available() (bool, string) {
	return false, "input hooking not implemented on this platform"
}
