//go:build linux

package clipboard

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

// klipperAccessor reads the clipboard through the Klipper D-Bus
// interface exposed by KDE. On desktops without Klipper the accessor
// reports an error on every call and the monitor degrades silently.
type klipperAccessor struct {
	mu   sync.Mutex
	conn *dbus.Conn
}

func newPlatformAccessor() Accessor {
	return &klipperAccessor{}
}

func (k *klipperAccessor) connect() (*dbus.Conn, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.conn != nil {
		return k.conn, nil
	}
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	k.conn = conn
	return conn, nil
}

func (k *klipperAccessor) GetText() (string, error) {
	conn, err := k.connect()
	if err != nil {
		return "", err
	}

	obj := conn.Object("org.kde.klipper", "/klipper")
	var text string
	if err := obj.Call("org.kde.klipper.klipper.getClipboardContents", 0).Store(&text); err != nil {
		return "", fmt.Errorf("klipper getClipboardContents: %w", err)
	}
	return text, nil
}
