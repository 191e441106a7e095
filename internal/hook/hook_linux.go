//go:build linux

package hook

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// evdev event types and codes we care about.
const (
	evKey = 0x01
	evRel = 0x02

	btnMouseFirst = 0x110 // BTN_LEFT
	btnMouseLast  = 0x117 // BTN_TASK
	relWheel      = 0x08
)

// inputEvent mirrors struct input_event from <linux/input.h> on 64-bit.
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// evdevHook reads raw events from /dev/input/event* devices. Injection
// tools like ydotool write through uinput which also surfaces here, but
// for a timelapse recorder observing the user's own machine that is an
// accepted limitation.
type evdevHook struct {
	running atomic.Bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	pointer struct{ x, y int32 }
}

func newPlatformHook() Hook {
	return &evdevHook{}
}

// findInputDevices returns readable event devices with key or relative
// capabilities, using the sysfs capability bitmaps to skip devices like
// power buttons and lid switches.
func findInputDevices() []string {
	var devices []string

	entries, _ := filepath.Glob("/sys/class/input/event*")
	for _, sysDev := range entries {
		name := filepath.Base(sysDev)
		devPath := "/dev/input/" + name

		keyCaps, err := os.ReadFile(filepath.Join(sysDev, "device/capabilities/key"))
		if err != nil {
			continue
		}
		relCaps, _ := os.ReadFile(filepath.Join(sysDev, "device/capabilities/rel"))

		// Keyboards have a wide key bitmap; mice have rel capabilities
		// plus button keys.
		isKeyboard := len(strings.TrimSpace(string(keyCaps))) > 20
		isPointer := strings.TrimSpace(string(relCaps)) != "" && strings.TrimSpace(string(relCaps)) != "0"
		if !isKeyboard && !isPointer {
			continue
		}

		f, err := os.OpenFile(devPath, os.O_RDONLY, 0)
		if err != nil {
			continue
		}
		f.Close()
		devices = append(devices, devPath)
	}

	return devices
}

func (h *evdevHook) Available() (bool, string) {
	devices := findInputDevices()
	if len(devices) == 0 {
		return false, "no readable /dev/input devices (needs input group or root)"
	}
	return true, "evdev"
}

func (h *evdevHook) Start(ctx context.Context, fn Handler) error {
	if h.running.Load() {
		return ErrAlreadyRunning
	}

	devices := findInputDevices()
	if len(devices) == 0 {
		return ErrNotAvailable
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx, h.cancel = context.WithCancel(ctx)
	h.running.Store(true)

	for _, dev := range devices {
		h.wg.Add(1)
		go h.readDevice(ctx, dev, fn)
	}

	return nil
}

func (h *evdevHook) Stop() error {
	if !h.running.Load() {
		return nil
	}

	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	h.wg.Wait()
	h.running.Store(false)
	return nil
}

// readDevice reads one event device until the context is canceled.
func (h *evdevHook) readDevice(ctx context.Context, path string, fn Handler) {
	defer h.wg.Done()

	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return
	}
	defer f.Close()

	// Close the file on cancellation to unblock the read.
	go func() {
		<-ctx.Done()
		f.Close()
	}()

	var ev inputEvent
	for {
		if err := binary.Read(f, binary.LittleEndian, &ev); err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		h.dispatch(ev, fn)
	}
}

func (h *evdevHook) dispatch(ev inputEvent, fn Handler) {
	when := time.Unix(ev.Sec, ev.Usec*1000)

	switch ev.Type {
	case evKey:
		if ev.Value != 1 { // key-down only, ignore repeats and releases
			return
		}
		if ev.Code >= btnMouseFirst && ev.Code <= btnMouseLast {
			h.mu.Lock()
			x, y := int(h.pointer.x), int(h.pointer.y)
			h.mu.Unlock()
			fn(Event{Kind: MouseDown, When: when, X: x, Y: y})
			return
		}
		fn(Event{Kind: KeyDown, When: when})

	case evRel:
		switch ev.Code {
		case 0x00: // REL_X
			h.mu.Lock()
			h.pointer.x += ev.Value
			h.mu.Unlock()
		case 0x01: // REL_Y
			h.mu.Lock()
			h.pointer.y += ev.Value
			h.mu.Unlock()
		case relWheel:
			fn(Event{Kind: Wheel, When: when})
		}
	}
}
