package device

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"storypack/internal/devicemeta"
	"storypack/internal/faults"
	"storypack/internal/logging"
)

// Event is a storyteller appearing or disappearing.
type Event struct {
	Action string
	Node   string
	USB    devicemeta.USBID
	// Root is the mount root when the node was already mounted.
	Root string
}

// Watcher listens for udev netlink block events of known storytellers.
type Watcher struct {
	logger    *slog.Logger
	handler   func(ctx context.Context, ev Event)
	known     []devicemeta.USBID
	mountRoot func(node string) (string, error)

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewWatcher returns a watcher calling handler for every matching event.
func NewWatcher(logger *slog.Logger, handler func(ctx context.Context, ev Event)) *Watcher {
	return &Watcher{
		logger:    logging.NewComponentLogger(logger, "watcher"),
		handler:   handler,
		known:     devicemeta.KnownUSBIDs(),
		mountRoot: MountRoot,
	}
}

// Start connects to the udev netlink socket and begins dispatching events.
func (w *Watcher) Start(ctx context.Context) error {
	if w == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return faults.Wrap(faults.ErrIOFailure, "watch", "connect", "udev netlink socket unavailable", err)
	}

	w.conn = conn
	w.quit = make(chan struct{})
	w.running = true

	quit := w.quit
	go w.monitorLoop(ctx, quit)

	w.logger.Info("device watcher started",
		logging.String(logging.FieldEventType, "watcher_started"),
		logging.Int("known_models", len(w.known)),
	)
	return nil
}

// Stop shuts down the watcher.
func (w *Watcher) Stop() {
	if w == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	if w.quit != nil {
		close(w.quit)
		w.quit = nil
	}
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	w.running = false

	w.logger.Info("device watcher stopped",
		logging.String(logging.FieldEventType, "watcher_stopped"),
	)
}

// Running reports whether the watcher is active.
func (w *Watcher) Running() bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) monitorLoop(ctx context.Context, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(queue, errs, w.buildMatcher())
	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			w.handleEvent(ctx, uevent)
		case err := <-errs:
			logging.WarnWithContext(w.logger, "device watcher error", "watcher_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "plug events may be missed"),
			)
		}
	}
}

// buildMatcher matches block add/remove events of every known vendor and
// model pair.
func (w *Watcher) buildMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	for _, id := range w.known {
		rules.AddRule(netlink.RuleDefinition{
			Action: &action,
			Env: map[string]string{
				"SUBSYSTEM":    "block",
				"ID_VENDOR_ID": fmt.Sprintf("^%04x$", id.Vendor),
				"ID_MODEL_ID":  fmt.Sprintf("^%04x$", id.Product),
			},
		})
	}
	return rules
}

func (w *Watcher) handleEvent(ctx context.Context, uevent netlink.UEvent) {
	node := extractDeviceName(uevent)
	if node == "" {
		w.logger.Debug("ignoring event without device name",
			logging.String("action", string(uevent.Action)),
			logging.String("kobj", uevent.KObj),
		)
		return
	}
	usb, ok := parseUSBID(uevent.Env["ID_VENDOR_ID"], uevent.Env["ID_MODEL_ID"])
	if !ok || !w.isKnown(usb) {
		w.logger.Debug("ignoring event for unknown model",
			logging.String("node", node),
			logging.String("usb", usb.String()),
		)
		return
	}

	ev := Event{Action: string(uevent.Action), Node: node, USB: usb}
	if uevent.Action != netlink.REMOVE && w.mountRoot != nil {
		if root, err := w.mountRoot(node); err == nil {
			ev.Root = root
		}
	}
	w.logger.Info("storyteller event",
		logging.String(logging.FieldEventType, "watcher_device_"+ev.Action),
		logging.String("node", node),
		logging.String("usb", usb.String()),
		logging.String("root", ev.Root),
	)
	if w.handler != nil {
		w.handler(ctx, ev)
	}
}

func (w *Watcher) isKnown(id devicemeta.USBID) bool {
	for _, k := range w.known {
		if k == id {
			return true
		}
	}
	return false
}

func parseUSBID(vendor, product string) (devicemeta.USBID, bool) {
	v, err := strconv.ParseUint(strings.TrimSpace(vendor), 16, 16)
	if err != nil {
		return devicemeta.USBID{}, false
	}
	p, err := strconv.ParseUint(strings.TrimSpace(product), 16, 16)
	if err != nil {
		return devicemeta.USBID{}, false
	}
	return devicemeta.USBID{Vendor: uint16(v), Product: uint16(p)}, true
}

// extractDeviceName gets the device node from a uevent, falling back to the
// last DEVPATH element.
func extractDeviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		if !strings.HasPrefix(devname, "/") {
			devname = "/dev/" + devname
		}
		return devname
	}
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	return "/dev/" + parts[len(parts)-1]
}
