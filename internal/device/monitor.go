package device

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"vrdl/internal/config"
	"vrdl/internal/logging"
)

// Attached describes a headset that appeared on the USB bus.
type Attached struct {
	Serial   string
	VendorID string
	Model    string
	DevPath  string
}

// Handler is invoked for each matching device addition.
type Handler func(ctx context.Context, dev Attached)

// Monitor listens for udev netlink events.
type Monitor struct {
	logger  *slog.Logger
	handler Handler
	vendors map[string]struct{}

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// New returns a monitor, or nil when monitoring is disabled or no vendor IDs
// are configured.
func New(cfg *config.Config, logger *slog.Logger, handler Handler) *Monitor {
	if cfg == nil || !cfg.Device.Monitor || len(cfg.Device.VendorIDs) == 0 {
		return nil
	}
	vendors := make(map[string]struct{}, len(cfg.Device.VendorIDs))
	for _, id := range cfg.Device.VendorIDs {
		if id = strings.ToLower(strings.TrimSpace(id)); id != "" {
			vendors[id] = struct{}{}
		}
	}
	if len(vendors) == 0 {
		return nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Monitor{
		logger:  logging.NewComponentLogger(logger, "device-monitor"),
		handler: handler,
		vendors: vendors,
	}
}

// Start begins listening. Failing to open the netlink socket is logged and
// otherwise ignored; installs still work with an explicit device serial.
func (m *Monitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(m.logger, "failed to connect to netlink socket; headset detection disabled", "netlink_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
			logging.String(logging.FieldImpact, "device-attached events unavailable"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true
	go m.loop(ctx, conn, m.quit)

	m.logger.Info("device monitor started",
		logging.Int("vendor_ids", len(m.vendors)),
		logging.String(logging.FieldEventType, "device_monitor_started"),
	)
	return nil
}

// Stop shuts the monitor down. It is safe to call more than once.
func (m *Monitor) Stop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	close(m.quit)
	m.quit = nil
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false
	m.logger.Info("device monitor stopped", logging.String(logging.FieldEventType, "device_monitor_stopped"))
}

// Running reports whether the monitor is active.
func (m *Monitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) loop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	events := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(events, errs, Matcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case evt := <-events:
			m.handleEvent(ctx, evt)
		case err := <-errs:
			logging.WarnWithContext(m.logger, "netlink monitor error", "netlink_monitor_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "headset detection may be affected"),
			)
		}
	}
}

// Matcher accepts USB device additions. Vendor filtering happens in Go so the
// configured list can be normalized.
func Matcher() netlink.Matcher {
	action := "^add$"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "^usb$",
			"DEVTYPE":   "^usb_device$",
		},
	})
	return rules
}

func (m *Monitor) handleEvent(ctx context.Context, evt netlink.UEvent) {
	dev, ok := Parse(evt)
	if !ok {
		return
	}
	if _, wanted := m.vendors[dev.VendorID]; !wanted {
		m.logger.Debug("ignoring usb device from other vendor",
			logging.String("vendor_id", dev.VendorID),
			logging.String("devpath", dev.DevPath),
		)
		return
	}
	m.logger.Info("headset attached",
		logging.String("serial", dev.Serial),
		logging.String("vendor_id", dev.VendorID),
		logging.String("model", dev.Model),
		logging.String(logging.FieldEventType, "device_attached"),
	)
	if m.handler != nil {
		m.handler(ctx, dev)
	}
}

// Parse extracts device identity from a uevent. Vendor comes from
// ID_VENDOR_ID when udev supplied it, otherwise from the kernel PRODUCT
// triple (vendor/product/bcdDevice, hex without padding).
func Parse(evt netlink.UEvent) (Attached, bool) {
	env := evt.Env
	vendor := strings.ToLower(strings.TrimSpace(env["ID_VENDOR_ID"]))
	if vendor == "" {
		product := strings.TrimSpace(env["PRODUCT"])
		if product == "" {
			return Attached{}, false
		}
		vendor = strings.ToLower(strings.SplitN(product, "/", 2)[0])
		vendor = strings.Repeat("0", max(0, 4-len(vendor))) + vendor
	}
	dev := Attached{
		Serial:   strings.TrimSpace(env["ID_SERIAL_SHORT"]),
		VendorID: vendor,
		Model:    strings.TrimSpace(env["ID_MODEL"]),
		DevPath:  strings.TrimSpace(env["DEVPATH"]),
	}
	if dev.DevPath == "" {
		dev.DevPath = evt.KObj
	}
	return dev, true
}
