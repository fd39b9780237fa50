package device

import (
	"context"
	"testing"

	"github.com/pilebones/go-udev/netlink"

	"vrdl/internal/config"
)

func monitorConfig(ids ...string) *config.Config {
	cfg := &config.Config{}
	cfg.Device.Monitor = true
	cfg.Device.VendorIDs = ids
	return cfg
}

func TestNew(t *testing.T) {
	if New(nil, nil, nil) != nil {
		t.Error("expected nil monitor for nil config")
	}
	disabled := monitorConfig("2833")
	disabled.Device.Monitor = false
	if New(disabled, nil, nil) != nil {
		t.Error("expected nil monitor when disabled")
	}
	if New(monitorConfig(" ", ""), nil, nil) != nil {
		t.Error("expected nil monitor without vendor ids")
	}
	m := New(monitorConfig("2833", "2D40"), nil, nil)
	if m == nil {
		t.Fatal("expected monitor")
	}
	if _, ok := m.vendors["2d40"]; !ok {
		t.Errorf("vendor ids should be lowercased: %v", m.vendors)
	}
}

func TestNilMonitorIsSafe(t *testing.T) {
	var m *Monitor
	if m.Running() {
		t.Error("nil monitor should not be running")
	}
	m.Stop()
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start on nil monitor: %v", err)
	}
}

func TestStopUnstartedIsSafe(t *testing.T) {
	m := New(monitorConfig("2833"), nil, nil)
	m.Stop()
	m.Stop()
	if m.Running() {
		t.Error("expected not running")
	}
}

func TestMatcher(t *testing.T) {
	matcher := Matcher()
	add := netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"SUBSYSTEM": "usb", "DEVTYPE": "usb_device"}}
	if !matcher.Evaluate(add) {
		t.Error("expected usb device add to match")
	}
	iface := netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"SUBSYSTEM": "usb", "DEVTYPE": "usb_interface"}}
	if matcher.Evaluate(iface) {
		t.Error("expected usb interface to be rejected")
	}
	remove := netlink.UEvent{Action: netlink.REMOVE, Env: map[string]string{"SUBSYSTEM": "usb", "DEVTYPE": "usb_device"}}
	if matcher.Evaluate(remove) {
		t.Error("expected remove to be rejected")
	}
}

func TestParse(t *testing.T) {
	dev, ok := Parse(netlink.UEvent{Env: map[string]string{
		"PRODUCT":         "2833/186/1",
		"ID_SERIAL_SHORT": "1WMHH000000000",
		"DEVPATH":         "/devices/pci0000:00/usb1/1-2",
	}})
	if !ok || dev.VendorID != "2833" || dev.Serial != "1WMHH000000000" {
		t.Fatalf("unexpected parse: %+v ok=%v", dev, ok)
	}
	dev, ok = Parse(netlink.UEvent{Env: map[string]string{"PRODUCT": "5ac/12a8/0"}})
	if !ok || dev.VendorID != "05ac" {
		t.Fatalf("expected padded vendor, got %+v", dev)
	}
	dev, _ = Parse(netlink.UEvent{Env: map[string]string{"ID_VENDOR_ID": "2D40", "PRODUCT": "1/2/3"}})
	if dev.VendorID != "2d40" {
		t.Fatalf("expected ID_VENDOR_ID to win, got %+v", dev)
	}
	if _, ok := Parse(netlink.UEvent{Env: map[string]string{}}); ok {
		t.Fatal("expected parse failure without vendor information")
	}
}

func TestHandleEventFiltersVendors(t *testing.T) {
	var got []Attached
	m := New(monitorConfig("2833"), nil, func(_ context.Context, dev Attached) {
		got = append(got, dev)
	})
	m.handleEvent(context.Background(), netlink.UEvent{Env: map[string]string{"PRODUCT": "18d1/4ee7/440"}})
	m.handleEvent(context.Background(), netlink.UEvent{Env: map[string]string{"PRODUCT": "2833/186/1", "ID_SERIAL_SHORT": "ABC"}})
	if len(got) != 1 || got[0].Serial != "ABC" {
		t.Fatalf("unexpected handler calls: %+v", got)
	}
}
