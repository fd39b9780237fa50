// Package device watches udev for headsets being plugged in.
//
// The monitor listens on the kernel netlink socket (no udev rules required),
// filters USB device additions by the configured vendor IDs, and hands each
// attached headset to a callback. The daemon uses that callback to publish a
// device-attached event so clients can refresh installed-package state.
package device
