// Package adb installs extracted releases onto a headset through the adb CLI
// and queries installed package versions.
package adb
