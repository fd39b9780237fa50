// Package procexec launches and supervises the external tools that drive the
// transfer and extraction stages.
//
// A Launcher starts one process with stdout and stderr merged onto a single
// pipe, splits the stream into lines on both newline and carriage return (the
// tools redraw progress with '\r'), strips terminal escape sequences, and
// forwards each complete line to a callback. A trailing partial line is held
// until more output or EOF arrives, so callers never parse a truncated token.
//
// Handles expose cooperative cancellation. Cancel marks the handle as
// cancelled before signalling the process group, so exit handling can tell a
// requested stop from a crash without inspecting signal exit codes. Detach
// stops line delivery so trailing output after a state change is dropped.
package procexec
