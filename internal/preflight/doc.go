// Package preflight provides readiness checks for the tools, directories,
// and content endpoint that vrdl depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and logs every failed check so a
//     misconfigured host is visible before the first transfer fails.
//   - The CLI "vrdl status" command runs the same checks when the daemon is
//     offline.
//
// Tool resolution (ToolPath) hands the transfer and archive drivers an
// absolute executable path.
package preflight
