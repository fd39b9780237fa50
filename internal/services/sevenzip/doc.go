// Package sevenzip drives the extraction stage: it decrypts and unpacks a
// release's downloaded 7-Zip volumes with the 7z CLI and reports file-count
// based progress.
//
// Progress is extracted/total rounded and capped at 99; only a clean exit
// reports 100. A wrong-password marker in the output takes precedence over
// the exit status so bad credentials are reported distinctly from corrupt
// archives or IO failures.
package sevenzip
