// Package textutil provides small text helpers shared by the drivers, the CLI,
// and the API.
//
// The primary use cases are:
//   - Turning release names into safe directory names
//   - Redacting secrets from command lines and diagnostic output
//   - Bounding diagnostic text before it is stored on a queue item
package textutil
