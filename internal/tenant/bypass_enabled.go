//go:build authbypass

package tenant

// bypassCompiled is set in test binaries built with -tags authbypass.
const bypassCompiled = true
