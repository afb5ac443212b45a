//go:build !authbypass

package tenant

const bypassCompiled = false
