// Package gitctx collects the unified diff under review from the local git
// repository when no diff file is supplied.
package gitctx
