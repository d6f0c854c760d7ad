package util

import "github.com/spf13/afero"

// ReadFile reads the full contents of path from afs (real disk in
// production, in-memory in tests), returning afero's error unwrapped.
func ReadFile(afs afero.Fs, path string) ([]byte, error) {
	return afero.ReadFile(afs, path)
}
