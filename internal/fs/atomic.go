package fs

import (
	"os"
)

// TempSuffix is appended to the target path while a write is in flight.
// Listings filter on the final extension, so a crashed write leaves only
// an ignored temp file behind.
const TempSuffix = ".tmp"

// WriteFileAtomic writes data to path via write-temp-then-rename so readers
// never observe a partially written file.
func WriteFileAtomic(fsys FileSystem, path string, data []byte, perm os.FileMode) error {
	tmp := path + TempSuffix

	f, err := fsys.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		fsys.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		fsys.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		fsys.Remove(tmp)
		return err
	}

	if err := fsys.Rename(tmp, path); err != nil {
		fsys.Remove(tmp)
		return err
	}
	return nil
}
