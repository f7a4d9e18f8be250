package main

import (
	"fmt"
	"io"
)

// writeArrowFile creates path and fills it with write.
func writeArrowFile(path string, write func(io.WriteSeeker) error) error {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}
