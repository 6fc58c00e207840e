package engine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// copyFile copies src over target, creating parent directories as needed.
func copyFile(src, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create parent of %s: %w", target, err)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	// A symlink left by an earlier Link rule must not be written through.
	if fi, err := os.Lstat(target); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		if err := os.Remove(target); err != nil {
			return err
		}
	}

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return err
	}

	log.Infof("Copied %s -> %s", filepath.ToSlash(src), filepath.ToSlash(target))
	return nil
}

// linkFile makes target a symlink to src, replacing a stale link or a plain
// file. A link that already points at src is left alone.
func linkFile(src, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create parent of %s: %w", target, err)
	}

	if fi, err := os.Lstat(target); err == nil {
		switch {
		case fi.Mode()&os.ModeSymlink != 0:
			if dest, err := os.Readlink(target); err == nil && dest == src {
				log.Debugf("Link %s already points at %s", target, src)
				return nil
			}
			if err := os.Remove(target); err != nil {
				return err
			}
			log.Infof("Removed stale link %s", target)
		case fi.Mode().IsRegular():
			if err := os.Remove(target); err != nil {
				return err
			}
			log.Infof("Removed file %s", target)
		default:
			return fmt.Errorf("cannot replace %s: not a file or link", target)
		}
	}

	if err := os.Symlink(src, target); err != nil {
		return err
	}
	log.Infof("Linked %s -> %s", filepath.ToSlash(target), filepath.ToSlash(src))
	return nil
}

// deletePath removes a file, symlink or directory tree at target.
func deletePath(target string) error {
	fi, err := os.Lstat(target)
	if os.IsNotExist(err) {
		log.Debugf("Nothing to delete at %s", target)
		return nil
	}
	if err != nil {
		return err
	}

	switch {
	case fi.Mode()&os.ModeSymlink != 0, fi.Mode().IsRegular():
		err = os.Remove(target)
	case fi.IsDir():
		err = os.RemoveAll(target)
	default:
		return fmt.Errorf("cannot delete %s: not a file, directory or link", target)
	}
	if err != nil {
		return err
	}
	log.Infof("Deleted %s", filepath.ToSlash(target))
	return nil
}
