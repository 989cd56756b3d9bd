package image

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Gather copies every file below src whose extension matches ext (case
// insensitive) into the flat folder dst, keeping modification times. Two
// files with the same name in different subfolders are refused before
// anything is copied. dst may lie inside src; it is not walked.
func Gather(src, dst, ext string) ([]string, error) {
	ext = strings.ToLower(ext)
	absDst, err := filepath.Abs(dst)
	if err != nil {
		return nil, err
	}

	byName := map[string]string{}
	var clashes []string
	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if abs, err := filepath.Abs(path); err == nil && abs == absDst {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.ToLower(filepath.Ext(d.Name())) != ext {
			return nil
		}
		if prev, ok := byName[d.Name()]; ok {
			clashes = append(clashes, fmt.Sprintf("%s and %s", prev, path))
			return nil
		}
		byName[d.Name()] = path
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", src, err)
	}
	if len(clashes) > 0 {
		return nil, fmt.Errorf("duplicate file names: %s", strings.Join(clashes, "; "))
	}

	if err := os.MkdirAll(dst, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dst, err)
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	copied := make([]string, 0, len(names))
	for _, name := range names {
		out := filepath.Join(dst, name)
		if err := copyFile(byName[name], out); err != nil {
			return copied, err
		}
		copied = append(copied, out)
	}
	return copied, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
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
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
