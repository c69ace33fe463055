// Package fmu loads Functional Mock-up Units: zip archives holding a model
// description, platform binaries and optional resources.
package fmu

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/san-kum/fmulab/internal/modeldesc"
)

const descriptorName = "modelDescription.xml"

var (
	// ErrNoDescriptor is returned when the archive holds no modelDescription.xml.
	ErrNoDescriptor = errors.New("fmu: archive has no modelDescription.xml")
	// ErrNoBinary is returned when the archive holds no shared library for the
	// current platform.
	ErrNoBinary = errors.New("fmu: no binary for this platform")
)

// FMU is an extracted model package. Close removes the extraction directory.
type FMU struct {
	Path        string
	Description *modeldesc.ModelDescription

	dir string
}

// Load extracts the archive at path into a private temp directory, parses and
// validates its descriptor, and returns a handle. The caller owns the handle
// and must Close it to release the extracted files.
func Load(path string) (*FMU, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("fmu: open %s: %w", path, err)
	}
	defer r.Close()

	dir, err := os.MkdirTemp("", "fmulab-*")
	if err != nil {
		return nil, fmt.Errorf("fmu: create extraction dir: %w", err)
	}

	f := &FMU{Path: path, dir: dir}
	if err := f.extract(&r.Reader); err != nil {
		f.Close()
		return nil, err
	}

	descPath := filepath.Join(dir, descriptorName)
	file, err := os.Open(descPath)
	if err != nil {
		f.Close()
		if os.IsNotExist(err) {
			return nil, ErrNoDescriptor
		}
		return nil, fmt.Errorf("fmu: open descriptor: %w", err)
	}
	defer file.Close()

	md, err := modeldesc.Parse(file)
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := md.Validate(); err != nil {
		f.Close()
		return nil, err
	}
	f.Description = md
	return f, nil
}

func (f *FMU) extract(r *zip.Reader) error {
	for _, entry := range r.File {
		target, err := sanitizePath(f.dir, entry.Name)
		if err != nil {
			return err
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("fmu: extract %s: %w", entry.Name, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("fmu: extract %s: %w", entry.Name, err)
		}
		if err := extractFile(entry, target); err != nil {
			return err
		}
	}
	return nil
}

// sanitizePath rejects entry names that would escape the extraction dir.
func sanitizePath(dir, name string) (string, error) {
	target := filepath.Join(dir, filepath.FromSlash(name))
	if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("fmu: illegal archive entry path %q", name)
	}
	return target, nil
}

func extractFile(entry *zip.File, target string) error {
	in, err := entry.Open()
	if err != nil {
		return fmt.Errorf("fmu: extract %s: %w", entry.Name, err)
	}
	defer in.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, entry.Mode()|0o200)
	if err != nil {
		return fmt.Errorf("fmu: extract %s: %w", entry.Name, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("fmu: extract %s: %w", entry.Name, err)
	}
	return nil
}

// Dir returns the extraction directory.
func (f *FMU) Dir() string { return f.dir }

// ResourcesURI returns the file URI of the resources directory, passed to the
// model on instantiation.
func (f *FMU) ResourcesURI() string {
	return "file://" + filepath.ToSlash(filepath.Join(f.dir, "resources"))
}

// BinaryPath locates the shared library for the given model identifier on the
// current platform.
func (f *FMU) BinaryPath(modelIdentifier string) (string, error) {
	platform, ext, err := platformDir()
	if err != nil {
		return "", err
	}
	p := filepath.Join(f.dir, "binaries", platform, modelIdentifier+ext)
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("%w: %s", ErrNoBinary, p)
	}
	return p, nil
}

func platformDir() (dir, ext string, err error) {
	suffix := "64"
	if strings.HasSuffix(runtime.GOARCH, "386") || runtime.GOARCH == "arm" {
		suffix = "32"
	}
	switch runtime.GOOS {
	case "linux":
		return "linux" + suffix, ".so", nil
	case "darwin":
		return "darwin" + suffix, ".dylib", nil
	case "windows":
		return "win" + suffix, ".dll", nil
	}
	return "", "", fmt.Errorf("fmu: unsupported platform %s/%s", runtime.GOOS, runtime.GOARCH)
}

// Close removes the extraction directory. Safe to call more than once.
func (f *FMU) Close() error {
	if f.dir == "" {
		return nil
	}
	err := os.RemoveAll(f.dir)
	f.dir = ""
	return err
}
