package fmu

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

const minimalXML = `<?xml version="1.0" encoding="UTF-8"?>
<fmiModelDescription fmiVersion="2.0" modelName="Spring" guid="{spring-1}">
  <CoSimulation modelIdentifier="Spring"/>
  <ModelVariables>
    <ScalarVariable name="x" valueReference="0" causality="output" variability="continuous" initial="exact">
      <Real start="1.0"/>
    </ScalarVariable>
  </ModelVariables>
  <ModelStructure>
    <Outputs><Unknown index="1"/></Outputs>
  </ModelStructure>
</fmiModelDescription>`

func writeArchive(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.fmu")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	w := zip.NewWriter(file)
	for name, content := range entries {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("create entry %s: %v", name, err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("write entry %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeArchive(t, map[string]string{
		"modelDescription.xml": minimalXML,
		"resources/data.txt":   "payload",
	})

	f, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	defer f.Close()

	if f.Description.ModelName != "Spring" {
		t.Errorf("expected model name Spring, got %s", f.Description.ModelName)
	}
	data, err := os.ReadFile(filepath.Join(f.Dir(), "resources", "data.txt"))
	if err != nil {
		t.Fatalf("resource not extracted: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("expected resource payload, got %q", data)
	}
}

func TestLoadMissingDescriptor(t *testing.T) {
	path := writeArchive(t, map[string]string{
		"readme.txt": "no descriptor here",
	})

	if _, err := Load(path); !errors.Is(err, ErrNoDescriptor) {
		t.Errorf("expected ErrNoDescriptor, got %v", err)
	}
}

func TestLoadRejectsZipSlip(t *testing.T) {
	path := writeArchive(t, map[string]string{
		"modelDescription.xml": minimalXML,
		"../escape.txt":        "outside",
	})

	if _, err := Load(path); err == nil {
		t.Error("expected error for path traversal entry")
	}
}

func TestLoadRejectsBadVersion(t *testing.T) {
	bad := `<?xml version="1.0"?>
<fmiModelDescription fmiVersion="1.0" modelName="Old" guid="{old}">
  <CoSimulation modelIdentifier="Old"/>
</fmiModelDescription>`
	path := writeArchive(t, map[string]string{"modelDescription.xml": bad})

	if _, err := Load(path); err == nil {
		t.Error("expected error for fmiVersion 1.0")
	}
}

func TestBinaryPath(t *testing.T) {
	platform, ext, err := platformDir()
	if err != nil {
		t.Skipf("unsupported platform: %v", err)
	}

	path := writeArchive(t, map[string]string{
		"modelDescription.xml":                     minimalXML,
		"binaries/" + platform + "/Spring" + ext:   "binary",
		"binaries/" + platform + "/Other" + ".bin": "junk",
	})

	f, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	defer f.Close()

	p, err := f.BinaryPath("Spring")
	if err != nil {
		t.Fatalf("binary path: %v", err)
	}
	if filepath.Base(p) != "Spring"+ext {
		t.Errorf("unexpected binary path %s", p)
	}

	if _, err := f.BinaryPath("Nope"); !errors.Is(err, ErrNoBinary) {
		t.Errorf("expected ErrNoBinary, got %v", err)
	}
}

func TestCloseRemovesDir(t *testing.T) {
	path := writeArchive(t, map[string]string{"modelDescription.xml": minimalXML})

	f, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	dir := f.Dir()

	if err := f.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("extraction dir should be removed after Close")
	}
	// Second close is a no-op.
	if err := f.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}
}

func TestPlatformDir(t *testing.T) {
	dir, _, err := platformDir()
	if runtime.GOOS == "linux" || runtime.GOOS == "darwin" || runtime.GOOS == "windows" {
		if err != nil {
			t.Fatalf("platformDir failed: %v", err)
		}
		if dir == "" {
			t.Error("empty platform dir")
		}
	}
}
