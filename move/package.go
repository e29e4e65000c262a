package move

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"
)

// PackageVersion is the current package file format version
const PackageVersion = 1

// Package is a unit of compilation: the modules to compile plus the
// modules they depend on. Framework modules are supplied by the compiler
// when absent.
type Package struct {
	Name    string           `msgpack:"name"`
	Modules []CompiledModule `msgpack:"modules"`
	Deps    []CompiledModule `msgpack:"deps,omitempty"`
	Version int              `msgpack:"version"`
}

// Encode serializes the package with msgpack
func (p *Package) Encode(w io.Writer) error {
	enc := msgpack.NewEncoder(w)
	enc.UseCompactInts(true)
	if p.Version == 0 {
		p.Version = PackageVersion
	}
	return enc.Encode(p)
}

// Bytes serializes the package into a byte slice
func (p *Package) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := p.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodePackage reads a msgpack package
func DecodePackage(r io.Reader) (*Package, error) {
	var p Package
	if err := msgpack.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode package: %w", err)
	}
	if p.Version != PackageVersion {
		return nil, fmt.Errorf("unsupported package version %d", p.Version)
	}
	for i := range p.Modules {
		if err := p.Modules[i].Validate(); err != nil {
			return nil, fmt.Errorf("module %d: %w", i, err)
		}
	}
	for i := range p.Deps {
		if err := p.Deps[i].Validate(); err != nil {
			return nil, fmt.Errorf("dependency %d: %w", i, err)
		}
	}
	return &p, nil
}

// LoadPackage reads a package file from disk
func LoadPackage(path string) (*Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodePackage(f)
}

// WriteFile writes the package to path
func (p *Package) WriteFile(path string) error {
	data, err := p.Bytes()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
