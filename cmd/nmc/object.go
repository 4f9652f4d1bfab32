package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/chazu/nmacro/compiler"
	"github.com/chazu/nmacro/pkg/bytecode"
	"github.com/chazu/nmacro/pkg/symtab"
)

// objectExt marks a compiled macro file.
const objectExt = ".nmo"

// object is the on-disk form of a compiled macro file.
type object struct {
	Version uint16       `cbor:"1,keyasint"`
	Units   []objectUnit `cbor:"2,keyasint"`
}

type objectUnit struct {
	Name    string `cbor:"1,keyasint,omitempty"`
	Offset  int    `cbor:"2,keyasint"`
	Program []byte `cbor:"3,keyasint"`
}

func isObject(path string) bool {
	return filepath.Ext(path) == objectExt
}

func writeObject(path string, units []compiler.Unit) error {
	obj := object{Version: bytecode.WireVersion}
	for i, u := range units {
		data, err := bytecode.MarshalProgram(u.Program)
		if err != nil {
			return fmt.Errorf("unit %d: %w", i, err)
		}
		obj.Units = append(obj.Units, objectUnit{Name: u.Name, Offset: u.Offset, Program: data})
	}
	data, err := bytecode.Marshal(obj)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	log.Infof("wrote %s (%d units, %d bytes)", path, len(units), len(data))
	return nil
}

// readObject loads a compiled file, declaring its routines in globals.
func readObject(path string, globals *symtab.Table) ([]compiler.Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var obj object
	if err := bytecode.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if obj.Version != bytecode.WireVersion {
		return nil, fmt.Errorf("%s: unsupported version %d", path, obj.Version)
	}
	units := make([]compiler.Unit, len(obj.Units))
	for i, ou := range obj.Units {
		p, err := bytecode.UnmarshalProgram(ou.Program, globals)
		if err != nil {
			return nil, fmt.Errorf("%s: unit %d: %w", path, i, err)
		}
		units[i] = compiler.Unit{Name: ou.Name, Offset: ou.Offset, Program: p}
		if ou.Name != "" {
			globals.Declare(ou.Name)
		}
	}
	return units, nil
}
