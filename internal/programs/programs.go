// Package programs maps academic program names to record-number prefixes.
package programs

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// FallbackPrefix is used for programs missing from the catalog.
const FallbackPrefix = "XXX"

// Program is one catalog entry.
type Program struct {
	Name   string `mapstructure:"name" json:"name"`
	Prefix string `mapstructure:"prefix" json:"prefix"`
}

// Default lists the programs offered by the school.
var Default = []Program{
	{Name: "Ingeniería en Animación Digital y Efectos Visuales", Prefix: "IADYEV"},
	{Name: "Ingeniería en Sistemas Computacionales", Prefix: "ISC"},
	{Name: "Ingeniería Industrial", Prefix: "II"},
	{Name: "Ingeniería en Mecatrónica", Prefix: "IM"},
	{Name: "Ingeniería Química", Prefix: "IQ"},
	{Name: "Licenciatura en Gastronomía", Prefix: "LG"},
	{Name: "Licenciatura en Administración", Prefix: "LA"},
}

// Catalog is an immutable program → prefix table. The zero value is empty and
// maps everything to FallbackPrefix.
type Catalog struct {
	programs []Program
	byName   map[string]string
}

// NewCatalog validates entries and builds a catalog. Prefixes must be
// uppercase ASCII letters so that the numeric suffix is unambiguous.
func NewCatalog(entries []Program) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]string, len(entries))}
	for _, p := range entries {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, fmt.Errorf("program with prefix %q has no name", p.Prefix)
		}
		if !validPrefix(p.Prefix) {
			return nil, fmt.Errorf("program %q: invalid prefix %q", name, p.Prefix)
		}
		if _, dup := c.byName[name]; dup {
			return nil, fmt.Errorf("program %q listed twice", name)
		}
		c.byName[name] = p.Prefix
		c.programs = append(c.programs, Program{Name: name, Prefix: p.Prefix})
	}
	return c, nil
}

// MustDefault returns the built-in catalog.
func MustDefault() *Catalog {
	c, err := NewCatalog(Default)
	if err != nil {
		panic(err)
	}
	return c
}

// Prefix returns the prefix of program, or FallbackPrefix when unknown.
func (c *Catalog) Prefix(program string) string {
	if c == nil {
		return FallbackPrefix
	}
	if p, ok := c.byName[strings.TrimSpace(program)]; ok {
		return p
	}
	return FallbackPrefix
}

// Known reports whether program is listed.
func (c *Catalog) Known(program string) bool {
	if c == nil {
		return false
	}
	_, ok := c.byName[strings.TrimSpace(program)]
	return ok
}

// Programs returns the entries in catalog order.
func (c *Catalog) Programs() []Program {
	if c == nil {
		return nil
	}
	out := make([]Program, len(c.programs))
	copy(out, c.programs)
	return out
}

// Names returns the program names sorted alphabetically.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.programs))
	for _, p := range c.Programs() {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

func validPrefix(p string) bool {
	if p == "" {
		return false
	}
	for _, r := range p {
		if r > unicode.MaxASCII || !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}
