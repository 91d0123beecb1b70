package device

import "strings"

// Capability is one operation an adapter may support.
type Capability uint8

const (
	CapList Capability = 1 << iota
	CapImport
	CapImportDirectory
	CapExport
	CapExportAll
	CapRemove
	CapCleanup
	CapRecover
)

var capabilityNames = []struct {
	c    Capability
	name string
}{
	{CapList, "list"},
	{CapImport, "import"},
	{CapImportDirectory, "import-directory"},
	{CapExport, "export"},
	{CapExportAll, "export-all"},
	{CapRemove, "remove"},
	{CapCleanup, "cleanup"},
	{CapRecover, "recover"},
}

func (c Capability) String() string {
	for _, n := range capabilityNames {
		if n.c == c {
			return n.name
		}
	}
	return "unknown"
}

// Capabilities is a set of Capability values.
type Capabilities Capability

const allCapabilities = Capabilities(CapList | CapImport | CapImportDirectory | CapExport | CapExportAll | CapRemove | CapCleanup | CapRecover)

// Has reports whether c is in the set.
func (cs Capabilities) Has(c Capability) bool {
	return Capability(cs)&c == c
}

// Without returns the set minus the given capabilities.
func (cs Capabilities) Without(caps ...Capability) Capabilities {
	for _, c := range caps {
		cs &^= Capabilities(c)
	}
	return cs
}

// Names lists the capabilities in the set in declaration order.
func (cs Capabilities) Names() []string {
	var out []string
	for _, n := range capabilityNames {
		if cs.Has(n.c) {
			out = append(out, n.name)
		}
	}
	return out
}

func (cs Capabilities) String() string {
	return strings.Join(cs.Names(), ",")
}
