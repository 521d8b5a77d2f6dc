package gdbstub

import (
	"strconv"
	"strings"
)

// buildTargetXML composes the target.xml document streamed back to GDB
// by qXfer:features:read. GDB parses this with a real XML parser but is
// intolerant of reordering, so the element order below is load-bearing.
func buildTargetXML(arch Architecture, regs []RegisterDescriptor) []byte {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\"?>\n")
	b.WriteString("<!DOCTYPE target SYSTEM \"gdb-target.dtd\">\n")
	b.WriteString("<target version=\"1.0\">\n")
	b.WriteString("<architecture>")
	b.WriteString(arch.String())
	b.WriteString("</architecture>\n")
	b.WriteString("<feature name=\"")
	b.WriteString(arch.featureNamespace())
	b.WriteString("\">\n")
	for _, r := range regs {
		b.WriteString("<reg name=\"")
		b.WriteString(r.Name)
		b.WriteString("\" bitsize=\"")
		b.WriteString(strconv.Itoa(r.BitSize))
		b.WriteString("\"")
		if typeAttr, ok := r.xmlTypeAttr(); ok {
			b.WriteString(" type=\"")
			b.WriteString(typeAttr)
			b.WriteString("\"")
		}
		b.WriteString("/>\n")
	}
	b.WriteString("</feature>\n")
	b.WriteString("</target>\n")
	return []byte(b.String())
}
