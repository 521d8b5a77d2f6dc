package gdbstub

import (
	"bytes"
	"strings"
)

// featureSet is the negotiated capability bitset. Today it has a single
// bit, but it is kept as a struct so future qSupported tokens have
// somewhere to land without reshaping call sites.
type featureSet struct {
	targetDescriptionSupported bool
}

// parseQSupported parses the payload of a qSupported:<feat1>;<feat2>…
// packet and derives the feature set. The only token inspected is
// xmlRegisters=<arch>,<arch>…; everything else (bare name+/name-
// boolean declarations) is accepted and ignored.
func parseQSupported(payload []byte, arch Architecture) featureSet {
	var fs featureSet
	rest := payload
	if idx := bytes.IndexByte(rest, ':'); idx >= 0 {
		rest = rest[idx+1:]
	} else {
		rest = nil
	}
	for _, tok := range strings.Split(string(rest), ";") {
		if tok == "" {
			continue
		}
		eq := strings.IndexByte(tok, '=')
		if eq < 0 {
			continue
		}
		name, value := tok[:eq], tok[eq+1:]
		if name != "xmlRegisters" {
			continue
		}
		for _, a := range strings.Split(value, ",") {
			if a == arch.String() {
				fs.targetDescriptionSupported = true
			}
		}
	}
	return fs
}

// reply renders the stub's offered-features list. Only
// qXfer:features:read is ever offered, and only once target
// descriptions are supported.
func (fs featureSet) reply() []byte {
	if fs.targetDescriptionSupported {
		return []byte("qXfer:features:read+")
	}
	return nil
}
