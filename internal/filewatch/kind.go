package filewatch

import "strings"

// Kind is a bitmask of the discrete changes reported for a watched file.
type Kind uint16

const (
	Delete Kind = 1 << iota
	Write
	Extend
	Attrib
	Link
	Rename
	Revoke
)

// replaced is the set of kinds after which the registration no longer refers
// to the file currently at the watched path.
const replaced = Delete | Rename | Revoke

var kindNames = []struct {
	kind Kind
	name string
}{
	{Delete, "delete"},
	{Write, "write"},
	{Extend, "extend"},
	{Attrib, "attrib"},
	{Link, "link"},
	{Rename, "rename"},
	{Revoke, "revoke"},
}

// Has reports whether k contains any of the kinds in other.
func (k Kind) Has(other Kind) bool {
	return k&other != 0
}

func (k Kind) String() string {
	var names []string
	for _, kn := range kindNames {
		if k.Has(kn.kind) {
			names = append(names, kn.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}
