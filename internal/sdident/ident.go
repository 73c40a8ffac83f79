// Package sdident implements canonical identifier folding for variable,
// dimension, element, and model names.
//
// Two source names refer to the same entity iff their canonical forms are
// byte-equal. Canonicalization never fails; the compiler rejects empty
// identifiers earlier in the pipeline.
package sdident

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ModuleSep is the module-path separator. It is reserved and is never
// folded away by Canonicalize.
const ModuleSep = '·' // MIDDLE DOT

// Canonical is a canonicalized identifier. The zero value is the empty
// identifier.
type Canonical string

// DimName is a canonicalized dimension name. Distinct from Canonical so the
// type system keeps dimension names, element names, and variable
// identifiers from being interchanged by accident.
type DimName string

// ElementName is a canonicalized dimension-element name.
type ElementName string

// Canonicalize folds s to its canonical form:
//  1. Unicode NFKC normalization (grounded on the same "normalize at the
//     boundary" approach sunholo-data-ailang's lexer uses for NFC).
//  2. ASCII-fold uppercase to lowercase.
//  3. Map ASCII space to underscore.
//  4. Collapse runs of underscore.
//  5. Trim leading/trailing underscore.
//
// U+00B7 (ModuleSep) passes through unmodified.
func Canonicalize(s string) string {
	if s == "" {
		return ""
	}
	b := []byte(s)
	if !norm.NFKC.IsNormal(b) {
		b = norm.NFKC.Bytes(b)
	}

	var sb strings.Builder
	sb.Grow(len(b))
	lastWasUnderscore := false
	for _, r := range string(b) {
		switch {
		case r == ' ' || r == '_':
			if !lastWasUnderscore {
				sb.WriteByte('_')
			}
			lastWasUnderscore = true
			continue
		case r >= 'A' && r <= 'Z':
			r = r - 'A' + 'a'
		}
		sb.WriteRune(r)
		lastWasUnderscore = false
	}
	return strings.Trim(sb.String(), "_")
}

// Ident canonicalizes s into a Canonical identifier.
func Ident(s string) Canonical { return Canonical(Canonicalize(s)) }

// Dim canonicalizes s into a DimName.
func Dim(s string) DimName { return DimName(Canonicalize(s)) }

// Elem canonicalizes s into an ElementName.
func Elem(s string) ElementName { return ElementName(Canonicalize(s)) }

// JoinModulePath joins a parent module ident and a child ident with the
// reserved module-path separator, e.g. "parent·child".
func JoinModulePath(parent, child Canonical) Canonical {
	var sb strings.Builder
	sb.WriteString(string(parent))
	sb.WriteRune(ModuleSep)
	sb.WriteString(string(child))
	return Canonical(sb.String())
}
