package css

import (
	"strings"
	"unicode"
)

// Value represents a parsed CSS property value.
type Value struct {
	Raw     string  // original CSS value string (e.g. "1.2em", "bold")
	Value   float64 // numeric component if applicable
	Unit    string  // unit if applicable: "em", "px", "%", "vw", ...
	Keyword string  // keyword if applicable: "bold", "fixed", ...
}

// IsNumeric returns true if the value has a numeric component, including
// explicit zeros like "0" or "0px".
func (v Value) IsNumeric() bool {
	if v.Unit != "" {
		return true
	}
	if v.Value != 0 && v.Keyword == "" {
		return true
	}
	if v.Raw != "" && v.Keyword == "" {
		first := rune(v.Raw[0])
		if unicode.IsDigit(first) || first == '.' || first == '-' || first == '+' {
			return true
		}
	}
	return false
}

// Declaration is a single property within a rule. Order matters for CSS
// cascade, so rules keep declarations as a slice rather than a map.
type Declaration struct {
	Property string
	Value    Value
}

// Rule is one ruleset. The selector is kept verbatim: the webview engine
// resolves it, this package only decides whether the rule may be injected.
type Rule struct {
	Selector     string
	Declarations []Declaration
}

// FontFace represents a parsed @font-face block.
type FontFace struct {
	Family string
	Src    string
	Style  string
	Weight string
}

// MediaQuery represents a parsed @media condition.
type MediaQuery struct {
	Raw     string
	Type    string
	Negated bool
}

// Evaluate returns true if the query applies to a paginated screen
// presentation. Unknown media types do not match.
func (mq MediaQuery) Evaluate() bool {
	var matches bool
	switch strings.ToLower(mq.Type) {
	case "", "all", "screen":
		matches = true
	case "print", "speech", "aural", "tty":
		matches = false
	default:
		matches = false
	}
	if mq.Negated {
		matches = !matches
	}
	return matches
}

// Stylesheet is the parsed and flattened result: rules from the top level
// and from applicable @media blocks, in source order.
type Stylesheet struct {
	Rules     []Rule
	FontFaces []FontFace
	Imports   []string
	Warnings  []string
}

// String serializes the stylesheet back to CSS text, ready for injection
// into a section wrapper document.
func (s *Stylesheet) String() string {
	var b strings.Builder
	for _, ff := range s.FontFaces {
		b.WriteString("@font-face {\n")
		if ff.Family != "" {
			b.WriteString("  font-family: \"" + cssEscapeDoubleQuoted(ff.Family) + "\";\n")
		}
		if ff.Src != "" {
			b.WriteString("  src: " + ff.Src + ";\n")
		}
		if ff.Style != "" {
			b.WriteString("  font-style: " + ff.Style + ";\n")
		}
		if ff.Weight != "" {
			b.WriteString("  font-weight: " + ff.Weight + ";\n")
		}
		b.WriteString("}\n")
	}
	for _, r := range s.Rules {
		if len(r.Declarations) == 0 {
			continue
		}
		b.WriteString(r.Selector + " {\n")
		for _, d := range r.Declarations {
			b.WriteString("  " + d.Property + ": " + d.Value.Raw + ";\n")
		}
		b.WriteString("}\n")
	}
	return b.String()
}

// cssEscapeDoubleQuoted escapes a string for use inside CSS double quotes.
func cssEscapeDoubleQuoted(s string) string {
	if !strings.ContainsAny(s, `"\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
