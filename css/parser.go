// Package css parses publisher stylesheets and strips the declarations that
// would fight the column-based page layout. The output is plain CSS text
// safe to inject after the house stylesheet.
package css

import (
	"bytes"
	"strconv"
	"strings"
	"unicode"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"
)

// Parser parses CSS stylesheets into structured rules.
type Parser struct {
	log *zap.Logger
}

// NewParser creates a new CSS parser.
func NewParser(log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log.Named("css-parser")}
}

// Parse parses CSS text into a Stylesheet. Rules inside @media blocks that
// apply to screen presentation are flattened into the rule list; blocks for
// other media are dropped. The parser is permissive: malformed constructs
// produce warnings, never errors.
func (p *Parser) Parse(data []byte, source string) *Stylesheet {
	sheet := &Stylesheet{}

	if source != "" {
		p.log.Debug("Parsing CSS", zap.String("source", source), zap.Int("bytes", len(data)))
	}

	input := parse.NewInput(bytes.NewReader(data))
	parser := css.NewParser(input, false)

	for {
		gt, _, data := parser.Next()

		switch gt {
		case css.ErrorGrammar:
			if parser.Err() != nil && parser.Err().Error() != "EOF" {
				p.log.Debug("CSS parse error", zap.Error(parser.Err()))
			}
			return sheet

		case css.BeginAtRuleGrammar:
			atRule := string(data)
			switch atRule {
			case "@media":
				mq := p.parseMediaQuery(parser.Values())
				rules := p.parseRulesetsUntilEnd(parser)
				if mq.Evaluate() {
					sheet.Rules = append(sheet.Rules, rules...)
				} else {
					p.log.Debug("Dropping @media block", zap.String("query", mq.Raw), zap.Int("rules", len(rules)))
				}
			case "@font-face":
				ff := p.parseFontFace(parser)
				if ff.Family != "" {
					sheet.FontFaces = append(sheet.FontFaces, ff)
				}
			default:
				p.skipAtRuleBlock(parser)
				p.log.Debug("Skipping @-rule", zap.String("rule", atRule))
			}

		case css.AtRuleGrammar:
			atRule := string(data)
			if atRule == "@import" {
				if url := extractImportURL(parser.Values()); url != "" {
					sheet.Imports = append(sheet.Imports, url)
				}
			} else {
				p.log.Debug("Skipping @-rule", zap.String("rule", atRule))
			}

		case css.BeginRulesetGrammar:
			selector := buildSelector(data, parser.Values())
			decls := p.parseDeclarations(parser)
			if selector != "" {
				sheet.Rules = append(sheet.Rules, Rule{Selector: selector, Declarations: decls})
			}
		}
	}
}

// Sanitize filters out declarations that break CSS-column pagination:
// multicolumn properties, fixed and absolute positioning, and viewport-unit
// dimensions. A rule losing all declarations is dropped. Everything removed
// is recorded as a warning on the sheet.
func (p *Parser) Sanitize(sheet *Stylesheet) *Stylesheet {
	out := &Stylesheet{
		FontFaces: sheet.FontFaces,
		Imports:   sheet.Imports,
		Warnings:  sheet.Warnings,
	}

	for _, r := range sheet.Rules {
		var kept []Declaration
		for _, d := range r.Declarations {
			if reason := columnUnsafe(d); reason != "" {
				out.Warnings = append(out.Warnings, reason+": "+r.Selector+" { "+d.Property+": "+d.Value.Raw+" }")
				p.log.Debug("Dropping declaration", zap.String("selector", r.Selector),
					zap.String("property", d.Property), zap.String("reason", reason))
				continue
			}
			kept = append(kept, d)
		}
		if len(kept) > 0 {
			out.Rules = append(out.Rules, Rule{Selector: r.Selector, Declarations: kept})
		}
	}
	return out
}

// columnUnsafe returns a reason string when the declaration must not reach
// the column container, or "" when it is safe.
func columnUnsafe(d Declaration) string {
	prop := strings.ToLower(d.Property)
	prop = strings.TrimPrefix(prop, "-webkit-")
	prop = strings.TrimPrefix(prop, "-moz-")

	if strings.HasPrefix(prop, "column") || prop == "columns" {
		return "multicolumn property"
	}
	if prop == "position" {
		switch strings.ToLower(d.Value.Keyword) {
		case "fixed", "absolute":
			return "out-of-flow positioning"
		}
	}
	if prop == "overflow" || prop == "overflow-x" || prop == "overflow-y" {
		if strings.EqualFold(d.Value.Keyword, "scroll") {
			return "nested scrolling"
		}
	}
	switch d.Value.Unit {
	case "vw", "vh", "vmin", "vmax":
		return "viewport-relative unit"
	}
	return ""
}

// buildSelector joins the ruleset's selector tokens into a single string.
// The tokenizer eats whitespace, so selector-list commas get their space
// back.
func buildSelector(data []byte, values []css.Token) string {
	var sb strings.Builder
	sb.Write(data)
	for _, v := range values {
		sb.Write(v.Data)
		if v.TokenType == css.CommaToken {
			sb.WriteByte(' ')
		}
	}
	return strings.TrimSpace(sb.String())
}

// parseDeclarations parses property declarations until EndRulesetGrammar.
func (p *Parser) parseDeclarations(parser *css.Parser) []Declaration {
	var decls []Declaration
	for {
		gt, _, data := parser.Next()

		switch gt {
		case css.ErrorGrammar, css.EndRulesetGrammar:
			return decls

		case css.DeclarationGrammar:
			values := parser.Values()
			if len(values) > 0 {
				decls = append(decls, Declaration{
					Property: strings.ToLower(string(data)),
					Value:    parseValue(values),
				})
			}

		case css.CustomPropertyGrammar:
			continue
		}
	}
}

// parseValue converts CSS tokens to a Value.
func parseValue(tokens []css.Token) Value {
	var rawParts []string
	for _, t := range tokens {
		if t.TokenType != css.WhitespaceToken {
			rawParts = append(rawParts, string(t.Data))
		} else if len(rawParts) > 0 {
			rawParts = append(rawParts, " ")
		}
	}
	val := Value{Raw: strings.TrimSpace(strings.Join(rawParts, ""))}

	if len(tokens) == 1 || (len(tokens) == 2 && tokens[1].TokenType == css.WhitespaceToken) {
		t := tokens[0]
		switch t.TokenType {
		case css.DimensionToken:
			val.Value, val.Unit = parseDimension(string(t.Data))
		case css.PercentageToken:
			val.Value, _ = strconv.ParseFloat(strings.TrimSuffix(string(t.Data), "%"), 64)
			val.Unit = "%"
		case css.NumberToken:
			val.Value, _ = strconv.ParseFloat(string(t.Data), 64)
		case css.IdentToken:
			val.Keyword = strings.ToLower(string(t.Data))
		case css.StringToken:
			val.Keyword = unquote(string(t.Data))
		case css.HashToken:
			val.Keyword = string(t.Data)
		}
		return val
	}

	val.Keyword = val.Raw
	return val
}

// parseDimension extracts numeric value and unit from a dimension token.
func parseDimension(s string) (float64, string) {
	numEnd := 0
	for i, r := range s {
		if unicode.IsDigit(r) || r == '.' || r == '-' || r == '+' {
			numEnd = i + 1
		} else {
			break
		}
	}
	if numEnd == 0 {
		return 0, ""
	}
	num, _ := strconv.ParseFloat(s[:numEnd], 64)
	return num, strings.ToLower(s[numEnd:])
}

// parseMediaQuery parses the condition tokens of an @media rule. Only the
// leading "not" and the media type matter for screen evaluation; feature
// conditions are kept in Raw for diagnostics.
func (p *Parser) parseMediaQuery(tokens []css.Token) MediaQuery {
	mq := MediaQuery{}

	var rawParts []string
	for _, t := range tokens {
		if t.TokenType != css.WhitespaceToken {
			rawParts = append(rawParts, string(t.Data))
		} else if len(rawParts) > 0 {
			rawParts = append(rawParts, " ")
		}
	}
	mq.Raw = strings.TrimSpace(strings.Join(rawParts, ""))

	var idents []string
	for _, t := range tokens {
		if t.TokenType == css.IdentToken {
			idents = append(idents, strings.ToLower(string(t.Data)))
		}
	}
	i := 0
	if i < len(idents) && idents[i] == "not" {
		mq.Negated = true
		i++
	}
	if i < len(idents) {
		mq.Type = idents[i]
	}
	return mq
}

// parseRulesetsUntilEnd parses rulesets inside an @media block and returns
// them for the caller to keep or drop.
func (p *Parser) parseRulesetsUntilEnd(parser *css.Parser) []Rule {
	var rules []Rule
	for {
		gt, _, data := parser.Next()

		switch gt {
		case css.ErrorGrammar, css.EndAtRuleGrammar:
			return rules

		case css.BeginRulesetGrammar:
			selector := buildSelector(data, parser.Values())
			decls := p.parseDeclarations(parser)
			if selector != "" {
				rules = append(rules, Rule{Selector: selector, Declarations: decls})
			}
		}
	}
}

// parseFontFace parses an @font-face block.
func (p *Parser) parseFontFace(parser *css.Parser) FontFace {
	ff := FontFace{}
	for {
		gt, _, data := parser.Next()

		switch gt {
		case css.ErrorGrammar, css.EndAtRuleGrammar:
			return ff

		case css.DeclarationGrammar:
			values := parser.Values()
			if len(values) == 0 {
				continue
			}
			var parts []string
			for _, v := range values {
				if v.TokenType != css.WhitespaceToken {
					parts = append(parts, string(v.Data))
				}
			}
			valStr := strings.Join(parts, " ")

			switch string(data) {
			case "font-family":
				ff.Family = unquote(valStr)
			case "src":
				ff.Src = valStr
			case "font-style":
				ff.Style = valStr
			case "font-weight":
				ff.Weight = valStr
			}
		}
	}
}

// skipAtRuleBlock skips tokens until the matching end of an @-rule block.
func (p *Parser) skipAtRuleBlock(parser *css.Parser) {
	depth := 1
	for depth > 0 {
		gt, _, _ := parser.Next()
		switch gt {
		case css.ErrorGrammar:
			return
		case css.BeginAtRuleGrammar, css.BeginRulesetGrammar:
			depth++
		case css.EndAtRuleGrammar, css.EndRulesetGrammar:
			depth--
		}
	}
}

// extractImportURL extracts the URL from @import tokens.
// Handles: @import "url"; @import url("url"); @import url(url);
func extractImportURL(tokens []css.Token) string {
	for _, t := range tokens {
		switch t.TokenType {
		case css.StringToken:
			return unquote(string(t.Data))
		case css.URLToken:
			s := string(t.Data)
			s = strings.TrimPrefix(s, "url(")
			s = strings.TrimSuffix(s, ")")
			return unquote(strings.TrimSpace(s))
		}
	}
	return ""
}

// unquote removes surrounding quotes from a string.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return s
	}
	if (s[0] == '"' && s[len(s)-1] == '"') ||
		(s[0] == '\'' && s[len(s)-1] == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}
