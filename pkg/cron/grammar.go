package cron

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var fieldLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Number", Pattern: `[0-9]+`},
	{Name: "Star", Pattern: `\*`},
	{Name: "Comma", Pattern: `,`},
	{Name: "Dash", Pattern: `-`},
	{Name: "Slash", Pattern: `/`},
})

// pField is a single cron field: one or more comma separated terms.
type pField struct {
	Terms []*pTerm `parser:"@@ ( Comma @@ )*"`
}

// pTerm is `*`, `N` or `A-B`, optionally followed by `/step`.
// Numbers are captured as strings so leading zeros ("05") parse as decimal.
type pTerm struct {
	Wildcard bool    `parser:"( @Star"`
	Start    *string `parser:"| @Number"`
	End      *string `parser:"  ( Dash @Number )? )"`
	Step     *string `parser:"( Slash @Number )?"`
}

var fieldParser = participle.MustBuild[pField](
	participle.Lexer(fieldLexer),
)

func parseField(input string) (*pField, error) {
	return fieldParser.ParseString("", input)
}
