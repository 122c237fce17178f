package descriptor

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// Lexer tokenizes descriptor lists such as
// `uart:rx=RX:baud=9600; i2c:scl=SCL:sda=SDA`.
var Lexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
	// Number wins for values like 400k; 3V3 falls through to Ident.
	{Name: "Number", Pattern: `[0-9]+(?:\.[0-9]+)?[kKM]?\b`},
	{Name: "Ident", Pattern: `[A-Za-z0-9_][A-Za-z0-9_./\-]*`},
	{Name: "Punct", Pattern: `[:;=]`},
})

// List is a semicolon separated sequence of descriptors.
type List struct {
	Items []*Descriptor `@@ ( ";" @@ )* ";"?`
}

// Descriptor selects one decoder: a protocol name followed by options.
type Descriptor struct {
	Pos lexer.Position

	Protocol string    `@Ident`
	Options  []*Option `( ":" @@ )*`
}

// Option is a single key=value setting.
type Option struct {
	Pos lexer.Position

	Key   string `@Ident "="`
	Value string `@( Ident | Number )`
}
