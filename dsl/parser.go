// Package dsl 提供手写场景的紧凑描述语言，供命令行与测试使用。
// JSON 仍是场景的规范输入形态，DSL 在解析后统一降解为 scene.Scene。
package dsl

import (
	"fmt"
	"io"
	"strconv"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var (
	sceneLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Whitespace", Pattern: `[ \t\r]+`},
		{Name: "Newline", Pattern: `\n+`},
		{Name: "LineComment", Pattern: `//[^\n]*`},
		{Name: "Color", Pattern: `#(?:[0-9A-Fa-f]{8}|[0-9A-Fa-f]{6}|[0-9A-Fa-f]{3})`},
		{Name: "Number", Pattern: `-?(?:\d+\.\d+|\d+)`},
		{Name: "String", Pattern: `"(?:\\.|[^"])*"`},
		{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_-]*`},
		{Name: "Symbol", Pattern: `[][(),.:;]`},
		{Name: "LBrace", Pattern: `{`},
		{Name: "RBrace", Pattern: `}`},
	})

	documentParser = participle.MustBuild[Document](
		participle.Lexer(sceneLexer),
		participle.Elide("Whitespace", "LineComment"),
	)
)

// Document 是场景 DSL 的根节点：scene <宽> <高> { 命令… }。
type Document struct {
	Pos      lexer.Position `parser:"" json:"-"`
	Width    string         `parser:"Newline* 'scene' @Number"`
	Height   string         `parser:"@Number"`
	Commands []*Command     `parser:"'{' Newline* ( @@ Newline* )* '}' Newline*"`
}

// Command 对应一条顶层声明：background/vignette/grain/rect/text/image/path。
// 可带一个字符串参数（文本内容、资源路径、路径数据）与属性块。
type Command struct {
	Pos   lexer.Position `parser:"" json:"-"`
	Name  string         `parser:"@Ident"`
	Arg   *StringLiteral `parser:"( @String )?"`
	Block *Block         `parser:"( @@ )?"`
}

// Block 是花括号包围的属性列表。
type Block struct {
	Props []*Prop `parser:"'{' Newline* ( @@ ( ';' | Newline )* )* '}'"`
}

// Prop 使用冒号语法：key: value。
type Prop struct {
	Pos   lexer.Position `parser:"" json:"-"`
	Key   string         `parser:"@Ident"`
	Value *Value         `parser:"':' Newline* @@"`
}

// Value 为属性值：字符串、颜色、数字、标识符或数组。
type Value struct {
	String *StringLiteral `parser:"  @String"`
	Color  *string        `parser:"| @Color"`
	Number *string        `parser:"| @Number"`
	Ident  *string        `parser:"| @Ident"`
	Array  []*Value       `parser:"| '[' Newline* ( @@ ( ',' Newline* @@ )* )? Newline* ']'"`
}

// StringLiteral 在捕获时按 Go 字符串语法去引号。
type StringLiteral string

// Capture 实现 participle.Capture。
func (s *StringLiteral) Capture(values []string) error {
	if len(values) == 0 {
		return fmt.Errorf("字符串字面量缺少值")
	}
	val, err := strconv.Unquote(values[0])
	if err != nil {
		return err
	}
	*s = StringLiteral(val)
	return nil
}

// Parse 从 io.Reader 解析 DSL 文档。
func Parse(r io.Reader) (*Document, error) {
	return documentParser.Parse("", r)
}

// ParseString 从字符串解析 DSL 文档。
func ParseString(input string) (*Document, error) {
	return documentParser.ParseString("", input)
}
