package ast

import (
	"errors"
	"testing"
)

func mustParse(t *testing.T, src string) *Node {
	t.Helper()
	n, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	return n
}

func TestParsePathChain(t *testing.T) {
	n := mustParse(t, "Patient.name.given.first()")

	if n.Kind != NdInvoke || n.Text != "first" {
		t.Fatalf("root = %v %q, want Invoke first", n.Kind, n.Text)
	}
	dot := n.Children[0]
	if dot.Kind != NdDot {
		t.Fatalf("receiver = %v, want Dot", dot.Kind)
	}
	if member := dot.Children[1]; member.Kind != NdIdent || member.Text != "given" {
		t.Errorf("member = %v %q, want Ident given", member.Kind, member.Text)
	}
}

func TestParsePrecedence(t *testing.T) {
	// implies binds loosest: (a or b) implies (c and d)
	n := mustParse(t, "a or b implies c and d")
	if n.Kind != NdBinary || n.Text != "implies" {
		t.Fatalf("root = %q, want implies", n.Text)
	}
	if n.Children[0].Text != "or" || n.Children[1].Text != "and" {
		t.Errorf("children = %q, %q, want or, and", n.Children[0].Text, n.Children[1].Text)
	}

	// multiplication binds tighter than addition
	n = mustParse(t, "1 + 2 * 3")
	if n.Text != "+" || n.Children[1].Text != "*" {
		t.Errorf("1+2*3 parsed as %q(%q, %q)", n.Text, n.Children[0].Text, n.Children[1].Text)
	}

	// union binds tighter than comparison
	n = mustParse(t, "a | b = c")
	if n.Text != "=" || n.Children[0].Text != "|" {
		t.Errorf("a|b=c parsed with root %q", n.Text)
	}
}

func TestParseIndexAndWhere(t *testing.T) {
	n := mustParse(t, "name[0].given")
	if n.Kind != NdDot || n.Children[0].Kind != NdIndex {
		t.Fatalf("unexpected shape: %v", n.Kind)
	}

	n = mustParse(t, "name.where(use = 'official')")
	if n.Kind != NdInvoke || n.Text != "where" || len(n.Children) != 2 {
		t.Fatalf("where call shape wrong: %v %q args=%d", n.Kind, n.Text, len(n.Children)-1)
	}
}

func TestParseLiterals(t *testing.T) {
	cases := []struct {
		src  string
		kind NodeKind
	}{
		{"{}", NdEmpty},
		{"true", NdBool},
		{"42", NdInt},
		{"3.14", NdDec},
		{"'hello'", NdStr},
		{"@2014-01-25", NdDate},
		{"@2014-01-25T14:30", NdDateTime},
		{"@T14:30", NdTime},
		{"5 'mg'", NdQuantity},
		{"2 years", NdQuantity},
	}
	for _, tc := range cases {
		n := mustParse(t, tc.src)
		if n.Kind != tc.kind {
			t.Errorf("Parse(%q) kind = %v, want %v", tc.src, n.Kind, tc.kind)
		}
	}
}

func TestParseQuantityUnit(t *testing.T) {
	n := mustParse(t, "5 'mg'")
	if n.Text != "mg" || n.Children[0].Kind != NdInt || n.Children[0].Int != 5 {
		t.Errorf("quantity = unit %q magnitude %v", n.Text, n.Children[0])
	}
	// Plural calendar units normalize to singular.
	n = mustParse(t, "3 months")
	if n.Text != "month" {
		t.Errorf("calendar unit = %q, want month", n.Text)
	}
}

func TestParseTypeOperators(t *testing.T) {
	n := mustParse(t, "value is Quantity")
	if n.Kind != NdTypeOp || n.Text != "is" || n.TypeName != "Quantity" {
		t.Fatalf("is parse: %v %q %q", n.Kind, n.Text, n.TypeName)
	}

	n = mustParse(t, "value as System.Integer")
	if n.TypeName != "System.Integer" {
		t.Errorf("qualified type = %q, want System.Integer", n.TypeName)
	}
}

func TestParseVariables(t *testing.T) {
	n := mustParse(t, "$this.length() > %minLen")
	if n.Kind != NdBinary || n.Text != ">" {
		t.Fatalf("root = %v %q", n.Kind, n.Text)
	}
	if env := n.Children[1]; env.Kind != NdEnvVar || env.Text != "minLen" {
		t.Errorf("env var = %v %q", env.Kind, env.Text)
	}
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{
		"", "name.", "name..given", "where(", "'unterminated", "1 +", "a ! b",
	} {
		_, err := Parse(src)
		if err == nil {
			t.Errorf("Parse(%q): want error", src)
			continue
		}
		var se *SyntaxError
		if src != "" && !errors.As(err, &se) {
			t.Errorf("Parse(%q): error %v is not a SyntaxError", src, err)
		}
	}
}

func TestParseDelimitedIdentifier(t *testing.T) {
	n := mustParse(t, "`PID-1`.value")
	if n.Children[0].Kind != NdIdent || n.Children[0].Text != "PID-1" {
		t.Errorf("delimited ident = %q", n.Children[0].Text)
	}
}
