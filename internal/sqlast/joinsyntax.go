package sqlast

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// joinSyntax recovers join qualifiers that the parse tree does not keep.
// libpg_query records "a JOIN b" and "a INNER JOIN b" as the same JoinExpr,
// so the written keyword is read back from the token stream.
type joinSyntax struct {
	tokens []*pg_query.ScanToken
}

func scanJoinSyntax(sql string) joinSyntax {
	if sql == "" {
		return joinSyntax{}
	}
	scanned, err := pg_query.Scan(sql)
	if err != nil {
		return joinSyntax{}
	}
	return joinSyntax{tokens: scanned.GetTokens()}
}

// innerWritten reports whether the join with right-hand side rarg was
// spelled INNER JOIN. Its keyword is the last JOIN token before the first
// offset inside rarg; only parentheses, LATERAL and ONLY can sit between.
func (s joinSyntax) innerWritten(rarg *pg_query.Node) bool {
	offset := firstLocation(rarg.ProtoReflect())
	if offset < 0 {
		return false
	}
	for i := len(s.tokens) - 1; i > 0; i-- {
		tok := s.tokens[i]
		if tok.GetStart() >= offset || tok.GetToken() != pg_query.Token_JOIN {
			continue
		}
		return s.tokens[i-1].GetToken() == pg_query.Token_INNER_P
	}
	return false
}

// firstLocation returns the smallest source offset recorded anywhere in m,
// or -1 when the subtree carries none.
func firstLocation(m protoreflect.Message) int32 {
	first := int32(-1)
	m.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		switch {
		case fd.IsMap():
		case fd.IsList():
			if fd.Message() == nil {
				return true
			}
			list := v.List()
			for i := 0; i < list.Len(); i++ {
				first = earliest(first, firstLocation(list.Get(i).Message()))
			}
		case fd.Message() != nil:
			first = earliest(first, firstLocation(v.Message()))
		case fd.Name() == "location" && fd.Kind() == protoreflect.Int32Kind:
			first = earliest(first, int32(v.Int()))
		}
		return true
	})
	return first
}

func earliest(a, b int32) int32 {
	switch {
	case b < 0:
		return a
	case a < 0 || b < a:
		return b
	}
	return a
}
