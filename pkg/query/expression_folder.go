package query

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/format"
)

// foldableFns is copied from https://github.com/pingcap/tidb/blob/41ba7bfff37703ac8857bc01f5bb82eb8bf3771b/expression/function_traits.go#L138
var foldableFns = []string{
	ast.Now,
	ast.RandomBytes,
	ast.CurrentTimestamp,
	ast.UTCTime,
	ast.Curtime,
	ast.CurrentTime,
	ast.UTCTimestamp,
	ast.UnixTimestamp,
	ast.Curdate,
	ast.CurrentDate,
	ast.UTCDate,
}

// unfoldableFns is copied from https://github.com/pingcap/tidb/blob/ec2731b8f53993987b756ecda000789a364c5064/expression/function_traits.go#L49
var unfoldableFns = []string{
	ast.Sysdate,
	ast.FoundRows,
	ast.Rand,
	ast.UUID,
	ast.Sleep,
	ast.RowFunc,
	ast.Values,
	ast.SetVar,
	ast.GetVar,
	ast.GetParam,
	ast.Benchmark,
	ast.DayName,
	ast.NextVal,
	ast.LastVal,
	ast.SetVal,
	ast.AnyValue,
}

// filterFolder walks a filter and records each call that can be replaced by
// a constant for the whole export. It stops at the first call whose value
// would differ from row to row.
type filterFolder struct {
	calls map[string]bool
	err   error
}

func (f *filterFolder) Enter(in ast.Node) (ast.Node, bool) {
	call, ok := in.(*ast.FuncCallExpr)
	if !ok {
		return in, false
	}
	name := strings.ToLower(call.FnName.String())
	switch {
	case slices.Contains(foldableFns, name):
		text, err := restoreString(in)
		if err != nil {
			f.err = err
			return in, true
		}
		f.calls[text] = true
	case slices.Contains(unfoldableFns, name):
		f.err = fmt.Errorf("filter calls %s, which varies per row and cannot be exported consistently", name)
		return in, true
	}

	return in, false
}

func (f *filterFolder) Leave(in ast.Node) (ast.Node, bool) {
	return in, true
}

func restoreString(in ast.Node) (string, error) {
	var sb strings.Builder
	rctx := &format.RestoreCtx{Flags: format.DefaultRestoreFlags, In: &sb, DefaultDB: ""}
	if err := in.Restore(rctx); err != nil {
		return "", fmt.Errorf("cannot render filter expression: %w", err)
	}

	return sb.String(), nil
}

// FoldFilter returns where with every occurrence of a foldable
// non-deterministic function replaced by the value the source evaluates it
// to now, so that all partitions of one export see the same instant.
func FoldFilter(ctx context.Context, db Querier, where string) (string, error) {
	stmt, err := ParseFilter(where)
	if err != nil {
		return "", err
	}
	folder := &filterFolder{calls: make(map[string]bool)}
	stmt.Where.Accept(folder)
	if folder.err != nil {
		return "", folder.err
	}
	if len(folder.calls) == 0 {
		return where, nil
	}

	folded, err := restoreString(stmt.Where)
	if err != nil {
		return "", err
	}
	for call := range folder.calls {
		var value string
		if err := db.QueryRowContext(ctx, "SELECT "+call).Scan(&value); err != nil {
			return "", fmt.Errorf("could not evaluate %s: %w", call, err)
		}
		folded = strings.ReplaceAll(folded, call, QuoteLiteral(value))
	}

	return folded, nil
}
