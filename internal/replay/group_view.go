package replay

import (
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/avmdbg/avmdbg/common/check"
)

// Numbers stay json.Number so 64-bit values are shown verbatim.
var viewJSON = jsoniter.Config{
	EscapeHTML:  false,
	SortMapKeys: true,
	UseNumber:   true,
}.Froze()

type lineSpan struct {
	start int
	end   int
}

// groupView is an indented JSON array of the transaction results of a group, with the line
// span of every transaction.
type groupView struct {
	text  string
	spans []lineSpan
}

func buildGroupView(txns []txnEntry) *groupView {
	if len(txns) == 0 {
		return &groupView{text: "[]"}
	}

	view := &groupView{spans: make([]lineSpan, len(txns))}
	var b strings.Builder
	b.WriteString("[\n")
	line := 2
	for i, txn := range txns {
		text := strings.ReplaceAll(renderTxn(txn), "\n", "\n  ")
		lines := strings.Count(text, "\n")
		view.spans[i] = lineSpan{start: line, end: line + lines}
		line += lines + 1

		b.WriteString("  ")
		b.WriteString(text)
		if i < len(txns)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteString("]")
	view.text = b.String()
	return view
}

func renderTxn(txn txnEntry) string {
	if txn.result == nil {
		return "null"
	}
	raw := txn.result.Raw
	if raw == nil {
		var err error
		raw, err = viewJSON.Marshal(txn.result)
		check.PanicIfErr(err)
	}

	var doc any
	check.PanicIfErr(viewJSON.Unmarshal(raw, &doc))
	text, err := viewJSON.MarshalIndent(doc, "", "  ")
	check.PanicIfErr(err)
	return string(text)
}
