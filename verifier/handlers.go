package verifier

import (
	"github.com/chazu/bcverify/classfile"
)

// exceptionHandler is one exception table entry in node indices.
type exceptionHandler struct {
	start, end int    // protected nodes, end exclusive
	entry      int    // handler entry node
	catchType  string // empty catches everything
}

// caught returns the type the handler entry finds on the stack.
func (h exceptionHandler) caught() Type {
	if h.catchType == "" {
		return Reference(classfile.ThrowableClass)
	}
	return Reference(h.catchType)
}

// handlerIndex maps each instruction to the handlers protecting it, in
// exception table order.
type handlerIndex struct {
	handlers []exceptionHandler
	byNode   [][]int
}

func newHandlerIndex(g *Graph, table []classfile.Handler, pool *classfile.ConstantPool) (*handlerIndex, error) {
	hi := &handlerIndex{byNode: make([][]int, g.Len())}
	for i, h := range table {
		start, ok := g.IndexOf(h.Start)
		if !ok {
			return nil, internalf("exception handler %d starts inside an instruction at %d", i, h.Start)
		}
		end, ok := g.IndexOf(h.End)
		if !ok {
			if h.End != g.codeLen {
				return nil, internalf("exception handler %d ends inside an instruction at %d", i, h.End)
			}
			end = g.Len()
		}
		entry, ok := g.IndexOf(h.Target)
		if !ok {
			return nil, internalf("exception handler %d enters inside an instruction at %d", i, h.Target)
		}
		eh := exceptionHandler{start: start, end: end, entry: entry}
		if h.CatchType != 0 {
			name, err := pool.ClassName(h.CatchType)
			if err != nil {
				return nil, wrapInternal(err, "exception handler %d catch type", i)
			}
			eh.catchType = name
		}
		hi.handlers = append(hi.handlers, eh)
		for n := start; n < end; n++ {
			hi.byNode[n] = append(hi.byNode[n], len(hi.handlers)-1)
		}
	}
	return hi, nil
}

// protecting returns the handlers whose range covers node n.
func (hi *handlerIndex) protecting(n int) []exceptionHandler {
	idx := hi.byNode[n]
	if len(idx) == 0 {
		return nil
	}
	out := make([]exceptionHandler, len(idx))
	for i, h := range idx {
		out[i] = hi.handlers[h]
	}
	return out
}

// entries returns the entry node of every handler.
func (hi *handlerIndex) entries() []int {
	out := make([]int, len(hi.handlers))
	for i, h := range hi.handlers {
		out[i] = h.entry
	}
	return out
}
