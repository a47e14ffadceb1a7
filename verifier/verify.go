package verifier

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/bcverify/classfile"
)

// Verify runs the structural and data-flow checks on one method of class.
// Rejections and failed prerequisites are verdicts, not errors; the error
// is non-nil only when the verifier itself failed, and is then an
// *InternalError.
func Verify(h Hierarchy, class *classfile.Class, m *classfile.Method, opts Options) (res *Result, err error) {
	opts = opts.withDefaults()
	res = &Result{
		RunID:  uuid.NewString(),
		Class:  class.Name,
		Method: m.Name + m.Descriptor,
	}
	if !m.HasCode() {
		res.Status = Accepted
		return res, nil
	}

	prep, err := precheck(class, m)
	if err != nil {
		var sc *staticCheckError
		if errors.As(err, &sc) {
			res.Status = NotYet
			res.Message = sc.Error()
			opts.Logger.Infof("%s: %s.%s: %s", res.RunID, class.Name, m, res.Message)
			return res, nil
		}
		return nil, err
	}

	r := newRun(res.RunID, h, class, m, prep.desc, opts)
	defer func() {
		if p := recover(); p != nil {
			ie, ok := p.(*InternalError)
			if !ok {
				panic(p)
			}
			res, err = nil, ie
		}
	}()

	g, err := NewGraph(prep.code, m.Handlers, class.Pool, opts.StrictSubroutineHandlers)
	if err == nil {
		r.attach(g)
		err = r.solve()
	}
	return r.verdict(res, err)
}

// verdict turns the outcome of a run into a result.
func (r *run) verdict(res *Result, err error) (*Result, error) {
	res.Warnings = r.warnings
	res.Steps = r.steps
	var rej *Rejection
	switch {
	case err == nil:
		res.Status = Accepted
		r.log.Infof("%s: %s.%s: accepted after %d steps", r.id, r.class.Name, r.method, r.steps)
		return res, nil
	case errors.As(err, &rej):
		if r.graph != nil {
			rej.Diagnostic = r.diag.materialize(r.graph, r.opts.TraceLimit)
		}
		res.Status = Rejected
		res.Message = rej.Error()
		res.Diagnostic = rej.Diagnostic
		r.log.Infof("%s: %s.%s: rejected: %s", r.id, r.class.Name, r.method, res.Message)
		return res, nil
	}
	r.log.Errorf("%s: %s.%s: %s", r.id, r.class.Name, r.method, err)
	var ie *InternalError
	if !errors.As(err, &ie) {
		ie = wrapInternal(err, "verifying %s.%s", r.class.Name, r.method)
	}
	return nil, ie
}

// VerifyMethods verifies the given methods of class concurrently, at most
// opts.Workers at a time. Results are in the order of methods. The first
// internal error, or the context's error, cancels the rest.
func VerifyMethods(ctx context.Context, h Hierarchy, class *classfile.Class, methods []*classfile.Method, opts Options) ([]*Result, error) {
	opts = opts.withDefaults()
	results := make([]*Result, len(methods))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, m := range methods {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := Verify(h, class, m, opts)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// VerifyClass verifies every method of class.
func VerifyClass(ctx context.Context, h Hierarchy, class *classfile.Class, opts Options) ([]*Result, error) {
	return VerifyMethods(ctx, h, class, class.Methods, opts)
}
