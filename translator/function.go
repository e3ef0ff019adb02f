package translator

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.uber.org/zap"

	"github.com/wippyai/propbridge/errors"
	"github.com/wippyai/propbridge/host"
)

// frame holds the translators for a signature's parameters and return.
type frame struct {
	params []*FieldTranslator
	ret    *FieldTranslator
}

func (e *Env) frameFor(sig *host.Signature) *frame {
	if f, ok := e.frames.Load(sig); ok {
		return f
	}
	f := &frame{}
	for _, p := range sig.Params() {
		f.params = append(f.params, newStaticTranslator(p, false))
	}
	if rt := sig.Return(); rt != nil {
		f.ret = newStaticTranslator(host.NewField("return", rt, 0, host.FlagReturn), false)
	}
	e.frames.Store(sig, f)
	return f
}

// bindArgs matches positional and keyword arguments to parameters. Out
// parameters may be omitted.
func bindArgs(name string, sig *host.Signature, args starlark.Tuple, kwargs []starlark.Tuple) ([]starlark.Value, error) {
	params := sig.Params()
	if len(args) > len(params) {
		return nil, fmt.Errorf("%s: got %d arguments, want at most %d", name, len(args), len(params))
	}
	vals := make([]starlark.Value, len(params))
	copy(vals, args)
	for _, kv := range kwargs {
		key := string(kv[0].(starlark.String))
		i := -1
		for j, p := range params {
			if p.Name == key {
				i = j
				break
			}
		}
		if i < 0 {
			return nil, errors.FieldUnknown(errors.PhaseCall, []string{name}, key)
		}
		if vals[i] != nil {
			return nil, fmt.Errorf("%s: got multiple values for parameter %q", name, key)
		}
		vals[i] = kv[1]
	}
	for i, p := range params {
		if vals[i] == nil && !p.Has(host.FlagOut) {
			return nil, fmt.Errorf("%s: missing argument for %s", name, p.Name)
		}
	}
	return vals, nil
}

type boundArg struct {
	tr     *FieldTranslator
	addr   uint32
	direct bool
}

// call converts args into a scratch frame, invokes target and converts
// the return value and out parameters back. Scratch regions and the
// storage owned by converted arguments are released before returning.
func (e *Env) call(thread *starlark.Thread, sig *host.Signature, self host.Instance, target host.Invoker, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	name := "call"
	if thread != nil && thread.CallStackDepth() > 0 {
		name = thread.CallFrame(0).Name
	}
	vals, err := bindArgs(name, sig, args, kwargs)
	if err != nil {
		return nil, err
	}
	fr := e.frameFor(sig)
	info := sig.FrameInfo()

	frameScratch, err := e.scratch.Acquire(info.Size, info.Align)
	if err != nil {
		return nil, err
	}
	bound := make([]boundArg, 0, len(fr.params))
	ctx := e.newContext(nil, nil, []string{name})

	release := func() {
		for i := len(bound) - 1; i >= 0; i-- {
			if bound[i].direct {
				continue
			}
			if err := bound[i].tr.adapter.Cleanup(ctx, frameScratch.Addr); err != nil {
				Logger().Warn("release argument", zap.String("call", name), zap.Error(err))
			}
		}
		if err := e.scratch.Release(frameScratch); err != nil {
			Logger().Warn("release call frame", zap.String("call", name), zap.Error(err))
		}
	}

	for i, tr := range fr.params {
		pctx := ctx.at(nil, nil, tr.tracker.Field().Name)
		arg := boundArg{tr: tr}
		if IsOutParameter(tr.codec) {
			err = tr.adapter.FromScriptValueForOutParam(pctx, vals[i], frameScratch.Addr)
			arg.addr = tr.adapter.AddressOf(frameScratch.Addr)
		} else {
			arg.addr, arg.direct, err = tr.adapter.FastFromScriptValue(pctx, vals[i], frameScratch.Addr)
		}
		if err != nil {
			release()
			return nil, err
		}
		bound = append(bound, arg)
	}

	var retScratch Scratch
	if fr.ret != nil {
		rt := sig.Return()
		if retScratch, err = e.scratch.Acquire(rt.Size(), rt.Align()); err != nil {
			release()
			return nil, err
		}
	}
	releaseRet := func() {
		if fr.ret == nil {
			return
		}
		if err := fr.ret.adapter.Cleanup(ctx, retScratch.Addr); err != nil {
			Logger().Warn("release return value", zap.String("call", name), zap.Error(err))
		}
		if err := e.scratch.Release(retScratch); err != nil {
			Logger().Warn("release return slot", zap.String("call", name), zap.Error(err))
		}
	}

	call := &host.Call{
		Memory: e.mem,
		Alloc:  e.alloc,
		Sig:    sig,
		Self:   self,
		Args:   make([]uint32, len(bound)),
		Ret:    retScratch.Addr,
	}
	for i, a := range bound {
		call.Args[i] = a.addr
	}

	if err := target.Invoke(call); err != nil {
		releaseRet()
		release()
		return nil, err
	}

	result := starlark.Value(starlark.None)
	if fr.ret != nil {
		if result, err = fr.ret.adapter.ToScriptValue(ctx.at(nil, nil, "return"), retScratch.Addr, false); err != nil {
			releaseRet()
			release()
			return nil, err
		}
	}
	for i, a := range bound {
		if err := a.tr.adapter.ToScriptValueAfterCall(ctx, vals[i], frameScratch.Addr); err != nil {
			releaseRet()
			release()
			return nil, err
		}
	}
	releaseRet()
	release()
	return result, nil
}

// scriptInvoker runs a script callable as a delegate target. Out and
// ref parameters are passed as *Ref boxes and written back afterwards.
type scriptInvoker struct {
	env *Env
	fn  starlark.Callable
	sig *host.Signature
}

func (s *scriptInvoker) Invoke(call *host.Call) error {
	fr := s.env.frameFor(s.sig)
	ctx := s.env.newContext(nil, nil, []string{s.fn.Name()})
	if len(call.Args) != len(fr.params) {
		return errors.New(errors.PhaseCall, errors.KindInvalidInput).
			Path(s.fn.Name()).
			Detail("got %d arguments, want %d", len(call.Args), len(fr.params)).
			Build()
	}

	args := make(starlark.Tuple, len(fr.params))
	boxes := make([]*Ref, len(fr.params))
	for i, tr := range fr.params {
		f := tr.tracker.Field()
		codec := unwrapOut(tr.codec)
		pctx := ctx.at(nil, nil, f.Name)
		if IsOutParameter(tr.codec) {
			box := NewRef(nil)
			if f.Has(host.FlagRef) {
				v, err := codec.ToScriptValue(pctx, call.Args[i], false)
				if err != nil {
					return err
				}
				box.Value = v
			}
			boxes[i] = box
			args[i] = box
			continue
		}
		v, err := codec.ToScriptValue(pctx, call.Args[i], false)
		if err != nil {
			return err
		}
		args[i] = v
	}

	run := s.env.begin(s.fn.Name())
	res, err := starlark.Call(run.thread, s.fn, args, nil)
	if err = s.env.end(run, err); err != nil {
		return errors.Wrap(errors.PhaseCall, errors.KindInvalidData, err, "delegate target "+s.fn.Name())
	}

	for i, box := range boxes {
		if box == nil || box.Value == starlark.None {
			continue
		}
		codec := unwrapOut(fr.params[i].codec)
		if err := codec.FromScriptValue(ctx.at(nil, nil, fr.params[i].tracker.Field().Name), box.Value, call.Args[i], true); err != nil {
			return err
		}
	}
	if fr.ret != nil && call.Ret != 0 {
		return fr.ret.codec.FromScriptValue(ctx.at(nil, nil, "return"), res, call.Ret, false)
	}
	return nil
}
