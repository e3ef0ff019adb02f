package host

import (
	"fmt"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/propbridge/errors"
)

// TypeFromWIT converts a WIT type. Named records and enums are defined in
// the registry on first use and reused afterwards.
func (r *Registry) TypeFromWIT(t wit.Type) (*Type, error) {
	switch t := t.(type) {
	case wit.Bool:
		return Bool, nil
	case wit.U8:
		return U8, nil
	case wit.S8:
		return S8, nil
	case wit.U16:
		return U16, nil
	case wit.S16:
		return S16, nil
	case wit.U32:
		return U32, nil
	case wit.S32:
		return S32, nil
	case wit.U64:
		return U64, nil
	case wit.S64:
		return S64, nil
	case wit.F32:
		return F32, nil
	case wit.F64:
		return F64, nil
	case wit.String:
		return String, nil
	case *wit.TypeDef:
		return r.typeDefFromWIT(t)
	default:
		return nil, errors.New(errors.PhaseSchema, errors.KindUnsupported).
			Detail("unsupported WIT type: %T", t).
			Build()
	}
}

func (r *Registry) typeDefFromWIT(t *wit.TypeDef) (*Type, error) {
	var name string
	if t.Name != nil {
		name = *t.Name
	}

	switch kind := t.Kind.(type) {
	case *wit.List:
		elem, err := r.TypeFromWIT(kind.Type)
		if err != nil {
			return nil, err
		}
		return ArrayOf(elem), nil
	case *wit.Record:
		if name == "" {
			return nil, errors.InvalidInput(errors.PhaseSchema, "anonymous WIT record")
		}
		if s, ok := r.Struct(name); ok {
			return s.Type(), nil
		}
		specs := make([]FieldSpec, 0, len(kind.Fields))
		for _, f := range kind.Fields {
			ft, err := r.TypeFromWIT(f.Type)
			if err != nil {
				return nil, err
			}
			specs = append(specs, FieldSpec{Name: f.Name, Type: ft})
		}
		s, err := r.DefineStruct(name, specs...)
		if err != nil {
			return nil, err
		}
		return s.Type(), nil
	case *wit.Enum:
		if name == "" {
			return nil, errors.InvalidInput(errors.PhaseSchema, "anonymous WIT enum")
		}
		if e, ok := r.Enum(name); ok {
			return e.Type(), nil
		}
		names := make([]string, len(kind.Cases))
		for i, c := range kind.Cases {
			names[i] = c.Name
		}
		e, err := r.DefineEnum(name, Cases(names...)...)
		if err != nil {
			return nil, err
		}
		return e.Type(), nil
	case wit.Type:
		return r.TypeFromWIT(kind)
	default:
		return nil, errors.New(errors.PhaseSchema, errors.KindUnsupported).
			Path(name).
			Detail("unsupported WIT type definition: %T", kind).
			Build()
	}
}

// ParseType parses a type expression:
//
//	s32 | string | ...           WIT primitives
//	array<T> list<T> set<T>      containers
//	map<K, V>
//	object<C> weak<C> class<C>   class references
//	iface<I>
//	delegate<[out|ref] T, ... -> R>
//	multicast<T, ...>
//	Name                         struct or enum
//
// Undefined classes named by object<C> and weak<C> are declared.
func (r *Registry) ParseType(s string) (*Type, error) {
	p := &typeParser{reg: r, src: s}
	t, err := p.parse()
	if err != nil {
		return nil, err
	}
	p.space()
	if p.pos != len(p.src) {
		return nil, p.fail("unexpected %q", p.src[p.pos:])
	}
	return t, nil
}

type typeParser struct {
	reg *Registry
	src string
	pos int
}

func (p *typeParser) fail(format string, args ...any) error {
	return errors.New(errors.PhaseSchema, errors.KindInvalidInput).
		Value(p.src).
		Detail("type %q at %d: %s", p.src, p.pos, fmt.Sprintf(format, args...)).
		Build()
}

func (p *typeParser) space() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *typeParser) peek(tok string) bool {
	p.space()
	return strings.HasPrefix(p.src[p.pos:], tok)
}

func (p *typeParser) expect(tok string) error {
	if !p.peek(tok) {
		return p.fail("expected %q", tok)
	}
	p.pos += len(tok)
	return nil
}

func (p *typeParser) ident() string {
	p.space()
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '_' || (c >= '0' && c <= '9') || (c|0x20 >= 'a' && c|0x20 <= 'z') {
			p.pos++
			continue
		}
		break
	}
	return p.src[start:p.pos]
}

func (p *typeParser) parse() (*Type, error) {
	name := p.ident()
	if name == "" {
		return nil, p.fail("expected type name")
	}

	if _, ok := primitives[name]; ok {
		wt, err := wit.ParseType(name)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseSchema, errors.KindInvalidInput, err, name)
		}
		return p.reg.TypeFromWIT(wt)
	}

	switch name {
	case "array", "list", "set":
		if err := p.expect("<"); err != nil {
			return nil, err
		}
		elem, err := p.parse()
		if err != nil {
			return nil, err
		}
		if err := p.expect(">"); err != nil {
			return nil, err
		}
		if name == "set" {
			return SetOf(elem), nil
		}
		return ArrayOf(elem), nil

	case "map":
		if err := p.expect("<"); err != nil {
			return nil, err
		}
		key, err := p.parse()
		if err != nil {
			return nil, err
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
		value, err := p.parse()
		if err != nil {
			return nil, err
		}
		if err := p.expect(">"); err != nil {
			return nil, err
		}
		return MapOf(key, value), nil

	case "object", "weak", "class", "iface":
		if err := p.expect("<"); err != nil {
			return nil, err
		}
		target := p.ident()
		if target == "" {
			return nil, p.fail("expected %s target", name)
		}
		if err := p.expect(">"); err != nil {
			return nil, err
		}
		if name == "iface" {
			iface, ok := p.reg.Interface(target)
			if !ok {
				return nil, errors.NotFound(errors.PhaseSchema, "interface "+target)
			}
			return InterfaceOf(iface), nil
		}
		class := p.reg.DeclareClass(target)
		switch name {
		case "object":
			return ObjectOf(class), nil
		case "weak":
			return WeakOf(class), nil
		default:
			return ClassOf(class), nil
		}

	case "delegate", "multicast":
		sig, err := p.signature()
		if err != nil {
			return nil, err
		}
		if name == "multicast" {
			if sig.Return() != nil {
				return nil, p.fail("multicast delegates cannot return a value")
			}
			return MulticastOf(sig), nil
		}
		return DelegateOf(sig), nil
	}

	if s, ok := p.reg.Struct(name); ok {
		return s.Type(), nil
	}
	if e, ok := p.reg.Enum(name); ok {
		return e.Type(), nil
	}
	return nil, errors.NotFound(errors.PhaseSchema, "type "+name)
}

func (p *typeParser) signature() (*Signature, error) {
	if err := p.expect("<"); err != nil {
		return nil, err
	}
	var (
		params []FieldSpec
		ret    *Type
	)
	for !p.peek(">") {
		if p.peek("->") {
			p.pos += 2
			t, err := p.parse()
			if err != nil {
				return nil, err
			}
			ret = t
			break
		}
		var flags FieldFlags
		switch {
		case p.peek("out "):
			p.pos += 4
			flags = FlagOut
		case p.peek("ref "):
			p.pos += 4
			flags = FlagRef
		}
		t, err := p.parse()
		if err != nil {
			return nil, err
		}
		params = append(params, FieldSpec{Type: t, Flags: flags})
		switch {
		case p.peek(","):
			p.pos++
		case p.peek(">"), p.peek("->"):
		default:
			return nil, p.fail("expected ',' or '>'")
		}
	}
	if err := p.expect(">"); err != nil {
		return nil, err
	}
	return NewSignature(ret, params...), nil
}
