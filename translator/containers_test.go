package translator

import (
	"testing"

	"go.starlark.net/starlark"

	"github.com/wippyai/propbridge/errors"
	"github.com/wippyai/propbridge/host"
)

func (fx *fixture) defineBag(t *testing.T) {
	t.Helper()
	reg := fx.sys.Registry
	vec, err := reg.DefineStruct("Vec",
		host.FieldSpec{Name: "x", Type: host.S32},
		host.FieldSpec{Name: "tag", Type: host.String})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reg.DefineClass("Bag", nil,
		host.FieldSpec{Name: "nums", Type: host.ArrayOf(host.S32)},
		host.FieldSpec{Name: "words", Type: host.ArrayOf(host.String)},
		host.FieldSpec{Name: "vecs", Type: host.ArrayOf(vec.Type())},
		host.FieldSpec{Name: "tags", Type: host.SetOf(host.String)},
		host.FieldSpec{Name: "counts", Type: host.MapOf(host.String, host.U32)},
		host.FieldSpec{Name: "grid", Type: host.ArrayOf(host.ArrayOf(host.U8))}); err != nil {
		t.Fatal(err)
	}
}

func (fx *fixture) eval(t *testing.T, g starlark.StringDict, expr string) starlark.Value {
	t.Helper()
	v, err := fx.env.Eval(expr, g)
	if err != nil {
		t.Fatalf("eval %s: %v", expr, err)
	}
	return v
}

func TestArrayRef_Script(t *testing.T) {
	tests := []struct {
		name string
		src  string
		expr string
		want string
	}{
		{"assign and read", `b.nums = [1, 2, 3]`, `list(b.nums)`, `[1, 2, 3]`},
		{"append", `b.nums = [1]
b.nums.append(2)`, `list(b.nums)`, `[1, 2]`},
		{"extend from tuple", `b.nums.extend((4, 5))`, `list(b.nums)`, `[4, 5]`},
		{"insert", `b.nums = [1, 3]
b.nums.insert(1, 2)
b.nums.insert(-10, 0)`, `list(b.nums)`, `[0, 1, 2, 3]`},
		{"pop", `b.nums = [1, 2, 3]
x = b.nums.pop(0)
y = b.nums.pop()`, `(x, y, list(b.nums))`, `(1, 3, [2])`},
		{"index and in", `b.words = ["a", "b"]`, `(b.words.index("b"), "a" in b.words, "z" in b.words)`, `(1, True, False)`},
		{"set index", `b.words = ["a", "b"]
b.words[1] = "c"`, `list(b.words)`, `["a", "c"]`},
		{"len and iterate", `b.words = ["x", "y"]
out = [w + "!" for w in b.words]`, `(len(b.words), out)`, `(2, ["x!", "y!"])`},
		{"clear", `b.words = ["x"]
b.words.clear()`, `(len(b.words), bool(b.words))`, `(0, False)`},
		{"self assign", `b.words = ["p", "q"]
b.words = b.words`, `list(b.words)`, `["p", "q"]`},
		{"copy is detached", `b.nums = [1]
c = b.nums.copy()
c.append(2)`, `(list(b.nums), c)`, `([1], [1, 2])`},
		{"struct element by reference", `b.vecs = [struct(x = 1, tag = "a")]
b.vecs[0].x = 5`, `b.vecs[0].x`, `5`},
		{"struct element from dict", `b.vecs = [{"x": 2}]`, `(b.vecs[0].x, b.vecs[0].tag)`, `(2, "")`},
		{"nested array", `b.grid = [[1], [2, 3]]
b.grid[1].append(4)`, `[list(r) for r in b.grid]`, `[[1], [2, 3, 4]]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, Options{})
			fx.defineBag(t)
			g := fx.exec(t, "b = Bag()\n"+tt.src)
			got := fx.eval(t, g, tt.expr)
			want := fx.eval(t, nil, tt.want)
			mustEqual(t, want, got)
		})
	}
}

func TestArrayRef_Errors(t *testing.T) {
	fx := newFixture(t, Options{})
	fx.defineBag(t)
	g := fx.exec(t, `b = Bag(nums = [1, 2])`)
	arr := attr(t, g["b"], "nums").(*ArrayRef)

	if _, err := arr.Get(5); !errors.HasKind(err, errors.KindOutOfBounds) {
		t.Errorf("Get(5) = %v, want out of bounds", err)
	}
	if err := arr.SetIndex(-1, starlark.MakeInt(1)); !errors.HasKind(err, errors.KindOutOfBounds) {
		t.Errorf("SetIndex(-1) = %v, want out of bounds", err)
	}
	if err := arr.SetIndex(0, starlark.String("x")); !errors.IsMismatch(err) {
		t.Errorf("SetIndex(string) = %v, want mismatch", err)
	}
	if _, err := fx.env.Exec("e.star", "b = Bag()\nb.nums.pop()"); !errors.HasKind(err, errors.KindOutOfBounds) {
		t.Errorf("pop empty = %v, want out of bounds", err)
	}
	if _, err := fx.env.Exec("e.star", "b = Bag()\nb.nums.index(3)"); !errors.HasKind(err, errors.KindNotFound) {
		t.Errorf("index missing = %v, want not found", err)
	}
	l, err := arr.List()
	if err != nil {
		t.Fatal(err)
	}
	mustEqual(t, starlark.NewList([]starlark.Value{starlark.MakeInt(1), starlark.MakeInt(2)}), l)
}

func TestArrayRef_StaleAfterReassign(t *testing.T) {
	fx := newFixture(t, Options{})
	fx.defineBag(t)
	g := fx.exec(t, `
b = Bag(vecs = [struct(x = 1), struct(x = 2)])
second = b.vecs[1]
b.vecs = [struct(x = 9)]
`)
	second := g["second"].(*StructRef)
	if _, err := second.Value(); !errors.HasKind(err, errors.KindOutOfBounds) {
		t.Errorf("element past new length = %v, want out of bounds", err)
	}
}

func TestMaxContainerLength(t *testing.T) {
	fx := newFixture(t, Options{MaxContainerLength: 3})
	fx.defineBag(t)
	_, err := fx.env.Exec("big.star", "b = Bag()\nb.nums = [1, 2, 3, 4]")
	if err == nil {
		t.Fatal("oversized array should be rejected")
	}
	g := fx.exec(t, "b = Bag(nums = [1, 2, 3])")
	if _, err := fx.env.Eval("b.nums.append(4)", g); err == nil {
		t.Error("append past limit should be rejected")
	}
}

func TestSetRef_Script(t *testing.T) {
	tests := []struct {
		name string
		src  string
		expr string
		want string
	}{
		{"dedupes list", `b.tags = ["a", "b", "a"]`, `(len(b.tags), sorted(list(b.tags)))`, `(2, ["a", "b"])`},
		{"from set", `b.tags = set(["x"])`, `"x" in b.tags`, `True`},
		{"add existing", `b.tags = ["a"]
b.tags.add("a")
b.tags.add("b")`, `sorted(list(b.tags))`, `["a", "b"]`},
		{"remove and discard", `b.tags = ["a", "b", "c"]
b.tags.remove("b")
b.tags.discard("zzz")`, `sorted(list(b.tags))`, `["a", "c"]`},
		{"copy", `b.tags = ["q"]`, `b.tags.copy()`, `set(["q"])`},
		{"clear", `b.tags = ["q"]
b.tags.clear()`, `len(b.tags)`, `0`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, Options{})
			fx.defineBag(t)
			g := fx.exec(t, "b = Bag()\n"+tt.src)
			mustEqual(t, fx.eval(t, nil, tt.want), fx.eval(t, g, tt.expr))
		})
	}

	fx := newFixture(t, Options{})
	fx.defineBag(t)
	if _, err := fx.env.Exec("e.star", "b = Bag()\nb.tags.remove(\"x\")"); !errors.HasKind(err, errors.KindNotFound) {
		t.Errorf("remove missing = %v, want not found", err)
	}
}

func TestMapRef_Script(t *testing.T) {
	tests := []struct {
		name string
		src  string
		expr string
		want string
	}{
		{"assign dict", `b.counts = {"a": 1, "b": 2}`, `dict(b.counts.items())`, `{"a": 1, "b": 2}`},
		{"set key in place", `b.counts = {"a": 1}
b.counts["a"] = 5
b.counts["c"] = 7`, `(b.counts["a"], b.counts["c"], len(b.counts))`, `(5, 7, 2)`},
		{"in and get", `b.counts = {"a": 1}`, `("a" in b.counts, "z" in b.counts, b.counts.get("z", 0))`, `(True, False, 0)`},
		{"pop", `b.counts = {"a": 1, "b": 2}
v = b.counts.pop("a")`, `(v, sorted(b.counts.keys()))`, `(1, ["b"])`},
		{"keys and values", `b.counts = {"k": 3}`, `(b.counts.keys(), b.counts.values())`, `(["k"], [3])`},
		{"iterate keys", `b.counts = {"x": 1, "y": 2}
ks = sorted([k for k in b.counts])`, `ks`, `["x", "y"]`},
		{"clear", `b.counts = {"x": 1}
b.counts.clear()`, `len(b.counts)`, `0`},
		{"copy", `b.counts = {"x": 1}`, `b.counts.copy()`, `{"x": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, Options{})
			fx.defineBag(t)
			g := fx.exec(t, "b = Bag()\n"+tt.src)
			mustEqual(t, fx.eval(t, nil, tt.want), fx.eval(t, g, tt.expr))
		})
	}
}

func TestContainers_HeapReturnsToBaseline(t *testing.T) {
	fx := newFixture(t, Options{})
	fx.defineBag(t)
	base := fx.heap.Live()
	fx.exec(t, `
b = Bag()
for i in range(20):
    b.words.append("word %d" % i)
    b.tags.add("t%d" % (i % 5))
    b.counts["k%d" % i] = i
    b.vecs.append(struct(x = i, tag = "v%d" % i))
b.words = b.words
b.vecs[3] = {"tag": "replaced"}
b.words.pop(0)
b.counts.pop("k1")
b.tags.remove("t0")
b.grid = [[1, 2], [3]]
b.grid[0] = [9, 9, 9]
destroy(b)
`)
	if live := fx.heap.Live(); live != base {
		t.Errorf("heap live blocks = %d, want %d", live, base)
	}
	if used := fx.env.Scratch().InUse(); used != 0 {
		t.Errorf("scratch regions in use = %d", used)
	}
}
