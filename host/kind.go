package host

// Kind discriminates host types.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindU8
	KindS8
	KindU16
	KindS16
	KindU32
	KindS32
	KindU64
	KindS64
	KindF32
	KindF64
	KindString
	KindEnum
	KindArray
	KindMap
	KindSet
	KindStruct
	KindObject
	KindWeakObject
	KindInterface
	KindDelegate
	KindMulticastDelegate
	KindClass
)

var kindNames = [...]string{
	KindInvalid:           "invalid",
	KindBool:              "bool",
	KindU8:                "u8",
	KindS8:                "s8",
	KindU16:               "u16",
	KindS16:               "s16",
	KindU32:               "u32",
	KindS32:               "s32",
	KindU64:               "u64",
	KindS64:               "s64",
	KindF32:               "f32",
	KindF64:               "f64",
	KindString:            "string",
	KindEnum:              "enum",
	KindArray:             "array",
	KindMap:               "map",
	KindSet:               "set",
	KindStruct:            "struct",
	KindObject:            "object",
	KindWeakObject:        "weak",
	KindInterface:         "iface",
	KindDelegate:          "delegate",
	KindMulticastDelegate: "multicast",
	KindClass:             "class",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// IsNumeric reports whether k is an integer or float kind.
func (k Kind) IsNumeric() bool {
	return k >= KindU8 && k <= KindF64
}

// IsScalar reports whether k is stored inline without owned storage.
func (k Kind) IsScalar() bool {
	return k == KindBool || k.IsNumeric() || k == KindEnum || k == KindClass
}

// IsContainer reports whether k is a variable-length container.
func (k Kind) IsContainer() bool {
	return k == KindArray || k == KindMap || k == KindSet
}

// IsComposite reports whether values of k alias host memory when
// exposed by reference.
func (k Kind) IsComposite() bool {
	return k == KindStruct || k.IsContainer()
}

// IsObjectRef reports whether k stores an object handle.
func (k Kind) IsObjectRef() bool {
	return k == KindObject || k == KindWeakObject || k == KindInterface
}
