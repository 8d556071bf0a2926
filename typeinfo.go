package savex

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/hengadev/savex/internal/serialization"
)

type planKind uint8

const (
	planScalar planKind = iota + 1
	planScalarArray
	planComposite
	planCompositeArray
	planExtension
	planExtensionArray
)

// plan is the codec decision for one declared type, made once and cached.
type plan struct {
	kind      planKind
	typ       reflect.Type
	scalar    serialization.Kind // planScalar, planScalarArray
	elem      reflect.Type       // element type of array plans
	composite *compositeInfo     // planComposite, planCompositeArray
	ext       *extCodec          // planExtension, planExtensionArray
}

// compositeInfo carries the field table of one struct type. The table is
// resolved on first transfer rather than when the plan is built, so
// recursive types (a Node holding []Node) do not recurse forever.
type compositeInfo struct {
	typ    reflect.Type
	custom bool // *typ implements FieldCodec

	once   sync.Once
	fields []FieldDescriptor
	err    error

	checked atomic.Bool
}

func (c *compositeInfo) resolve() ([]FieldDescriptor, error) {
	c.once.Do(func() {
		c.fields, c.err = describeStruct(c.typ)
	})
	return c.fields, c.err
}

// check resolves the field table of c and of every composite reachable
// through its fields, so a bad nested field fails before the first byte is
// written. Only success is remembered.
func (c *compositeInfo) check() error {
	if c.checked.Load() {
		return nil
	}
	if err := checkComposite(c, make(map[*compositeInfo]bool)); err != nil {
		return err
	}
	c.checked.Store(true)
	return nil
}

func checkComposite(c *compositeInfo, seen map[*compositeInfo]bool) error {
	// FieldCodec composites write whatever they like
	if c.custom || seen[c] || c.checked.Load() {
		return nil
	}
	seen[c] = true

	fields, err := c.resolve()
	if err != nil {
		return err
	}
	for _, f := range fields {
		if !f.Participates || f.plan.composite == nil {
			continue
		}
		if err := checkComposite(f.plan.composite, seen); err != nil {
			return fieldError(c.typ, f.Name, err)
		}
	}
	return nil
}

var (
	plans      sync.Map // reflect.Type -> *plan
	composites sync.Map // reflect.Type -> *compositeInfo

	decimalType    = reflect.TypeOf(decimal.Decimal{})
	charType       = reflect.TypeOf(Char(0))
	fieldCodecType = reflect.TypeOf((*FieldCodec)(nil)).Elem()
)

// resetCaches drops every cached plan and field table. Registration calls
// it so a type described before a codec was registered picks the codec up.
func resetCaches() {
	plans.Clear()
	composites.Clear()
}

func planFor(t reflect.Type, action Action) (*plan, error) {
	if p, ok := plans.Load(t); ok {
		return p.(*plan), nil
	}
	p, err := buildPlan(t, action)
	if err != nil {
		return nil, err
	}
	actual, _ := plans.LoadOrStore(t, p)
	return actual.(*plan), nil
}

func buildPlan(t reflect.Type, action Action) (*plan, error) {
	if ext := lookupCodec(t); ext != nil {
		return &plan{kind: planExtension, typ: t, ext: ext}, nil
	}
	if k, ok := scalarKindOf(t); ok {
		return &plan{kind: planScalar, typ: t, scalar: k}, nil
	}

	switch t.Kind() {
	case reflect.Slice:
		return buildArrayPlan(t, action)
	case reflect.Array:
		if isArrayLike(t.Elem()) {
			return nil, NewUnsupportedShapeError(t, action)
		}
	case reflect.Struct:
		return &plan{kind: planComposite, typ: t, composite: compositeFor(t)}, nil
	case reflect.Pointer:
		if isCompositeStruct(t.Elem()) {
			return &plan{kind: planComposite, typ: t, composite: compositeFor(t.Elem())}, nil
		}
	}
	return nil, NewUnsupportedTypeError(t, action)
}

func buildArrayPlan(t reflect.Type, action Action) (*plan, error) {
	elem := t.Elem()
	if ext := lookupCodec(elem); ext != nil {
		return &plan{kind: planExtensionArray, typ: t, elem: elem, ext: ext}, nil
	}
	// rank > 1 is rejected before anything else is considered
	if isArrayLike(elem) {
		return nil, NewUnsupportedShapeError(t, action)
	}
	if k, ok := scalarKindOf(elem); ok {
		return &plan{kind: planScalarArray, typ: t, elem: elem, scalar: k}, nil
	}
	switch {
	case isCompositeStruct(elem):
		return &plan{kind: planCompositeArray, typ: t, elem: elem, composite: compositeFor(elem)}, nil
	case elem.Kind() == reflect.Pointer && isCompositeStruct(elem.Elem()):
		return &plan{kind: planCompositeArray, typ: t, elem: elem, composite: compositeFor(elem.Elem())}, nil
	}
	return nil, NewUnsupportedTypeError(t, action)
}

func isArrayLike(t reflect.Type) bool {
	if lookupCodec(t) != nil {
		return false
	}
	return t.Kind() == reflect.Slice || t.Kind() == reflect.Array
}

func isCompositeStruct(t reflect.Type) bool {
	if t.Kind() != reflect.Struct || lookupCodec(t) != nil {
		return false
	}
	_, scalar := scalarKindOf(t)
	return !scalar
}

func compositeFor(t reflect.Type) *compositeInfo {
	if c, ok := composites.Load(t); ok {
		return c.(*compositeInfo)
	}
	info := &compositeInfo{
		typ:    t,
		custom: reflect.PointerTo(t).Implements(fieldCodecType),
	}
	actual, _ := composites.LoadOrStore(t, info)
	return actual.(*compositeInfo)
}

func scalarKindOf(t reflect.Type) (serialization.Kind, bool) {
	switch t {
	case decimalType:
		return serialization.Decimal, true
	case charType:
		return serialization.Char, true
	}

	switch t.Kind() {
	case reflect.Int8:
		return serialization.Int8, true
	case reflect.Int16:
		return serialization.Int16, true
	case reflect.Int32:
		return serialization.Int32, true
	case reflect.Int64, reflect.Int:
		return serialization.Int64, true
	case reflect.Uint8:
		return serialization.Uint8, true
	case reflect.Uint16:
		return serialization.Uint16, true
	case reflect.Uint32:
		return serialization.Uint32, true
	case reflect.Uint64, reflect.Uint:
		return serialization.Uint64, true
	case reflect.Float32:
		return serialization.Float32, true
	case reflect.Float64:
		return serialization.Float64, true
	case reflect.Bool:
		return serialization.Bool, true
	case reflect.String:
		return serialization.String, true
	default:
		return serialization.Invalid, false
	}
}
