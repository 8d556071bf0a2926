package savex

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/hengadev/errsx"
)

// StructTag is the struct tag key read by the field table builder.
//
//	type Fruit struct {
//		Name  string `savex:""`
//		Score int32  `savex:"offset=4"`
//		Cache []byte `savex:"-"`
//	}
//
// A field takes part in serialization only when it carries the tag. The
// "offset=N" option skips N bytes before the field on seekable sinks.
const StructTag = "savex"

var saveableType = reflect.TypeOf(Saveable{})

// FieldDescriptor describes one field of a composite type. Descriptors are
// returned in declaration order, or in registration order for types set up
// with Register.
type FieldDescriptor struct {
	Name         string
	Index        []int
	Type         reflect.Type
	Participates bool
	// Offset is the number of bytes skipped before the field. Zero and
	// negative values mean no skip.
	Offset int64

	plan *plan
}

// Describe returns the field table of a composite type. t may be a struct
// type or a pointer to one.
func Describe(t reflect.Type) ([]FieldDescriptor, error) {
	if t == nil {
		return nil, NewUnsupportedTypeError(t, Inspect)
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if !isCompositeStruct(t) {
		return nil, NewUnsupportedTypeError(t, Inspect)
	}
	fields, err := compositeFor(t).resolve()
	if err != nil {
		return nil, err
	}
	return append([]FieldDescriptor(nil), fields...), nil
}

type fieldProblem struct {
	field string
	err   error
}

func describeStruct(t reflect.Type) ([]FieldDescriptor, error) {
	fields, problems := scanStruct(t)
	if len(problems) > 0 {
		return nil, problems[0].err
	}
	return fields, nil
}

func scanStruct(t reflect.Type) ([]FieldDescriptor, []fieldProblem) {
	if fields, ok := registrations.Load(t); ok {
		return scanRegistered(t, fields.([]FieldSpec))
	}
	return scanTagged(t)
}

func scanTagged(t reflect.Type) ([]FieldDescriptor, []fieldProblem) {
	var (
		fields   []FieldDescriptor
		problems []fieldProblem
	)
	for i := range t.NumField() {
		sf := t.Field(i)
		if sf.Anonymous && sf.Type == saveableType {
			continue
		}
		fd := FieldDescriptor{Name: sf.Name, Index: sf.Index, Type: sf.Type}

		tag, tagged := sf.Tag.Lookup(StructTag)
		if !tagged || tag == "-" {
			fields = append(fields, fd)
			continue
		}
		if !sf.IsExported() {
			problems = append(problems, fieldProblem{sf.Name, NewInvalidTagError(t, sf.Name, tag, "field is not exported")})
			continue
		}
		offset, err := parseTag(tag)
		if err != nil {
			problems = append(problems, fieldProblem{sf.Name, NewInvalidTagError(t, sf.Name, tag, err.Error())})
			continue
		}
		p, err := planFor(sf.Type, Unknown)
		if err != nil {
			problems = append(problems, fieldProblem{sf.Name, fieldError(t, sf.Name, err)})
			continue
		}
		fd.Participates = true
		fd.Offset = offset
		fd.plan = p
		fields = append(fields, fd)
	}
	return fields, problems
}

func parseTag(tag string) (int64, error) {
	var offset int64
	for _, opt := range strings.Split(tag, ",") {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			continue
		}
		key, value, _ := strings.Cut(opt, "=")
		switch key {
		case "offset":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("offset %q is not a number", value)
			}
			offset = n
		default:
			return 0, fmt.Errorf("unknown option %q", key)
		}
	}
	return offset, nil
}

// FieldSpec names one field in an explicit registration.
type FieldSpec struct {
	name   string
	offset int64
}

// Field starts a FieldSpec for the exported field called name.
func Field(name string) FieldSpec {
	return FieldSpec{name: name}
}

// Offset returns a copy of f that skips n bytes before the field.
func (f FieldSpec) Offset(n int64) FieldSpec {
	f.offset = n
	return f
}

var registrations sync.Map // reflect.Type -> []FieldSpec

// Register declares the participating fields of T explicitly, in the order
// given, instead of reading struct tags. Tags on T are ignored afterwards.
// Registering a type again replaces the previous table.
func Register[T any](fields ...FieldSpec) error {
	t := reflect.TypeFor[T]()
	if !isCompositeStruct(t) {
		return NewUnsupportedTypeError(t, Inspect)
	}

	var errs errsx.Map
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		sf, ok := t.FieldByName(f.name)
		switch {
		case !ok:
			errs.Set(f.name, NewInvalidTagError(t, f.name, "", "no such field"))
		case !sf.IsExported():
			errs.Set(f.name, NewInvalidTagError(t, f.name, "", "field is not exported"))
		case seen[f.name]:
			errs.Set(f.name, NewInvalidTagError(t, f.name, "", "field registered twice"))
		}
		seen[f.name] = true
	}
	if !errs.IsEmpty() {
		return errs.AsError()
	}

	registrations.Store(t, append([]FieldSpec(nil), fields...))
	resetCaches()
	return nil
}

// MustRegister is like Register but panics on error. It is meant for
// package-level var blocks and init functions.
func MustRegister[T any](fields ...FieldSpec) {
	if err := Register[T](fields...); err != nil {
		panic(err)
	}
}

func scanRegistered(t reflect.Type, registered []FieldSpec) ([]FieldDescriptor, []fieldProblem) {
	var (
		fields   []FieldDescriptor
		problems []fieldProblem
	)
	for _, f := range registered {
		sf, ok := t.FieldByName(f.name)
		if !ok {
			problems = append(problems, fieldProblem{f.name, NewInvalidTagError(t, f.name, "", "no such field")})
			continue
		}
		p, err := planFor(sf.Type, Unknown)
		if err != nil {
			problems = append(problems, fieldProblem{f.name, fieldError(t, f.name, err)})
			continue
		}
		fields = append(fields, FieldDescriptor{
			Name:         sf.Name,
			Index:        sf.Index,
			Type:         sf.Type,
			Participates: true,
			Offset:       f.offset,
			plan:         p,
		})
	}
	return fields, problems
}

// Validate checks that v's type, and every composite type reachable from it,
// can be serialized. Unlike the transfer functions it reports every problem
// at once, keyed by "Type.Field".
func Validate(v any) error {
	if v == nil {
		return NewNilPointerError(nil, Inspect)
	}
	var errs errsx.Map
	validateType(reflect.TypeOf(v), &errs, make(map[reflect.Type]bool))
	if !errs.IsEmpty() {
		return errs.AsError()
	}
	return nil
}

func validateType(t reflect.Type, errs *errsx.Map, seen map[reflect.Type]bool) {
	p, err := planFor(t, Inspect)
	if err != nil {
		errs.Set(typeName(t), err)
		return
	}
	if p.composite == nil || p.composite.custom {
		return
	}
	st := p.composite.typ
	if seen[st] {
		return
	}
	seen[st] = true

	fields, problems := scanStruct(st)
	for _, pr := range problems {
		errs.Set(typeName(st)+"."+pr.field, pr.err)
	}
	for _, f := range fields {
		if f.Participates {
			validateType(f.Type, errs, seen)
		}
	}
}
