package derive

import (
	"encoding"
	"reflect"
	"strconv"
	"sync"
	"unsafe"

	"github.com/ldubos/facet/errors"
	"github.com/ldubos/facet/shape"
	"go.uber.org/zap"
)

// Defaulter is implemented by types whose default is not their zero value.
// Fields tagged `default` that are never written get SetDefault called on
// them when the builder finishes.
type Defaulter interface {
	SetDefault()
}

// Documented types expose a description carried on their Shape.
type Documented interface {
	Doc() string
}

type cacheKey struct {
	t    reflect.Type
	char bool
}

var (
	cache sync.Map // cacheKey -> *shape.Shape
	mu    sync.Mutex

	textMarshalerType   = reflect.TypeFor[encoding.TextMarshaler]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
	defaulterType       = reflect.TypeFor[Defaulter]()
	documentedType      = reflect.TypeFor[Documented]()
)

// Of returns the Shape of t, deriving it on first use.
// Shapes are built exactly once per type and shared afterwards.
func Of(t reflect.Type) (*shape.Shape, error) {
	if t == nil {
		return nil, errors.New(errors.PhaseDerive, errors.KindNilPointer).
			Detail("Go type cannot be nil").
			Build()
	}
	return of(cacheKey{t: t})
}

// For returns the Shape of T.
func For[T any]() (*shape.Shape, error) {
	return Of(reflect.TypeFor[T]())
}

// MustFor is like For but panics on error. Intended for package-level vars.
func MustFor[T any]() *shape.Shape {
	s, err := For[T]()
	if err != nil {
		panic(err)
	}
	return s
}

func of(key cacheKey) (*shape.Shape, error) {
	if cached, ok := cache.Load(key); ok {
		return cached.(*shape.Shape), nil
	}

	mu.Lock()
	defer mu.Unlock()

	// another goroutine may have finished it while we waited
	if cached, ok := cache.Load(key); ok {
		return cached.(*shape.Shape), nil
	}

	d := &deriver{pending: make(map[cacheKey]*shape.Shape)}
	s, err := d.derive(key, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range d.pending {
		cache.Store(k, v)
	}
	Logger().Debug("derived shape",
		zap.String("type", key.t.String()),
		zap.Stringer("kind", s.Kind),
		zap.Int("shapes", len(d.pending)))
	return s, nil
}

// deriver holds shapes under construction so recursive types resolve to
// the same (not yet complete) *shape.Shape.
type deriver struct {
	pending map[cacheKey]*shape.Shape
}

func (d *deriver) derive(key cacheKey, path []string) (*shape.Shape, error) {
	if cached, ok := cache.Load(key); ok {
		return cached.(*shape.Shape), nil
	}
	if s, ok := d.pending[key]; ok {
		return s, nil
	}

	t := key.t
	s := &shape.Shape{
		Type:  t,
		Name:  typeName(t),
		Size:  t.Size(),
		Align: uintptr(t.Align()),
	}
	d.pending[key] = s

	concrete := t.Kind() != reflect.Interface && t.Kind() != reflect.Pointer
	if concrete && t.Implements(documentedType) {
		s.Doc = reflect.Zero(t).Interface().(Documented).Doc()
	}
	if concrete && reflect.PointerTo(t).Implements(defaulterType) {
		s.VTable.Default = func(ptr unsafe.Pointer) {
			reflect.NewAt(t, ptr).Interface().(Defaulter).SetDefault()
		}
	}

	if key.char {
		if t.Kind() != reflect.Int32 {
			return nil, d.fail(errors.TypeMismatch(errors.PhaseDerive, path, "int32", t.String()))
		}
		s.Kind = shape.KindChar
		if t.Name() == "int32" {
			s.Name = "char"
		}
		return s, nil
	}

	if variants, ok := registeredEnum(t); ok {
		d.integerEnum(s, variants)
		return s, nil
	}

	if isTextual(t) {
		if err := d.textWrapper(s, path); err != nil {
			return nil, d.fail(err)
		}
		return s, nil
	}

	var err error
	switch t.Kind() {
	case reflect.Bool:
		s.Kind = shape.KindBool
	case reflect.Int:
		s.Kind = shape.KindInt
	case reflect.Int8:
		s.Kind = shape.KindInt8
	case reflect.Int16:
		s.Kind = shape.KindInt16
	case reflect.Int32:
		s.Kind = shape.KindInt32
	case reflect.Int64:
		s.Kind = shape.KindInt64
	case reflect.Uint:
		s.Kind = shape.KindUint
	case reflect.Uint8:
		s.Kind = shape.KindUint8
	case reflect.Uint16:
		s.Kind = shape.KindUint16
	case reflect.Uint32:
		s.Kind = shape.KindUint32
	case reflect.Uint64:
		s.Kind = shape.KindUint64
	case reflect.Uintptr:
		s.Kind = shape.KindUintptr
	case reflect.Float32:
		s.Kind = shape.KindFloat32
	case reflect.Float64:
		s.Kind = shape.KindFloat64
	case reflect.String:
		s.Kind = shape.KindString
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			s.Kind = shape.KindBytes
			break
		}
		err = d.seq(s, path)
	case reflect.Array:
		err = d.tuple(s, path)
	case reflect.Map:
		err = d.mapping(s, path)
	case reflect.Pointer:
		err = d.option(s, path)
	case reflect.Struct:
		err = d.structure(s, path)
	default:
		// interfaces, funcs, channels, complex numbers, unsafe pointers
		s.Kind = shape.KindOpaque
	}
	if err != nil {
		return nil, d.fail(err)
	}
	return s, nil
}

// fail forgets every shape of the current derivation so a broken type is
// never cached or observed half-built.
func (d *deriver) fail(err error) error {
	clear(d.pending)
	return err
}

func sub(path []string, seg string) []string {
	return append(path[:len(path):len(path)], seg)
}

func (d *deriver) seq(s *shape.Shape, path []string) error {
	elem, err := d.derive(cacheKey{t: s.Type.Elem()}, sub(path, "[]"))
	if err != nil {
		return err
	}
	s.Kind = shape.KindSeq
	s.Elem = elem
	s.Seq = seqOps(s.Type)
	return nil
}

func (d *deriver) tuple(s *shape.Shape, path []string) error {
	elem, err := d.derive(cacheKey{t: s.Type.Elem()}, sub(path, "[]"))
	if err != nil {
		return err
	}
	s.Kind = shape.KindTuple
	n := s.Type.Len()
	s.Fields = make([]shape.Field, n)
	for i := range n {
		s.Fields[i] = shape.Field{
			Name:   strconv.Itoa(i),
			Shape:  elem,
			Offset: uintptr(i) * elem.Size,
		}
	}
	return nil
}

func (d *deriver) mapping(s *shape.Shape, path []string) error {
	key, err := d.derive(cacheKey{t: s.Type.Key()}, sub(path, "[key]"))
	if err != nil {
		return err
	}
	if !key.Kind.IsScalar() && key.Kind != shape.KindWrapper && key.Kind != shape.KindTuple {
		return errors.New(errors.PhaseDerive, errors.KindUnsupported).
			Path(path...).
			Found(key.Name).
			Detail("map keys must be scalar, tuple or text types").
			Build()
	}
	val, err := d.derive(cacheKey{t: s.Type.Elem()}, sub(path, "[value]"))
	if err != nil {
		return err
	}
	s.Kind = shape.KindMap
	s.Key = key
	s.Elem = val
	s.Map = mapOps(s.Type)
	return nil
}

func (d *deriver) option(s *shape.Shape, path []string) error {
	elem, err := d.derive(cacheKey{t: s.Type.Elem()}, path)
	if err != nil {
		return err
	}
	s.Kind = shape.KindOption
	s.Elem = elem
	s.Option = optionOps()
	return nil
}

// isTextual reports whether t round-trips through its text form.
func isTextual(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer || t.Kind() == reflect.Interface {
		return false
	}
	marshal := t.Implements(textMarshalerType) || reflect.PointerTo(t).Implements(textMarshalerType)
	return marshal && reflect.PointerTo(t).Implements(textUnmarshalerType)
}

func (d *deriver) textWrapper(s *shape.Shape, path []string) error {
	inner, err := d.derive(cacheKey{t: reflect.TypeFor[string]()}, path)
	if err != nil {
		return err
	}
	s.Kind = shape.KindWrapper
	s.Elem = inner
	s.Wrapper = textOps(s.Type)
	return nil
}

func (d *deriver) structure(s *shape.Shape, path []string) error {
	t := s.Type

	var (
		rule        RenameRule
		transparent bool
	)
	// marker fields come first so rename_all applies to every field
	for i := range t.NumField() {
		f := t.Field(i)
		if f.Name != "_" {
			continue
		}
		tg, err := parseTag(f, path)
		if err != nil {
			return err
		}
		if tg.RenameAll != "" {
			r, ok := ParseRenameRule(tg.RenameAll)
			if !ok {
				return errors.New(errors.PhaseDerive, errors.KindInvalidShape).
					Path(path...).
					Found(s.Name).
					Detail("unknown rename rule %q", tg.RenameAll).
					Build()
			}
			rule = r
		}
		transparent = transparent || tg.Transparent
	}

	if isEnumStruct(t) {
		return d.taggedEnum(s, rule, path)
	}

	fields, err := d.fields(t, 0, rule, path)
	if err != nil {
		return err
	}

	if transparent {
		if len(fields) != 1 {
			return errors.New(errors.PhaseDerive, errors.KindInvalidShape).
				Path(path...).
				Found(s.Name).
				Detail("transparent struct must have exactly one field, has %d", len(fields)).
				Build()
		}
		s.Kind = shape.KindWrapper
		s.Elem = fields[0].Shape
		s.Wrapper = transparentOps(fields[0].Shape, fields[0].Offset)
		return nil
	}

	s.Kind = shape.KindStruct
	s.Fields = fields
	return nil
}

// fields collects the exported fields of t, flattening untagged embedded
// structs. base is added to every offset.
func (d *deriver) fields(t reflect.Type, base uintptr, rule RenameRule, path []string) ([]shape.Field, error) {
	var out []shape.Field
	seen := make(map[string]bool)

	for i := range t.NumField() {
		sf := t.Field(i)
		if sf.Name == "_" {
			continue
		}
		tg, err := parseTag(sf, path)
		if err != nil {
			return nil, err
		}
		if tg.Skip || tg.Tag {
			continue
		}

		if sf.Anonymous && tg.Name == "" && sf.Type.Kind() == reflect.Struct && !isTextual(sf.Type) {
			inner, err := d.fields(sf.Type, base+sf.Offset, rule, sub(path, sf.Name))
			if err != nil {
				return nil, err
			}
			for _, f := range inner {
				if seen[f.Name] {
					return nil, duplicateField(path, f.Name)
				}
				seen[f.Name] = true
				out = append(out, f)
			}
			continue
		}
		if !sf.IsExported() {
			continue
		}

		f, err := d.field(sf, tg, base, rule, path)
		if err != nil {
			return nil, err
		}
		if seen[f.Name] {
			return nil, duplicateField(path, f.Name)
		}
		seen[f.Name] = true
		out = append(out, f)
	}
	return out, nil
}

func (d *deriver) field(sf reflect.StructField, tg tag, base uintptr, rule RenameRule, path []string) (shape.Field, error) {
	name := tg.Name
	if name == "" {
		name = rule.Apply(sf.Name)
	}

	fs, err := d.derive(cacheKey{t: sf.Type, char: tg.Char}, sub(path, name))
	if err != nil {
		return shape.Field{}, err
	}

	f := shape.Field{
		Name:   name,
		Shape:  fs,
		Offset: base + sf.Offset,
		Doc:    sf.Tag.Get("doc"),
		Attrs:  tg.Attrs,
	}
	if tg.Optional || fs.Kind == shape.KindOption {
		f.Flags |= shape.FieldOptional
	}
	if tg.Default {
		f.Flags |= shape.FieldDefault
	}
	if tg.Sensitive {
		f.Flags |= shape.FieldSensitive
	}
	return f, nil
}

func duplicateField(path []string, name string) error {
	return errors.New(errors.PhaseDerive, errors.KindInvalidShape).
		Path(path...).
		Detail("duplicate field name %q", name).
		Build()
}

func typeName(t reflect.Type) string {
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}
