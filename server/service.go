package server

import (
	"encoding/json"
	"reflect"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

type methodType struct {
	method    reflect.Method
	ArgType   reflect.Type
	ReplyType reflect.Type
}

type service struct {
	name   string
	rcvr   reflect.Value
	typ    reflect.Type
	method map[string]*methodType
}

var (
	errorType       = reflect.TypeOf((*error)(nil)).Elem()
	unmarshalerType = reflect.TypeOf((*json.Unmarshaler)(nil)).Elem()
)

// newService scans rcvr for methods of the form
//
//	func (t *T) M(args *A, reply *R) error
//
// and names the service name, or T when name is empty.
func newService(rcvr any, name string) (*service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Pointer {
		return nil, errors.Errorf("server: receiver must be a pointer, got %T", rcvr)
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, errors.Errorf("server: receiver must point to a struct, got %s", typ.Elem().Kind())
	}
	if name == "" {
		name = typ.Elem().Name()
	}

	svc := &service{
		name:   name,
		rcvr:   reflect.ValueOf(rcvr),
		typ:    typ,
		method: make(map[string]*methodType),
	}
	for i := 0; i < typ.NumMethod(); i++ {
		m := typ.Method(i)
		mt := m.Type
		if mt.NumIn() != 3 || mt.NumOut() != 1 || mt.Out(0) != errorType ||
			mt.In(1).Kind() != reflect.Pointer || mt.In(2).Kind() != reflect.Pointer {
			continue
		}
		svc.method[m.Name] = &methodType{
			method:    m,
			ArgType:   mt.In(1).Elem(),
			ReplyType: mt.In(2).Elem(),
		}
	}
	if len(svc.method) == 0 {
		return nil, errors.Errorf("server: %s has no methods of the form M(*Args, *Reply) error", name)
	}
	return svc, nil
}

// decodeArgs fills a new *A from the params array. Slices, arrays and types with their
// own UnmarshalJSON take the whole array; any other A takes the single element.
func (m *methodType) decodeArgs(params jx.Raw) (reflect.Value, error) {
	argv := reflect.New(m.ArgType)
	if params == nil {
		return argv, nil
	}

	switch {
	case m.ArgType.Kind() == reflect.Slice,
		m.ArgType.Kind() == reflect.Array,
		argv.Type().Implements(unmarshalerType):
		if err := json.Unmarshal(params, argv.Interface()); err != nil {
			return argv, errors.Wrap(err, "decode params")
		}
		return argv, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(params, &items); err != nil {
		return argv, errors.Wrap(err, "decode params")
	}
	switch len(items) {
	case 0:
		return argv, nil
	case 1:
		if err := json.Unmarshal(items[0], argv.Interface()); err != nil {
			return argv, errors.Wrap(err, "decode params[0]")
		}
		return argv, nil
	default:
		return argv, errors.Errorf("want 1 param, got %d", len(items))
	}
}

func (s *service) call(m *methodType, argv, replyv reflect.Value) error {
	results := m.method.Func.Call([]reflect.Value{s.rcvr, argv, replyv})
	if err := results[0].Interface(); err != nil {
		return err.(error)
	}
	return nil
}
