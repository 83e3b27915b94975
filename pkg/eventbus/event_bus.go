package eventbus

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"
)

// EventBus dispatches events to every subscribed function whose parameter
// list accepts the published arguments.
type EventBus interface {
	Publish(args ...any)
	PublishE(args ...any) error
	Subscribe(handler any)
	Unsubscribe(handler any)
	Clear()
	SubscribersCount() int
}

var (
	ErrNoSubscribers        = errors.New("eventbus: no matching subscribers")
	ErrInvalidHandlerReturn = errors.New("eventbus: invalid handler return signature")
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

type bus struct {
	log      *logrus.Logger
	mu       sync.RWMutex
	handlers []reflect.Value
}

func NewEventPublisher(log *logrus.Logger) EventBus {
	return &bus{log: log}
}

// MatchSignature reports whether handler can be called with args.
func MatchSignature(handler any, args []any) bool {
	t := reflect.TypeOf(handler)
	if t == nil || t.Kind() != reflect.Func || t.NumIn() != len(args) {
		return false
	}
	for i, arg := range args {
		in := t.In(i)
		if arg == nil {
			switch in.Kind() {
			case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice:
				continue
			default:
				return false
			}
		}
		if !reflect.TypeOf(arg).AssignableTo(in) {
			return false
		}
	}
	return true
}

func (b *bus) matching(args []any) []reflect.Value {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []reflect.Value
	for _, h := range b.handlers {
		if MatchSignature(h.Interface(), args) {
			out = append(out, h)
		}
	}
	return out
}

func callArgs(h reflect.Value, args []any) []reflect.Value {
	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		if arg == nil {
			in[i] = reflect.Zero(h.Type().In(i))
			continue
		}
		in[i] = reflect.ValueOf(arg)
	}
	return in
}

// Publish calls every matching handler. A panicking handler is logged and
// does not stop the others.
func (b *bus) Publish(args ...any) {
	delivered := 0
	for _, h := range b.matching(args) {
		if b.call(h, args) {
			delivered++
		}
	}
	if delivered == 0 && b.log != nil {
		b.log.WithField("event", fmt.Sprintf("%T", firstArg(args))).Warn("eventbus.Publish: no matching subscribers")
	}
}

func (b *bus) call(h reflect.Value, args []any) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			if b.log != nil {
				b.log.WithField("handler", h.Type().String()).Errorf("eventbus: handler panicked with args %v: %v", args, r)
			}
		}
	}()
	h.Call(callArgs(h, args))
	return true
}

// PublishE is Publish for handlers that return an error. Handler errors and
// panics are joined into the returned error.
func (b *bus) PublishE(args ...any) error {
	handlers := b.matching(args)
	if len(handlers) == 0 {
		return ErrNoSubscribers
	}
	var errs []error
	for _, h := range handlers {
		errs = append(errs, b.callE(h, args))
	}
	return errors.Join(errs...)
}

func (b *bus) callE(h reflect.Value, args []any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("eventbus: handler %s panicked: %v", h.Type(), r)
		}
	}()
	out := h.Call(callArgs(h, args))
	switch {
	case len(out) == 0:
		return nil
	case len(out) > 1 || out[0].Type() != errorType:
		return fmt.Errorf("%w: handler %s", ErrInvalidHandlerReturn, h.Type())
	case out[0].IsNil():
		return nil
	}
	return out[0].Interface().(error)
}

func (b *bus) Subscribe(handler any) {
	v := reflect.ValueOf(handler)
	if v.Kind() != reflect.Func {
		panic("eventbus: handler must be a function")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, v)
}

// Unsubscribe removes the first handler with the same function pointer.
func (b *bus) Unsubscribe(handler any) {
	ptr := reflect.ValueOf(handler).Pointer()
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, h := range b.handlers {
		if h.Pointer() == ptr {
			b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
			return
		}
	}
}

func (b *bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = nil
}

func (b *bus) SubscribersCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

func firstArg(args []any) any {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}
