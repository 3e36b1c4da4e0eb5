package optional

import (
	"github.com/Blackdeer1524/RelDB/src/pkg/assert"
)

type Optional[T any] struct {
	present bool
	value   T
}

func Some[T any](value T) Optional[T] {
	return Optional[T]{
		present: true,
		value:   value,
	}
}

func None[T any]() Optional[T] {
	return Optional[T]{}
}

func (opt *Optional[T]) Emplace(value T) {
	opt.present = true
	opt.value = value
}

func (opt *Optional[T]) Clear() {
	opt.present = false
	opt.value = *new(T) // for deep equality
}

func (opt Optional[T]) Expect(msg string) T {
	assert.Assert(opt.present, msg)
	return opt.value
}

func (opt Optional[T]) Unwrap() T {
	assert.Assert(opt.present)
	return opt.value
}

func (opt Optional[T]) IsNone() bool {
	return !opt.present
}

func (opt Optional[T]) IsSome() bool {
	return opt.present
}
