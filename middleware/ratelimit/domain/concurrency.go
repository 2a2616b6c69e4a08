package domain

import "context"

// SlotPool é a capacidade finita de requests em andamento, dimensionada para
// não esgotar as conexões do Store.
//
// Acquire bloqueia até haver vaga ou ctx encerrar. O release devolvido deve ser
// chamado uma vez, quando o request terminar.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}
