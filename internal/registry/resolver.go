package registry

import "sort"

// Layers строит слоистую топологическую сортировку запрошенных датасетов.
// Рёбра зависимостей учитываются только внутри запрошенного набора.
// Возвращает слои (родители раньше детей; внутри слоя — лексикографически)
// и остаток, который не удалось упорядочить (цикл). Остаток не ошибка:
// вызывающий дописывает его в конец и продолжает (best-effort).
func (r *Registry) Layers(names []string) (layers [][]string, unresolved []string) {
	requested := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := r.entities[n]; ok {
			requested[n] = struct{}{}
		}
	}

	remaining := make(map[string]struct{}, len(requested))
	for n := range requested {
		remaining[n] = struct{}{}
	}

	for len(remaining) > 0 {
		var ready []string
		for n := range remaining {
			e := r.entities[n]
			blocked := false
			for _, dep := range e.DependsOn {
				// remaining — подмножество requested: ждём только внутренние рёбра
				if _, waits := remaining[dep]; waits {
					blocked = true
					break
				}
			}
			if !blocked {
				ready = append(ready, n)
			}
		}

		if len(ready) == 0 {
			// цикл: отдаём остаток как есть
			for n := range remaining {
				unresolved = append(unresolved, n)
			}
			sort.Strings(unresolved)
			return layers, unresolved
		}

		sort.Strings(ready)
		layers = append(layers, ready)
		for _, n := range ready {
			delete(remaining, n)
		}
	}
	return layers, nil
}

// Order сплющивает Layers в общий порядок; неразрешённый остаток
// дописывается в конец. ok=false сигнализирует о цикле.
func (r *Registry) Order(names []string) (order []string, ok bool) {
	layers, unresolved := r.Layers(names)
	for _, layer := range layers {
		order = append(order, layer...)
	}
	order = append(order, unresolved...)
	return order, len(unresolved) == 0
}
