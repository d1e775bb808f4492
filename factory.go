package manifest

type factory struct{}

var Factory factory

func (f factory) NewStorage() Storage {
	return newStorage()
}

func (f factory) NewRule(store Store, terms ...Term) (*Rule, error) {
	return newRule(store, terms)
}

func (f factory) NewRuleCache(cap int) Cache[*Rule] {
	return FactoryNewCache[*Rule](cap)
}

func FactoryNewCache[T any](cap int) Cache[T] {
	return &SimpleCache[T]{
		itemIndices: make(map[string]int),
		maxCapacity: cap,
	}
}
