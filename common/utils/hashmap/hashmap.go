package hashmap

// HashMap is the interface implemented by the thread-safe maps in this package.
type HashMap[K any, V any] interface {
	Delete(K)
	Load(K) (val V, loaded bool)
	LoadAndDelete(K) (val V, exists bool)
	LoadOrStore(K, V) (val V, loaded bool)

	// Range iterates over the map's key/value pairs. If the callback function returns false, iteration stops.
	Range(func(K, V) (contd bool))

	Store(K, V)
	Len() int
}

var _ HashMap[string, int] = (*ConcurrentMap[int])(nil)
var _ HashMap[string, int] = (*CornelkMap[int])(nil)
