package resource

// Kind identifies one of the three per-project resource kinds.
type Kind string

const (
	KindUnknown     Kind = ""
	KindAdapter     Kind = "adapter"
	KindVectorStore Kind = "vectorstore"
	KindContext     Kind = "context"
)

// Kinds lists the three resource kinds in coordinator acquisition
// order: adapter, then vector store, then context. The fixed order is
// the deadlock-avoidance mechanism for racing switches; nothing else
// may acquire cross-cache locks in a different order.
func Kinds() []Kind {
	return []Kind{KindAdapter, KindVectorStore, KindContext}
}

// Valid reports whether k names a known resource kind.
func (k Kind) Valid() bool {
	switch k {
	case KindAdapter, KindVectorStore, KindContext:
		return true
	}
	return false
}

func (k Kind) String() string {
	if k == KindUnknown {
		return "unknown"
	}
	return string(k)
}
