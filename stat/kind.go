package stat

// APIVersion is the provider contract version checked against
// Versioned.RequiresAPI constraints at registration.
const APIVersion = "1.2.0"

// Process-wide default provider names, substituted for empty names
const (
	DefaultClassifier = "bayes"
	DefaultTokenizer  = "osb"
	DefaultBackend    = "mmap"
	DefaultCache      = "sqlite3"
)

// Kind is one of the four capability kinds
type Kind int

const (
	KindClassifier Kind = iota
	KindTokenizer
	KindBackend
	KindCache
)

// String returns the kind name used in logs and errors
func (k Kind) String() string {
	switch k {
	case KindClassifier:
		return "classifier"
	case KindTokenizer:
		return "tokenizer"
	case KindBackend:
		return "backend"
	case KindCache:
		return "cache"
	default:
		return "unknown"
	}
}

// DefaultName returns the name substituted when a configuration omits one
func (k Kind) DefaultName() string {
	switch k {
	case KindClassifier:
		return DefaultClassifier
	case KindTokenizer:
		return DefaultTokenizer
	case KindBackend:
		return DefaultBackend
	case KindCache:
		return DefaultCache
	default:
		return ""
	}
}

// resolveName applies default substitution
func (k Kind) resolveName(name string) string {
	if name == "" {
		return k.DefaultName()
	}
	return name
}
