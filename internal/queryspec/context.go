package queryspec

// Vocabularies used by the query document format.
const (
	QueryVocab        = "https://core.kg.ebrains.eu/vocab/query/"
	ResponseVocab     = "https://schema.hbp.eu/myQuery/"
	MetaVocab         = "https://core.kg.ebrains.eu/vocab/meta/"
	DefaultNamespace  = "query"
	KeySpace          = MetaVocab + "space"
	KeyUser           = MetaVocab + "user"
	KeyRevision       = MetaVocab + "revision"
	KeyLastUpdate     = MetaVocab + "lastUpdate"
	identifierSchema  = "http://schema.org/identifier"
	identifierHBP     = "https://schema.hbp.eu/identifier"
	identifierKGVocab = "https://core.kg.ebrains.eu/vocab/identifier"
)

// DefaultContext returns a fresh copy of the JSON-LD context new queries
// start with.
func DefaultContext() map[string]any {
	return map[string]any{
		"@vocab":       QueryVocab,
		"query":        ResponseVocab,
		"propertyName": map[string]any{"@id": "propertyName", "@type": "@id"},
		"path":         map[string]any{"@id": "path", "@type": "@id"},
	}
}

// rootReserved lists document keys that are part of the query envelope
// rather than root options.
var rootReserved = map[string]bool{
	"@context":        true,
	"@id":             true,
	"@type":           true,
	"meta":            true,
	"structure":       true,
	"merge":           true,
	"identifier":      true,
	identifierSchema:  true,
	identifierHBP:     true,
	identifierKGVocab: true,
	KeySpace:          true,
	KeyUser:           true,
	KeyRevision:       true,
	KeyLastUpdate:     true,
}

// fieldReserved lists entry keys that carry structure rather than options.
var fieldReserved = map[string]bool{
	"propertyName": true,
	"path":         true,
	"structure":    true,
	"merge":        true,
}

// IsRootReserved reports whether key is part of the query envelope.
func IsRootReserved(key string) bool {
	return rootReserved[key]
}

// IsFieldReserved reports whether key is a structural entry key.
func IsFieldReserved(key string) bool {
	return fieldReserved[key]
}
