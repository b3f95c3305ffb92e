// Package elasticcache provides a tag-aware, TTL-aware cache backend that stores its entries
// as documents in an Elasticsearch index.
//
// Each cache entry is one document: the document id is the cache identifier and the document
// carries the content, the tag set and an absolute expiry timestamp. Expiry is not native to
// the index; it is checked when entries are read and enforced physically by CollectGarbage.
// Concrete document stores live in the store package.
package elasticcache
