// Package types defines the shared data model of the retrieval engine:
// entity records, per-source retrieval results, router outputs, and the
// unified error type. All other packages depend on types; types depends on
// nothing inside the module.
package types
