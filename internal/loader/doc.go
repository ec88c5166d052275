// Package loader turns CUE declarations into build tasks.
//
// A declaration directory is one CUE package. Every field of its top-level
// item struct declares one model or block:
//
//	item: Hero: {
//		kind: "block"
//		fields: [{type: "string", label: "Headline"}]
//	}
//
// Inside validators, appearance and config, {ref: "<apiKey>"} stands for
// the remote id of a sibling field and {block: "<Name>"} or
// {model: "<Name>"} for the remote id of another item. Field references
// are resolved by the sync engine; item references are requested from the
// build's DependencyContext and are also collected statically into each
// Task's dependencies, which Check uses to report undeclared items and
// dependency cycles before anything is built.
package loader
