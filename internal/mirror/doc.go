// Package mirror defines the records a mirrored series is made of and the
// capabilities the sync engine needs from its collaborators.
//
// A Series owns ordered Books; a Book owns ordered Chapters; every Chapter is
// linked to the Page holding the raw fetched content. Pages carry the
// series-global ordinal, Chapters the book-local one. Chapter and Page
// hashes are the idempotency keys every store upserts on.
package mirror
