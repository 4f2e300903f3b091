// Package rethinkdb implements the connection core of a client driver
// for a document-oriented database that speaks a length-prefixed,
// JSON-payload query protocol over a single TCP connection.
//
// A single Connection is shared by any number of concurrent logical
// queries. Each query is assigned a 64-bit token; responses are
// demultiplexed back to the waiting caller by that token. Results
// that don't fit in one response arrive as a sequence of batches
// pulled on demand through a Cursor, which issues CONTINUE while the
// caller is still consuming and STOP if the caller abandons the
// stream early.
//
// This package is deliberately narrow: it does not build queries (the
// term AST is an opaque value handed to RunQuery) and it does not
// decode result data into typed values (Cursor hands back raw
// datums). Those concerns live above this package.
package rethinkdb
