// Package embedding turns task text into fixed-length vectors for the
// priority classifier.
//
// Three encoders are available: a deterministic offline feature-hashing
// encoder, the OpenAI embeddings API, and Google Gemini embeddings. Any of
// them can be wrapped by Cached, which memoizes vectors in an in-process LRU
// or in Redis.
package embedding
