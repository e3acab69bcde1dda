// Package priority implements task priority prediction: request validation,
// feature construction, and the Predictor that ties an embedder, a classifier,
// and a label encoder together for the HTTP and CLI front ends.
package priority
