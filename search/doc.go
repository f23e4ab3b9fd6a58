// Package search answers similarity queries against the vector store
// and joins the hits with their document records.
package search
