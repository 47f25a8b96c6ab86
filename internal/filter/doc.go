// Package filter provides the membership filter consulted before the backing
// store. A filter must never report a false negative for a key it was told
// to Add; false positives are allowed.
package filter
