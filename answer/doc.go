// Package answer turns ranked chunks into the extractive answer returned
// to callers: the question, one trimmed snippet per chunk and a closing
// note, plus a citation per chunk in the same order.
package answer
