// Package loader reads files from disk into core.Document values.
//
// The parser is chosen by extension:
//
//	.pdf             one document per page (1-based page numbers)
//	.md .markdown    markup stripped to plain text
//	.html .htm       tags stripped, body text only
//	.csv             one document per row, "column: value" lines
//	anything else    plain text
//
// An unknown extension is never an error. Parsing is delegated to
// langchaingo's documentloaders.
package loader
