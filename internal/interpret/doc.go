// Package interpret extracts events from free text with an external
// language model.
//
// Client speaks the OpenAI-compatible chat completions protocol. The reply
// is treated as untrusted: ParseEvents accepts a well-formed {"events": [...]}
// document, and otherwise salvages every individually well-formed event
// object it can find in the text.
package interpret
