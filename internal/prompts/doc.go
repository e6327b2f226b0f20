// Package prompts holds the system prompt templates and the assembler
// that turns a template, the assistant identity, the caller's context,
// and the chat history into the provider-facing message sequence.
//
// Templates are Go text/template files named <name>.md. The built-in set
// is embedded in the binary; a configured prompts directory can add to
// or override it. Templates are parsed once at startup, never per turn.
//
// Fixed user-facing strings the turn controller needs (standby text,
// failure notices) also live here so all model- and user-facing wording
// is in one place.
package prompts
